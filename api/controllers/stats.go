package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/carrental-backend/api/responses"
	"github.com/angelmondragon/carrental-backend/api/validators"
	"github.com/angelmondragon/carrental-backend/internal/stats"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

func AdminStats(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// AdminMonthlyStats returns twelve points for ?year=, defaulting to the current UTC year.
func AdminMonthlyStats(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		year, err := validators.ParseQueryInt(r, "year", time.Now().UTC().Year(), 2000, 2100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		points, err := svc.Monthly(r.Context(), actor, year)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"year": year, "months": points})
	}
}
