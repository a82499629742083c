package controllers

import (
	"net/http"

	"github.com/angelmondragon/carrental-backend/api/middleware"
	"github.com/angelmondragon/carrental-backend/api/validators"
	"github.com/angelmondragon/carrental-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/pagination"
)

func requireActor(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return actor, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}

// mapPage converts a page of rows into its API shape, keeping the cursor.
func mapPage[T, D any](page pagination.Page[T], fn func(T) D) pagination.Page[D] {
	out := pagination.Page[D]{Items: make([]D, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, item := range page.Items {
		out.Items = append(out.Items, fn(item))
	}
	return out
}
