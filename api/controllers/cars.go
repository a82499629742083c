package controllers

import (
	"net/http"

	"github.com/angelmondragon/carrental-backend/api/responses"
	"github.com/angelmondragon/carrental-backend/api/validators"
	"github.com/angelmondragon/carrental-backend/internal/cars"
	"github.com/angelmondragon/carrental-backend/internal/reservations"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

// ListCars serves the public catalogue. Query: brand, model, max_price, available,
// start and end (both or neither), limit, cursor.
func ListCars(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := carFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, cars.NewCarDTO))
	}
}

func carFilterFromQuery(r *http.Request) (cars.Filter, error) {
	q := r.URL.Query()
	filter := cars.Filter{
		Brand: validators.SanitizeString(q.Get("brand"), 100),
		Model: validators.SanitizeString(q.Get("model"), 100),
	}
	var err error
	if filter.MaxPrice, err = validators.ParseQueryDecimal(r, "max_price"); err != nil {
		return filter, err
	}
	if filter.OnlyAvailable, err = validators.ParseQueryBool(r, "available"); err != nil {
		return filter, err
	}
	if filter.AvailableFrom, err = validators.ParseQueryDate(r, "start"); err != nil {
		return filter, err
	}
	if filter.AvailableTo, err = validators.ParseQueryDate(r, "end"); err != nil {
		return filter, err
	}
	if (filter.AvailableFrom == nil) != (filter.AvailableTo == nil) {
		return filter, pkgerrors.New(pkgerrors.CodeValidation, "start and end must be provided together")
	}
	if filter.AvailableFrom != nil && filter.AvailableFrom.After(*filter.AvailableTo) {
		return filter, pkgerrors.New(pkgerrors.CodeValidation, "start must not be after end")
	}
	return filter, nil
}

func GetCar(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "carId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		car, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cars.NewCarDTO(*car))
	}
}

// CarAvailability answers whether the car is free for [start, end].
func CarAvailability(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "carId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		start, err := validators.ParseQueryDate(r, "start")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseQueryDate(r, "end")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if start == nil || end == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "start and end are required"))
			return
		}
		result, err := svc.CheckAvailability(r.Context(), id, *start, *end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminCreateCar(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input cars.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		car, err := svc.Create(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, cars.NewCarDTO(*car))
	}
}

func AdminUpdateCar(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "carId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input cars.UpdateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		car, err := svc.Update(r.Context(), actor, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cars.NewCarDTO(*car))
	}
}

func AdminDeleteCar(svc cars.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "carId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), actor, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
