package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/carrental-backend/api/responses"
	"github.com/angelmondragon/carrental-backend/api/validators"
	"github.com/angelmondragon/carrental-backend/internal/reservations"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/types"
)

const maxLocationLen = 255

type createReservationRequest struct {
	CarID           uuid.UUID  `json:"car_id" validate:"required"`
	StartDate       types.Date `json:"start_date"`
	EndDate         types.Date `json:"end_date"`
	PickupLocation  string     `json:"pickup_location" validate:"required,max=255"`
	DropoffLocation string     `json:"dropoff_location" validate:"required,max=255"`
	PaymentMethod   string     `json:"payment_method" validate:"omitempty,payment_method"`
}

func (req createReservationRequest) toInput() reservations.CreateInput {
	return reservations.CreateInput{
		CarID:           req.CarID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		PickupLocation:  validators.SanitizeString(req.PickupLocation, maxLocationLen),
		DropoffLocation: validators.SanitizeString(req.DropoffLocation, maxLocationLen),
		PaymentMethod:   enums.PaymentMethod(req.PaymentMethod),
	}
}

type updateReservationRequest struct {
	StartDate       *types.Date `json:"start_date"`
	EndDate         *types.Date `json:"end_date"`
	PickupLocation  *string     `json:"pickup_location" validate:"omitempty,max=255"`
	DropoffLocation *string     `json:"dropoff_location" validate:"omitempty,max=255"`
	Status          *string     `json:"status" validate:"omitempty,reservation_status"`
}

func (req updateReservationRequest) toInput() reservations.UpdateInput {
	input := reservations.UpdateInput{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if req.PickupLocation != nil {
		v := validators.SanitizeString(*req.PickupLocation, maxLocationLen)
		input.PickupLocation = &v
	}
	if req.DropoffLocation != nil {
		v := validators.SanitizeString(*req.DropoffLocation, maxLocationLen)
		input.DropoffLocation = &v
	}
	if req.Status != nil {
		status := enums.ReservationStatus(*req.Status)
		input.Status = &status
	}
	return input
}

func CreateReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createReservationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.StartDate.IsZero() || req.EndDate.IsZero() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "start_date and end_date are required"))
			return
		}
		created, err := svc.CreateReservation(r.Context(), actor, req.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, reservations.NewReservationDTO(*created))
	}
}

func ListReservations(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListReservations(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, reservations.NewReservationDTO))
	}
}

func GetReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		found, err := svc.GetReservation(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservations.NewReservationDTO(*found))
	}
}

func UpdateReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateReservationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.UpdateReservation(r.Context(), actor, id, req.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservations.NewReservationDTO(*updated))
	}
}

func DeleteReservation(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.URLParamUUID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteReservation(r.Context(), actor, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
