package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/carrental-backend/api/middleware"
	"github.com/angelmondragon/carrental-backend/api/responses"
	"github.com/angelmondragon/carrental-backend/api/validators"
	"github.com/angelmondragon/carrental-backend/internal/checkout"
	"github.com/angelmondragon/carrental-backend/internal/payments"
	"github.com/angelmondragon/carrental-backend/internal/reservations"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

type recordPaymentRequest struct {
	Method    string `json:"method" validate:"required,payment_method"`
	Currency  string `json:"currency" validate:"omitempty,currency"`
	CardToken string `json:"card_token" validate:"omitempty,max=255"`
}

type confirmCardRequest struct {
	ReservationID uuid.UUID `json:"reservation_id" validate:"required"`
	Reference     string    `json:"reference" validate:"required,max=255"`
}

type paymentResultDTO struct {
	Reservation    *reservations.ReservationDTO `json:"reservation,omitempty"`
	Payment        *payments.PaymentDTO         `json:"payment,omitempty"`
	RequiresAction bool                         `json:"requires_action"`
	ClientSecret   string                       `json:"client_secret,omitempty"`
	FailureMessage string                       `json:"failure_message,omitempty"`
}

func newPaymentResultDTO(result *checkout.PaymentResult) paymentResultDTO {
	out := paymentResultDTO{
		RequiresAction: result.RequiresAction,
		ClientSecret:   result.ClientSecret,
		FailureMessage: result.FailureMessage,
	}
	if result.Reservation != nil {
		dto := reservations.NewReservationDTO(*result.Reservation)
		out.Reservation = &dto
	}
	if result.Payment != nil {
		dto := payments.NewPaymentDTO(*result.Payment)
		out.Payment = &dto
	}
	return out
}

// RecordPayment settles a reservation by card or cash. The Idempotency-Key header doubles
// as the processor idempotency key for card charges.
func RecordPayment(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservationID, err := validators.URLParamUUID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RecordPayment(r.Context(), actor, reservationID, checkout.RecordPaymentInput{
			Method:         enums.PaymentMethod(req.Method),
			Currency:       req.Currency,
			CardToken:      strings.TrimSpace(req.CardToken),
			IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResultDTO(result))
	}
}

// ConfirmCardAction finalizes a card charge after the customer completed the processor step.
func ConfirmCardAction(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req confirmCardRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ConfirmCardAction(r.Context(), actor, req.ReservationID, strings.TrimSpace(req.Reference))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResultDTO(result))
	}
}

func DocumentEligibility(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservationID, err := validators.URLParamUUID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.DocumentEligibility(r.Context(), actor, reservationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

// ListReservationPayments serves the payment history of one reservation.
func ListReservationPayments(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservationID, err := validators.URLParamUUID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListPayments(r.Context(), actor, reservationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history := make([]payments.PaymentDTO, 0, len(rows))
		for _, p := range rows {
			history = append(history, payments.NewPaymentDTO(p))
		}
		responses.WriteSuccess(w, history)
	}
}

func AdminConfirmCash(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := validators.URLParamUUID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ConfirmCashPayment(r.Context(), actor, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResultDTO(result))
	}
}

// AdminReconcile re-applies a recorded payment to its reservation.
func AdminReconcile(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := validators.URLParamUUID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.ReconcileFromPayment(r.Context(), actor, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservations.NewReservationDTO(*reservation))
	}
}
