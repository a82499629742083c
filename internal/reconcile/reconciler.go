package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/internal/reservations"
	dbpkg "github.com/angelmondragon/carrental-backend/pkg/db"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/metrics"
	"github.com/angelmondragon/carrental-backend/pkg/outbox"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Params struct {
	Reservations reservations.Repository
	Tx           txRunner
	Outbox       outbox.Emitter
	Metrics      *metrics.BookingMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

// Reconciler is the only writer of the payment columns on reservations.
type Reconciler struct {
	repo    reservations.Repository
	tx      txRunner
	outbox  outbox.Emitter
	metrics *metrics.BookingMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func New(params Params) (*Reconciler, error) {
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		repo:    params.Reservations,
		tx:      params.Tx,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// Reconcile runs ReconcileTx in its own transaction.
func (r *Reconciler) Reconcile(ctx context.Context, reservationID uuid.UUID, payment models.Payment, opts Options) (*models.Reservation, error) {
	var out *models.Reservation
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = r.ReconcileTx(ctx, tx, reservationID, payment, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReconcileTx locks the reservation row in tx and rewrites its payment columns from payment.
// Callers that already hold the car lock keep the car → reservation → payment order.
func (r *Reconciler) ReconcileTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, payment models.Payment, opts Options) (*models.Reservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconcile requires a transaction")
	}
	if payment.ReservationID != uuid.Nil && payment.ReservationID != reservationID {
		r.metrics.IncReconcile("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment belongs to another reservation")
	}
	if opts.ForceStatus != nil && !opts.ForceStatus.IsValid() {
		r.metrics.IncReconcile("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid forced payment status")
	}

	repo := r.repo.WithTx(tx)
	current, err := repo.FindByIDForUpdate(ctx, reservationID)
	if err != nil {
		r.metrics.IncReconcile("error")
		return nil, mapLookup(err)
	}

	derived := Derive(payment, opts, r.now())
	logCtx := ctx
	if r.logg != nil {
		logCtx = r.logg.WithReservationID(ctx, reservationID.String())
		if payment.ID != uuid.Nil {
			logCtx = r.logg.WithPaymentID(logCtx, payment.ID.String())
		}
	}

	if current.PaymentStatus == enums.PaymentStatusPaid {
		if sameOutcome(*current, derived) {
			r.metrics.IncReconcile("noop")
			return current, nil
		}
		r.metrics.IncReconcile("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is already paid")
	}
	if sameOutcome(*current, derived) && current.PaidAt == nil && derived.PaidAt == nil {
		r.metrics.IncReconcile("noop")
		return current, nil
	}

	if err := CheckInvariant(current.TotalAmount, derived); err != nil {
		r.metrics.IncReconcile("rejected")
		if r.logg != nil {
			r.logg.Error(r.logg.WithFields(logCtx, map[string]any{
				"payment_status": derived.PaymentStatus,
				"amount_paid":    derived.AmountPaid.StringFixed(2),
				"total_amount":   current.TotalAmount.StringFixed(2),
			}), "reconcile rejected", err)
		}
		return nil, err
	}

	fields := reservations.PaymentFields{
		PaymentMethod:    derived.PaymentMethod,
		PaymentStatus:    derived.PaymentStatus,
		AmountPaid:       derived.AmountPaid,
		PaidAt:           derived.PaidAt,
		PaymentReference: derived.PaymentReference,
	}
	if derived.PaymentStatus == enums.PaymentStatusPaid && current.Status == enums.ReservationStatusPending {
		paid := enums.ReservationStatusPaid
		fields.Status = &paid
	}
	if err := repo.UpdatePaymentFields(ctx, reservationID, fields); err != nil {
		r.metrics.IncReconcile("error")
		if dbpkg.IsCheckViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInvariant, err, "reservation payment columns rejected")
		}
		return nil, mapLookup(err)
	}

	updated, err := repo.FindByID(ctx, reservationID)
	if err != nil {
		r.metrics.IncReconcile("error")
		return nil, mapLookup(err)
	}

	var paymentID *uuid.UUID
	if payment.ID != uuid.Nil {
		id := payment.ID
		paymentID = &id
	}
	if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReservationReconciled,
		AggregateType: enums.AggregateReservation,
		AggregateID:   updated.ID,
		Data: payloads.ReservationReconciledEvent{
			ReservationID:    updated.ID,
			Status:           updated.Status,
			PaymentMethod:    updated.PaymentMethod,
			PaymentStatus:    updated.PaymentStatus,
			AmountPaid:       updated.AmountPaid,
			PaidAt:           updated.PaidAt,
			PaymentReference: updated.PaymentReference,
			PaymentID:        paymentID,
		},
	}); err != nil {
		r.metrics.IncReconcile("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue reconcile event")
	}

	r.metrics.IncReconcile("applied")
	if r.logg != nil {
		r.logg.Info(r.logg.WithField(logCtx, "payment_status", updated.PaymentStatus), "reservation payment reconciled")
	}
	return updated, nil
}

func mapLookup(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile reservation")
}
