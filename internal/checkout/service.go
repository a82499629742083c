package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/internal/charge"
	"github.com/angelmondragon/carrental-backend/internal/payments"
	"github.com/angelmondragon/carrental-backend/internal/reconcile"
	"github.com/angelmondragon/carrental-backend/internal/reservations"
	"github.com/angelmondragon/carrental-backend/pkg/auth"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/money"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentLedger interface {
	RecordAttempt(ctx context.Context, tx *gorm.DB, input payments.RecordInput) (*models.Payment, error)
	MarkOutcome(ctx context.Context, tx *gorm.DB, input payments.OutcomeInput) (*models.Payment, bool, error)
	LatestFor(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*models.Payment, error)
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, tx *gorm.DB, transactionID string) (*models.Payment, error)
	ListForReservation(ctx context.Context, reservationID uuid.UUID) ([]models.Payment, error)
}

type paymentReconciler interface {
	Reconcile(ctx context.Context, reservationID uuid.UUID, payment models.Payment, opts reconcile.Options) (*models.Reservation, error)
	ReconcileTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, payment models.Payment, opts reconcile.Options) (*models.Reservation, error)
}

// Service orchestrates payments for reservations: processor calls happen first,
// then the ledger write and the reconcile commit together.
type Service interface {
	RecordPayment(ctx context.Context, actor auth.Actor, reservationID uuid.UUID, input RecordPaymentInput) (*PaymentResult, error)
	ConfirmCardAction(ctx context.Context, actor auth.Actor, reservationID uuid.UUID, reference string) (*PaymentResult, error)
	ConfirmCashPayment(ctx context.Context, actor auth.Actor, paymentID uuid.UUID) (*PaymentResult, error)
	ReconcileFromPayment(ctx context.Context, actor auth.Actor, paymentID uuid.UUID) (*models.Reservation, error)
	FinalizeByReference(ctx context.Context, reference string, status enums.ChargeStatus, failure *string) (*PaymentResult, error)
	DocumentEligibility(ctx context.Context, actor auth.Actor, reservationID uuid.UUID) (*Document, error)
	ListPayments(ctx context.Context, actor auth.Actor, reservationID uuid.UUID) ([]models.Payment, error)
}

type ServiceParams struct {
	Reservations reservations.Repository
	Ledger       paymentLedger
	Reconciler   paymentReconciler
	Gateway      charge.Gateway
	Tx           txRunner
	Currency     enums.Currency
	Logger       *logger.Logger
}

type service struct {
	reservations reservations.Repository
	ledger       paymentLedger
	reconciler   paymentReconciler
	gateway      charge.Gateway
	tx           txRunner
	currency     enums.Currency
	logg         *logger.Logger
}

// NewService builds the payment orchestration service.
func NewService(params ServiceParams) (Service, error) {
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("payment ledger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("charge gateway required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	currency := params.Currency
	if currency == "" {
		currency = enums.CurrencyMAD
	}
	return &service{
		reservations: params.Reservations,
		ledger:       params.Ledger,
		reconciler:   params.Reconciler,
		gateway:      params.Gateway,
		tx:           params.Tx,
		currency:     currency,
		logg:         params.Logger,
	}, nil
}

func (s *service) RecordPayment(ctx context.Context, actor auth.Actor, reservationID uuid.UUID, input RecordPaymentInput) (*PaymentResult, error) {
	switch input.Method {
	case enums.PaymentMethodCash:
		return s.recordCash(ctx, actor, reservationID, input)
	case enums.PaymentMethodCard:
		return s.recordCard(ctx, actor, reservationID, input)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be card or cash")
	}
}

func (s *service) recordCash(ctx context.Context, actor auth.Actor, reservationID uuid.UUID, input RecordPaymentInput) (*PaymentResult, error) {
	result := &PaymentResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reservation, err := s.reservations.WithTx(tx).FindByIDForUpdate(ctx, reservationID)
		if err != nil {
			return mapNotFound(err, "reservation not found")
		}
		if err := checkPayable(actor, reservation); err != nil {
			return err
		}
		due, err := money.ToMinorUnits(reservation.Outstanding())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInvariant, err, "outstanding amount")
		}

		payment, err := s.ledger.RecordAttempt(ctx, tx, payments.RecordInput{
			ReservationID: reservation.ID,
			AmountMinor:   due,
			Currency:      input.Currency,
			Method:        enums.PaymentMethodCash,
			Status:        enums.ChargeStatusPending,
		})
		if err != nil {
			return err
		}

		pending := enums.PaymentStatusPending
		zero := decimal.Zero
		updated, err := s.reconciler.ReconcileTx(ctx, tx, reservation.ID, *payment, reconcile.Options{
			ForceStatus: &pending,
			PaidAmount:  &zero,
		})
		if err != nil {
			return err
		}
		result.Payment = payment
		result.Reservation = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) recordCard(ctx context.Context, actor auth.Actor, reservationID uuid.UUID, input RecordPaymentInput) (*PaymentResult, error) {
	reservation, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, mapNotFound(err, "reservation not found")
	}
	if err := checkPayable(actor, reservation); err != nil {
		return nil, err
	}
	due, err := money.ToMinorUnits(reservation.Outstanding())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvariant, err, "outstanding amount")
	}
	if due <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "nothing left to pay")
	}
	currency, err := s.chargeCurrency(input.Currency)
	if err != nil {
		return nil, err
	}

	outcome, err := s.gateway.Charge(ctx, charge.Request{
		AmountMinor:    due,
		Currency:       currency,
		MethodToken:    input.CardToken,
		ReservationID:  reservation.ID,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "charge failed")
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithReservationID(ctx, reservation.ID.String()), "card charge did not complete")
		}
		return nil, err
	}

	amount := outcome.AmountMinor
	if amount <= 0 {
		amount = due
	}
	record := payments.RecordInput{
		ReservationID: reservation.ID,
		AmountMinor:   amount,
		Currency:      currency.String(),
		Method:        enums.PaymentMethodCard,
		Status:        outcome.Status.ChargeStatus(),
		TransactionID: optional(outcome.Reference),
	}
	if outcome.Status == charge.StatusFailed {
		record.FailureMessage = optional(outcome.FailureMessage)
	}

	switch outcome.Status {
	case charge.StatusRequiresAction, charge.StatusProcessing:
		var payment *models.Payment
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			payment, err = s.ledger.RecordAttempt(ctx, tx, record)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &PaymentResult{
			Reservation:    reservation,
			Payment:        payment,
			RequiresAction: outcome.Status == charge.StatusRequiresAction,
			ClientSecret:   outcome.ClientSecret,
		}, nil
	default:
		result, err := s.recordAndReconcile(ctx, reservation.ID, record)
		if err != nil {
			return nil, err
		}
		result.FailureMessage = outcome.FailureMessage
		return result, nil
	}
}

// recordAndReconcile writes a terminal card attempt and reconciles in one transaction. When the
// reservation can no longer take the payment the attempt is still kept in the ledger.
func (s *service) recordAndReconcile(ctx context.Context, reservationID uuid.UUID, record payments.RecordInput) (*PaymentResult, error) {
	result := &PaymentResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.reservations.WithTx(tx).FindByIDForUpdate(ctx, reservationID); err != nil {
			return mapNotFound(err, "reservation not found")
		}
		payment, err := s.ledger.RecordAttempt(ctx, tx, record)
		if err != nil {
			return err
		}
		updated, err := s.reconciler.ReconcileTx(ctx, tx, reservationID, *payment, reconcile.Options{})
		if err != nil {
			return err
		}
		result.Payment = payment
		result.Reservation = updated
		return nil
	})
	if err == nil {
		return result, nil
	}

	if record.Status == enums.ChargeStatusSucceeded && refusedByReservation(err) {
		orphanErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := s.ledger.RecordAttempt(ctx, tx, record)
			return err
		})
		if s.logg != nil {
			logCtx := s.logg.WithReservationID(ctx, reservationID.String())
			logCtx = s.logg.WithField(logCtx, "transaction_id", derefString(record.TransactionID))
			s.logg.Error(logCtx, "charge captured but reservation rejected it; refund required", err)
			if orphanErr != nil {
				s.logg.Error(logCtx, "failed to keep captured charge in ledger", orphanErr)
			}
		}
	}
	return nil, err
}

func (s *service) ConfirmCardAction(ctx context.Context, actor auth.Actor, reservationID uuid.UUID, reference string) (*PaymentResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	reservation, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, mapNotFound(err, "reservation not found")
	}
	if !actor.CanAccess(reservation.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}

	existing, err := s.ledger.FindByTransactionID(ctx, nil, reference)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if existing != nil && existing.ReservationID != reservation.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment belongs to another reservation")
	}

	outcome, err := s.gateway.ConfirmAction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !outcome.Status.ChargeStatus().IsTerminal() {
		return &PaymentResult{
			Reservation:    reservation,
			Payment:        existing,
			RequiresAction: outcome.Status == charge.StatusRequiresAction,
			ClientSecret:   outcome.ClientSecret,
		}, nil
	}

	if existing == nil {
		amount := outcome.AmountMinor
		if amount <= 0 {
			if amount, err = money.ToMinorUnits(reservation.Outstanding()); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInvariant, err, "outstanding amount")
			}
		}
		result, err := s.recordAndReconcile(ctx, reservation.ID, payments.RecordInput{
			ReservationID:  reservation.ID,
			AmountMinor:    amount,
			Currency:       outcome.Currency,
			Method:         enums.PaymentMethodCard,
			Status:         outcome.Status.ChargeStatus(),
			TransactionID:  optional(reference),
			FailureMessage: optional(outcome.FailureMessage),
		})
		if err != nil {
			return nil, err
		}
		result.FailureMessage = outcome.FailureMessage
		return result, nil
	}

	result, err := s.FinalizeByReference(ctx, reference, outcome.Status.ChargeStatus(), optional(outcome.FailureMessage))
	if err != nil {
		return nil, err
	}
	result.FailureMessage = outcome.FailureMessage
	return result, nil
}

// FinalizeByReference moves a recorded card attempt to its terminal status and reconciles the
// reservation in one transaction. Webhooks and the pending-card job share this path. When the
// reservation refuses the outcome the ledger transition is still committed and the refusal returned.
func (s *service) FinalizeByReference(ctx context.Context, reference string, status enums.ChargeStatus, failure *string) (*PaymentResult, error) {
	known, err := s.ledger.FindByTransactionID(ctx, nil, reference)
	if err != nil {
		return nil, err
	}
	outcome := payments.OutcomeInput{
		TransactionID:  reference,
		Status:         status,
		FailureMessage: failure,
	}
	result := &PaymentResult{}
	var refused error
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.reservations.WithTx(tx).FindByIDForUpdate(ctx, known.ReservationID); err != nil {
			return mapNotFound(err, "reservation not found")
		}
		payment, _, err := s.ledger.MarkOutcome(ctx, tx, outcome)
		if err != nil {
			return err
		}
		updated, err := s.reconciler.ReconcileTx(ctx, tx, payment.ReservationID, *payment, reconcile.Options{})
		if err != nil {
			if refusedByReservation(err) {
				refused = err
			}
			return err
		}
		result.Payment = payment
		result.Reservation = updated
		return nil
	})
	switch {
	case err == nil:
		return result, nil
	case refused == nil:
		return nil, err
	}

	keepErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.reservations.WithTx(tx).FindByIDForUpdate(ctx, known.ReservationID); err != nil {
			return mapNotFound(err, "reservation not found")
		}
		_, _, err := s.ledger.MarkOutcome(ctx, tx, outcome)
		return err
	})
	if s.logg != nil {
		logCtx := s.logg.WithReservationID(ctx, known.ReservationID.String())
		logCtx = s.logg.WithPaymentID(logCtx, known.ID.String())
		logCtx = s.logg.WithField(logCtx, "transaction_id", reference)
		if status == enums.ChargeStatusSucceeded {
			s.logg.Error(logCtx, "charge captured but reservation rejected it; refund required", refused)
		} else {
			s.logg.Warn(s.logg.WithField(logCtx, "reason", refused.Error()), "card outcome recorded; reservation left unchanged")
		}
	}
	if keepErr != nil {
		return nil, fmt.Errorf("keep %s outcome for %s: %w", status, reference, keepErr)
	}
	return nil, refused
}

// refusedByReservation reports whether the reconciler turned the payment away, as opposed to a storage failure.
func refusedByReservation(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeInvariant)
}

func (s *service) ConfirmCashPayment(ctx context.Context, actor auth.Actor, paymentID uuid.UUID) (*PaymentResult, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	result := &PaymentResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.ledger.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if current.PaymentMethod != enums.PaymentMethodCash {
			return pkgerrors.New(pkgerrors.CodeValidation, "only cash payments can be confirmed manually")
		}
		reservation, err := s.reservations.WithTx(tx).FindByIDForUpdate(ctx, current.ReservationID)
		if err != nil {
			return mapNotFound(err, "reservation not found")
		}
		if reservation.PaymentStatus == enums.PaymentStatusPaid && current.Status != enums.ChargeStatusSucceeded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is already paid").
				WithDetails(map[string]any{"payment_id": current.ID, "payment_status": current.Status})
		}
		payment, _, err := s.ledger.MarkOutcome(ctx, tx, payments.OutcomeInput{
			PaymentID: &current.ID,
			Status:    enums.ChargeStatusSucceeded,
		})
		if err != nil {
			return err
		}
		updated, err := s.reconciler.ReconcileTx(ctx, tx, payment.ReservationID, *payment, reconcile.Options{})
		if err != nil {
			return err
		}
		result.Payment = payment
		result.Reservation = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithPaymentID(ctx, paymentID.String())
		logCtx = s.logg.WithUserID(logCtx, actor.UserID.String())
		s.logg.Info(logCtx, "cash payment confirmed")
	}
	return result, nil
}

func (s *service) ReconcileFromPayment(ctx context.Context, actor auth.Actor, paymentID uuid.UUID) (*models.Reservation, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	payment, err := s.ledger.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Reconcile(ctx, payment.ReservationID, *payment, reconcile.Options{})
}

func (s *service) DocumentEligibility(ctx context.Context, actor auth.Actor, reservationID uuid.UUID) (*Document, error) {
	reservation, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, mapNotFound(err, "reservation not found")
	}
	if !actor.CanAccess(reservation.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}
	latest, err := s.ledger.LatestFor(ctx, nil, reservation.ID)
	if err != nil {
		return nil, err
	}

	doc := &Document{ReservationID: reservation.ID, Kind: enums.DocumentNone}
	if latest == nil {
		return doc, nil
	}
	doc.PaymentID = &latest.ID
	switch {
	case latest.PaymentMethod == enums.PaymentMethodCard && latest.Status == enums.ChargeStatusSucceeded:
		doc.Kind = enums.DocumentInvoice
	case latest.PaymentMethod == enums.PaymentMethodCash && latest.Status == enums.ChargeStatusPending:
		doc.Kind = enums.DocumentProforma
	}
	return doc, nil
}

func (s *service) chargeCurrency(raw string) (enums.Currency, error) {
	if strings.TrimSpace(raw) == "" {
		return s.currency, nil
	}
	currency, err := enums.ParseCurrency(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}
	return currency, nil
}

func checkPayable(actor auth.Actor, reservation *models.Reservation) error {
	if !actor.CanAccess(reservation.UserID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}
	if reservation.Status == enums.ReservationStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is cancelled")
	}
	if reservation.PaymentStatus == enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is already paid")
	}
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func mapNotFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

// ListPayments returns every ledger attempt for the reservation, oldest first.
func (s *service) ListPayments(ctx context.Context, actor auth.Actor, reservationID uuid.UUID) ([]models.Payment, error) {
	reservation, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, mapNotFound(err, "reservation not found")
	}
	if !actor.CanAccess(reservation.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}
	return s.ledger.ListForReservation(ctx, reservation.ID)
}
