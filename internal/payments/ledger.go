package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/carrental-backend/pkg/db"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/money"
	"github.com/angelmondragon/carrental-backend/pkg/outbox"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/payloads"
)

// RecordInput describes one payment attempt. AmountMinor is in the currency's minor units.
type RecordInput struct {
	ReservationID  uuid.UUID
	AmountMinor    int64
	Currency       string
	Method         enums.PaymentMethod
	Status         enums.ChargeStatus
	TransactionID  *string
	FailureMessage *string
}

// OutcomeInput finalizes an attempt found by PaymentID or, when that is nil, by TransactionID.
type OutcomeInput struct {
	PaymentID      *uuid.UUID
	TransactionID  string
	Status         enums.ChargeStatus
	FailureMessage *string
}

// Ledger appends payment attempts and moves them to a terminal outcome. It never reconciles.
type Ledger struct {
	repo            Repository
	defaultCurrency enums.Currency
	outbox          outbox.Emitter
	logg            *logger.Logger
}

// NewLedger builds the ledger; the default currency applies when an attempt carries none.
func NewLedger(repo Repository, defaultCurrency enums.Currency, emitter outbox.Emitter, logg *logger.Logger) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if !defaultCurrency.IsValid() {
		return nil, fmt.Errorf("invalid default currency %q", defaultCurrency)
	}
	return &Ledger{repo: repo, defaultCurrency: defaultCurrency, outbox: emitter, logg: logg}, nil
}

// RecordAttempt inserts a payment row inside tx. Minor units are converted exactly once here.
func (l *Ledger) RecordAttempt(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Payment, error) {
	if input.ReservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	if input.AmountMinor < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	currency, err := l.currency(input.Currency)
	if err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		if input.Method != enums.PaymentMethodCash {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "card attempts require the processor outcome")
		}
		status = enums.ChargeStatusPending
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}

	payment := &models.Payment{
		ReservationID:  input.ReservationID,
		Amount:         money.FromMinorUnits(input.AmountMinor),
		Currency:       currency,
		PaymentMethod:  input.Method,
		Status:         status,
		TransactionID:  normalizeReference(input.TransactionID),
		FailureMessage: input.FailureMessage,
	}
	if err := l.repo.WithTx(tx).Create(ctx, payment); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment reference already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
	}
	if err := l.emit(ctx, tx, payment); err != nil {
		return nil, err
	}
	if l.logg != nil {
		logCtx := l.logg.WithPaymentID(ctx, payment.ID.String())
		logCtx = l.logg.WithReservationID(logCtx, payment.ReservationID.String())
		logCtx = l.logg.WithFields(logCtx, map[string]any{"status": payment.Status, "method": payment.PaymentMethod})
		l.logg.Info(logCtx, "payment attempt recorded")
	}
	return payment, nil
}

// MarkOutcome locks the payment row and applies a terminal status. Repeating the current
// status is a no-op reported as changed=false.
func (l *Ledger) MarkOutcome(ctx context.Context, tx *gorm.DB, input OutcomeInput) (*models.Payment, bool, error) {
	if !input.Status.IsTerminal() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "outcome must be succeeded or failed")
	}
	repo := l.repo.WithTx(tx)

	var (
		payment *models.Payment
		err     error
	)
	switch {
	case input.PaymentID != nil:
		payment, err = repo.FindByIDForUpdate(ctx, *input.PaymentID)
	case strings.TrimSpace(input.TransactionID) != "":
		payment, err = repo.FindByTransactionIDForUpdate(ctx, strings.TrimSpace(input.TransactionID))
	default:
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "payment id or transaction id required")
	}
	if err != nil {
		return nil, false, mapNotFound(err, "payment not found")
	}

	if payment.Status == input.Status {
		return payment, false, nil
	}
	if !allowedTransition(payment.Status, input.Status) {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment cannot move from %s to %s", payment.Status, input.Status))
	}

	updates := map[string]any{"status": input.Status}
	if input.Status == enums.ChargeStatusFailed {
		updates["failure_message"] = input.FailureMessage
	} else {
		updates["failure_message"] = nil
	}
	if payment.TransactionID == nil {
		if ref := normalizeReference(&input.TransactionID); ref != nil {
			updates["transaction_id"] = *ref
		}
	}
	if err := repo.Update(ctx, payment.ID, updates); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	updated, err := repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	if err := l.emit(ctx, tx, updated); err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// LatestFor returns the most recent attempt, or nil when the reservation has none.
func (l *Ledger) LatestFor(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*models.Payment, error) {
	payment, err := l.repo.WithTx(tx).Latest(ctx, reservationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest payment")
	}
	return payment, nil
}

func (l *Ledger) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Payment, error) {
	payment, err := l.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "payment not found")
	}
	return payment, nil
}

func (l *Ledger) FindByTransactionID(ctx context.Context, tx *gorm.DB, transactionID string) (*models.Payment, error) {
	payment, err := l.repo.WithTx(tx).FindByTransactionID(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		return nil, mapNotFound(err, "payment not found")
	}
	return payment, nil
}

func (l *Ledger) ListForReservation(ctx context.Context, reservationID uuid.UUID) ([]models.Payment, error) {
	rows, err := l.repo.ListByReservation(ctx, reservationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

// ListStalePending feeds the pending-card reconcile job.
func (l *Ledger) ListStalePending(ctx context.Context, method enums.PaymentMethod, olderThan time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.repo.ListStalePending(ctx, method, olderThan, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payments")
	}
	return rows, nil
}

func (l *Ledger) currency(raw string) (enums.Currency, error) {
	if strings.TrimSpace(raw) == "" {
		return l.defaultCurrency, nil
	}
	currency, err := enums.ParseCurrency(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}
	return currency, nil
}

func (l *Ledger) emit(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "payment writes require a transaction")
	}
	return l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRecorded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentRecordedEvent{
			PaymentID:     payment.ID,
			ReservationID: payment.ReservationID,
			Amount:        payment.Amount,
			Currency:      payment.Currency,
			PaymentMethod: payment.PaymentMethod,
			Status:        payment.Status,
			TransactionID: payment.TransactionID,
		},
	})
}

func allowedTransition(from, to enums.ChargeStatus) bool {
	switch from {
	case enums.ChargeStatusPending:
		return to == enums.ChargeStatusSucceeded || to == enums.ChargeStatusFailed
	case enums.ChargeStatusFailed:
		// a later attempt on the same intent may still succeed
		return to == enums.ChargeStatusSucceeded
	default:
		return false
	}
}

func normalizeReference(ref *string) *string {
	if ref == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*ref)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func mapNotFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
