package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/carrental-backend/internal/charge"
	"github.com/angelmondragon/carrental-backend/internal/checkout"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

const (
	PendingCardJobName       = "pending-card-reconcile"
	defaultPendingLookback   = 30 * time.Minute
	defaultPendingBatchLimit = 100
)

type stalePaymentLister interface {
	ListStalePending(ctx context.Context, method enums.PaymentMethod, olderThan time.Time, limit int) ([]models.Payment, error)
}

type chargeRetriever interface {
	Retrieve(ctx context.Context, reference string) (charge.Outcome, error)
}

type paymentFinalizer interface {
	FinalizeByReference(ctx context.Context, reference string, status enums.ChargeStatus, failure *string) (*checkout.PaymentResult, error)
}

// PendingCardJobParams configures the sweep that settles card attempts whose
// webhook never arrived.
type PendingCardJobParams struct {
	Logger    *logger.Logger
	Payments  stalePaymentLister
	Gateway   chargeRetriever
	Finalizer paymentFinalizer
	Lookback  time.Duration
	Limit     int
}

type pendingCardJob struct {
	logg      *logger.Logger
	payments  stalePaymentLister
	gateway   chargeRetriever
	finalizer paymentFinalizer
	lookback  time.Duration
	limit     int
	now       func() time.Time
}

func NewPendingCardJob(params PendingCardJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment ledger required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("charge gateway required")
	case params.Finalizer == nil:
		return nil, fmt.Errorf("payment finalizer required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultPendingLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPendingBatchLimit
	}
	return &pendingCardJob{
		logg:      params.Logger,
		payments:  params.Payments,
		gateway:   params.Gateway,
		finalizer: params.Finalizer,
		lookback:  lookback,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (j *pendingCardJob) Name() string { return PendingCardJobName }

func (j *pendingCardJob) Run(ctx context.Context) error {
	olderThan := j.now().UTC().Add(-j.lookback)
	rows, err := j.payments.ListStalePending(ctx, enums.PaymentMethodCard, olderThan, j.limit)
	if err != nil {
		return fmt.Errorf("list stale card payments: %w", err)
	}

	var (
		errs      error
		settled   int
		unchanged int
	)
	for _, p := range rows {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		done, err := j.settle(ctx, p)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", p.ID, err))
			continue
		}
		if done {
			settled++
		} else {
			unchanged++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned":   len(rows),
		"settled":   settled,
		"unchanged": unchanged,
		"failed":    len(multierr.Errors(errs)),
	}), "pending card sweep complete")
	return errs
}

func (j *pendingCardJob) settle(ctx context.Context, p models.Payment) (bool, error) {
	if p.TransactionID == nil || *p.TransactionID == "" {
		// nothing to ask the processor about
		return false, nil
	}
	ctx = j.logg.WithPaymentID(ctx, p.ID.String())
	outcome, err := j.gateway.Retrieve(ctx, *p.TransactionID)
	if err != nil {
		return false, err
	}
	status := outcome.Status.ChargeStatus()
	if !status.IsTerminal() {
		return false, nil
	}
	var failure *string
	if status == enums.ChargeStatusFailed && outcome.FailureMessage != "" {
		msg := outcome.FailureMessage
		failure = &msg
	}
	_, err = j.finalizer.FinalizeByReference(ctx, *p.TransactionID, status, failure)
	switch {
	case err == nil:
		return true, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		// the reservation is gone
		j.logg.Warn(j.logg.WithField(ctx, "reason", err.Error()), "pending card payment skipped")
		return false, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), pkgerrors.IsCode(err, pkgerrors.CodeInvariant):
		// the outcome is in the ledger even though the reservation refused it
		j.logg.Warn(j.logg.WithField(ctx, "reason", err.Error()), "pending card payment settled without reconcile")
		return true, nil
	default:
		return false, err
	}
}
