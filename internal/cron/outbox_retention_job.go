package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

const (
	OutboxRetentionJobName = "outbox-retention"
	defaultRetentionDays   = 30
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error)
}

// OutboxRetentionJobParams configures pruning of delivered and dead outbox rows.
// DeadAfterAttempts should match the publisher's retry cap; zero keeps dead rows.
type OutboxRetentionJobParams struct {
	Logger            *logger.Logger
	Tx                txRunner
	Outbox            outboxPruner
	RetentionDays     int
	DeadAfterAttempts int
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	tx        txRunner
	outbox    outboxPruner
	retention time.Duration
	deadAfter int
	now       func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultRetentionDays
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		tx:        params.Tx,
		outbox:    params.Outbox,
		retention: time.Duration(days) * 24 * time.Hour,
		deadAfter: params.DeadAfterAttempts,
		now:       time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return OutboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.outbox.DeletePublishedBefore(ctx, tx, cutoff, j.deadAfter)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"dead_after":   j.deadAfter,
		"rows_deleted": deleted,
	}), "outbox pruned")
	return nil
}
