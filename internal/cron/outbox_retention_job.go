package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

const defaultRetentionDays = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	PurgePublished(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Store  outboxPurger
	// Retention is in days; zero keeps a month of published events.
	Retention int
	Now       func() time.Time
}

// outboxRetentionJob keeps outbox_events from growing without bound. Only
// published rows are purged; parked rows wait for an operator.
type outboxRetentionJob struct {
	OutboxRetentionJobParams
	window time.Duration
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Store == nil:
		return nil, errors.New("outbox store required")
	}
	if params.Retention <= 0 {
		params.Retention = defaultRetentionDays
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &outboxRetentionJob{
		OutboxRetentionJobParams: params,
		window:                   time.Duration(params.Retention) * 24 * time.Hour,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.Now().UTC().Add(-j.window)
	var purged int64
	if err := j.DB.WithTx(ctx, func(tx *gorm.DB) (err error) {
		purged, err = j.Store.PurgePublished(ctx, tx, cutoff)
		return err
	}); err != nil {
		return fmt.Errorf("purge published outbox rows: %w", err)
	}
	j.Logger.Info(j.Logger.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.Retention,
		"purged":         purged,
	}), "published outbox events purged")
	return nil
}
