package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

const commissionPayoutJobName = "commission-payout"

type payoutEnqueuer interface {
	EnqueuePayouts(ctx context.Context) (int, error)
}

type CommissionPayoutJobParams struct {
	Logger  *logger.Logger
	Service payoutEnqueuer
}

// NewCommissionPayoutJob builds the daily job that hands pending platform
// commissions to the payout consumer.
func NewCommissionPayoutJob(params CommissionPayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("commission service required")
	}
	return &commissionPayoutJob{logg: params.Logger, svc: params.Service}, nil
}

type commissionPayoutJob struct {
	logg *logger.Logger
	svc  payoutEnqueuer
}

func (j *commissionPayoutJob) Name() string { return commissionPayoutJobName }

func (j *commissionPayoutJob) Run(ctx context.Context) error {
	enqueued, err := j.svc.EnqueuePayouts(ctx)
	if err != nil {
		return fmt.Errorf("enqueue commission payouts: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "enqueued", enqueued), "commission payouts enqueued")
	return nil
}
