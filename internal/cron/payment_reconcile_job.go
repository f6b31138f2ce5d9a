package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/rentwise-payments/internal/payments"
	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/metrics"
	"github.com/angelmondragon/rentwise-payments/pkg/mobilemoney"
)

const paymentReconcileJobName = "payment-reconcile"

type pendingPaymentStore interface {
	ListPending(ctx context.Context, kind enums.PaymentKind, limit int) ([]models.PaymentRecord, error)
	MarkSyncAttempt(ctx context.Context, kind enums.PaymentKind, reference string, at time.Time) error
}

type statusQuerier interface {
	QueryStatus(ctx context.Context, query mobilemoney.StatusQuery) (*mobilemoney.PaymentResult, error)
}

type statusSyncer interface {
	Apply(ctx context.Context, kind enums.PaymentKind, dependentID string, obs payments.Observation, opts payments.SyncOptions) (*payments.SyncOutcome, error)
}

type PaymentReconcileJobParams struct {
	Logger    *logger.Logger
	Payments  pendingPaymentStore
	Gateway   statusQuerier
	Syncer    statusSyncer
	Metrics   *metrics.PaymentMetrics
	BatchSize int
	Kinds     []enums.PaymentKind
	Now       func() time.Time
}

// NewPaymentReconcileJob builds the sweep that re-queries pending payments
// whose callback never arrived.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("syncer required")
	}
	batch := params.BatchSize
	if batch <= 0 || batch > config.MaxSweepBatchSize {
		batch = config.MaxSweepBatchSize
	}
	kinds := params.Kinds
	if len(kinds) == 0 {
		kinds = enums.PaymentKinds()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &paymentReconcileJob{
		logg:     params.Logger,
		payments: params.Payments,
		gateway:  params.Gateway,
		syncer:   params.Syncer,
		metrics:  params.Metrics,
		batch:    batch,
		kinds:    kinds,
		now:      now,
	}, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	payments pendingPaymentStore
	gateway  statusQuerier
	syncer   statusSyncer
	metrics  *metrics.PaymentMetrics
	batch    int
	kinds    []enums.PaymentKind
	now      func() time.Time
}

func (j *paymentReconcileJob) Name() string { return paymentReconcileJobName }

// Run sweeps every collection. A failing record is logged and left pending; only
// a collection that cannot be listed makes the run fail.
func (j *paymentReconcileJob) Run(ctx context.Context) error {
	var errs error
	for _, kind := range j.kinds {
		if err := j.sweepKind(ctx, kind); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (j *paymentReconcileJob) sweepKind(ctx context.Context, kind enums.PaymentKind) error {
	kindCtx := j.logg.WithField(ctx, "kind", kind.String())
	records, err := j.payments.ListPending(kindCtx, kind, j.batch)
	if err != nil {
		j.logg.Error(kindCtx, "list pending payments failed", err)
		return fmt.Errorf("list pending %s payments: %w", kind, err)
	}

	updated, failed := 0, 0
	for i := range records {
		moved, err := j.reconcileRecord(kindCtx, kind, &records[i])
		if err != nil {
			failed++
			continue
		}
		if moved {
			updated++
		}
	}

	j.logg.Info(j.logg.WithFields(kindCtx, map[string]any{
		"scanned": len(records),
		"updated": updated,
		"failed":  failed,
	}), "payment sweep complete")
	return nil
}

func (j *paymentReconcileJob) reconcileRecord(ctx context.Context, kind enums.PaymentKind, record *models.PaymentRecord) (bool, error) {
	recCtx := j.logg.WithPaymentReference(ctx, record.Reference)
	result, err := j.gateway.QueryStatus(recCtx, mobilemoney.StatusQuery{ID: record.PaymentID, Reference: record.Reference})
	if err != nil {
		j.logg.Warn(j.logg.WithField(recCtx, "error", err.Error()), "gateway status query failed; leaving payment pending")
		j.recordFailure(recCtx, kind, record.Reference)
		return false, err
	}

	paymentID := result.ID
	if paymentID == "" {
		paymentID = record.PaymentID
	}
	outcome, err := j.syncer.Apply(recCtx, kind, record.DependentID, payments.Observation{
		Reference:  record.Reference,
		PaymentID:  paymentID,
		Status:     result.Status,
		CustomerID: result.CustomerID,
	}, payments.SyncOptions{Source: payments.SourceSweep, Sweep: true})
	if err != nil {
		j.logg.Error(recCtx, "propagate swept payment status failed", err)
		j.recordFailure(recCtx, kind, record.Reference)
		return false, err
	}
	return outcome != nil && outcome.PaymentUpdated, nil
}

func (j *paymentReconcileJob) recordFailure(ctx context.Context, kind enums.PaymentKind, reference string) {
	j.metrics.IncReconcileError(kind.String())
	if err := j.payments.MarkSyncAttempt(ctx, kind, reference, j.now().UTC()); err != nil {
		j.logg.Error(ctx, "record sync attempt failed", err)
	}
}
