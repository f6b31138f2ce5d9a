package payments

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/metrics"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox/payloads"
)

const (
	SourceCheck   = "check"
	SourceSweep   = "sweep"
	SourceWebhook = "webhook"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Observation is a status the gateway reported for one payment.
type Observation struct {
	Reference  string
	PaymentID  string
	Status     enums.PaymentStatus
	CustomerID *string
}

// SyncOptions describe who observed the status.
type SyncOptions struct {
	Source string
	// Sweep stamps last_synced_at and the attempt counters.
	Sweep bool
}

// SyncOutcome reports what a propagation changed.
type SyncOutcome struct {
	PaymentUpdated   bool
	Dependent        *models.DependentRecord
	DependentChanged bool
	// Superseded is set when the dependent now points at a newer payment.
	Superseded bool
}

// SyncerParams configure a Syncer.
type SyncerParams struct {
	DB         txRunner
	Payments   *PaymentRepository
	Dependents *DependentRepository
	Outbox     eventEmitter
	Metrics    *metrics.PaymentMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

// Syncer propagates an observed payment status to the payment record and its
// dependent record. The on-demand check, the sweep and the webhook share it.
type Syncer struct {
	db         txRunner
	payments   *PaymentRepository
	dependents *DependentRepository
	outbox     eventEmitter
	metrics    *metrics.PaymentMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewSyncer(params SyncerParams) (*Syncer, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Dependents == nil {
		return nil, fmt.Errorf("dependent repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Syncer{
		db:         params.DB,
		payments:   params.Payments,
		dependents: params.Dependents,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        now,
	}, nil
}

// Apply records obs against the payment and re-derives the dependent record of
// dependentID. The payment write lands before the dependent write and both
// commit together. A missing dependent is logged and skipped. Re-applying an
// observation that was already applied changes nothing.
func (s *Syncer) Apply(ctx context.Context, kind enums.PaymentKind, dependentID string, obs Observation, opts SyncOptions) (*SyncOutcome, error) {
	if !obs.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned an unknown payment status").
			WithDetails(map[string]any{"reference": obs.Reference, "status": obs.Status})
	}
	now := s.now().UTC()
	logCtx := s.logg.WithPaymentReference(ctx, obs.Reference)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"kind":           kind,
		"payment_status": obs.Status,
		"source":         opts.Source,
	})

	outcome := &SyncOutcome{}
	err := s.db.WithTx(logCtx, func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		dependents := s.dependents.WithTx(tx)

		moved, err := payments.UpdateStatus(logCtx, kind, obs.Reference, StatusUpdate{
			Status:     obs.Status,
			PaymentID:  obs.PaymentID,
			CustomerID: obs.CustomerID,
			ObservedAt: now,
			FromSweep:  opts.Sweep,
		})
		if err != nil {
			return err
		}
		outcome.PaymentUpdated = moved

		dep, err := dependents.FindByUserID(logCtx, kind, dependentID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				s.logg.Warn(logCtx, "dependent record missing; payment updated alone")
			} else {
				return err
			}
		}
		if dep != nil {
			outcome.Dependent = dep
			if !linkedTo(dep, obs) {
				outcome.Superseded = true
				s.logg.Info(s.logg.WithField(logCtx, "current_reference", dep.PaymentReference),
					"dependent linked to a newer payment; leaving it untouched")
			} else {
				changed := ApplyPaymentStatus(dep, obs.Status, now)
				if obs.CustomerID != nil && *obs.CustomerID != "" &&
					(dep.CustomerID == nil || *dep.CustomerID != *obs.CustomerID) {
					customerID := *obs.CustomerID
					dep.CustomerID = &customerID
					changed = true
				}
				if changed {
					if err := dependents.SaveDerived(logCtx, kind, dep); err != nil {
						return err
					}
				}
				outcome.DependentChanged = changed
			}
		}

		if !moved {
			return nil
		}
		event := payloads.PaymentStatusChangedEvent{
			Reference:      obs.Reference,
			UserID:         dependentID,
			Kind:           kind,
			PreviousStatus: enums.PaymentStatusPending,
			Status:         obs.Status,
			Source:         opts.Source,
			ObservedAt:     now,
		}
		if dep != nil && !outcome.Superseded {
			event.DependentStatus = dep.Status
		}
		return s.outbox.Emit(logCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentStatusChanged,
			AggregateType: enums.AggregatePayment,
			AggregateID:   obs.Reference,
			Actor:         &outbox.ActorRef{UserID: dependentID, Source: opts.Source},
			Data:          event,
			OccurredAt:    now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("propagate payment status: %w", err)
	}

	if outcome.PaymentUpdated {
		s.metrics.IncReconciled(kind.String(), obs.Status.String())
		s.logg.Info(logCtx, "payment status reconciled")
	}
	return outcome, nil
}

func linkedTo(dep *models.DependentRecord, obs Observation) bool {
	if dep.PaymentReference != "" {
		return dep.PaymentReference == obs.Reference
	}
	return dep.PaymentID != "" && dep.PaymentID == obs.PaymentID
}
