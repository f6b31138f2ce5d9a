package commissions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox/payloads"
)

const defaultBatchSize = 20

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams configure the payout handoff.
type ServiceParams struct {
	DB        txRunner
	Repo      *Repository
	Outbox    outboxPublisher
	Logger    *logger.Logger
	BatchSize int
	Now       func() time.Time
}

// Service hands pending commissions to the downstream payout process.
type Service struct {
	db        txRunner
	repo      *Repository
	outbox    outboxPublisher
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:        params.DB,
		repo:      params.Repo,
		outbox:    params.Outbox,
		logg:      params.Logger,
		batchSize: batch,
		now:       now,
	}, nil
}

// EnqueuePayouts moves one batch of pending commissions to processing and emits
// a payout request per row, all in one transaction. It returns the number of
// commissions handed off; an empty queue is not an error.
func (s *Service) EnqueuePayouts(ctx context.Context) (int, error) {
	enqueued := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ListPending(ctx, s.batchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		now := s.now().UTC()
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		if _, err := repo.MarkProcessing(ctx, ids, now); err != nil {
			return err
		}
		for _, row := range rows {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCommissionPayoutRequested,
				AggregateType: enums.AggregateCommission,
				AggregateID:   row.ID.String(),
				Actor:         &outbox.ActorRef{Source: "commission-payout"},
				Data: payloads.CommissionPayoutRequestedEvent{
					CommissionID:     row.ID.String(),
					PaymentReference: row.PaymentReference,
					PayeeID:          row.PayeeID,
					Amount:           row.Amount,
					Currency:         row.Currency,
					EnqueuedAt:       now,
				},
				OccurredAt: now,
			}); err != nil {
				return err
			}
		}
		enqueued = len(rows)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue commission payouts: %w", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "enqueued", enqueued), "commission payouts enqueued")
	return enqueued, nil
}
