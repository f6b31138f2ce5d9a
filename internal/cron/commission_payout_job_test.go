package cron

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rentwise-payments/internal/commissions"
	"github.com/angelmondragon/rentwise-payments/pkg/db"
	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox"
)

type stubEnqueuer struct {
	count int
	err   error
}

func (s stubEnqueuer) EnqueuePayouts(context.Context) (int, error) { return s.count, s.err }

func TestCommissionPayoutJobWrapsServiceError(t *testing.T) {
	job, err := NewCommissionPayoutJob(CommissionPayoutJobParams{
		Logger:  logger.Nop(),
		Service: stubEnqueuer{err: errors.New("db down")},
	})
	require.NoError(t, err)
	assert.Equal(t, "commission-payout", job.Name())
	require.ErrorContains(t, job.Run(context.Background()), "db down")
}

func TestCommissionPayoutJobFlipsOneBatch(t *testing.T) {
	conn := setupCronDB(t)
	repo := commissions.NewRepository(conn)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		require.NoError(t, repo.Create(context.Background(), &models.PlatformCommission{
			PaymentReference: fmt.Sprintf("ref-%d", i),
			PayeeID:          "partner-1",
			Amount:           decimal.RequireFromString("40.00"),
			Currency:         "ZMW",
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
		}))
	}
	svc, err := commissions.NewService(commissions.ServiceParams{
		DB:     db.NewFromGorm(conn),
		Repo:   repo,
		Outbox: outbox.NewEmitter(outbox.NewStore(conn), logger.Nop()),
		Logger: logger.Nop(),
		Now:    func() time.Time { return base.Add(24 * time.Hour) },
	})
	require.NoError(t, err)
	job, err := NewCommissionPayoutJob(CommissionPayoutJobParams{Logger: logger.Nop(), Service: svc})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))

	var processing int64
	require.NoError(t, conn.Model(&models.PlatformCommission{}).
		Where("status = ?", enums.CommissionStatusProcessing).Count(&processing).Error)
	assert.EqualValues(t, 20, processing)
}
