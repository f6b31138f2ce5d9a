package commissions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

// Repository persists platform commissions.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create records a commission owed to a payee.
func (r *Repository) Create(ctx context.Context, commission *models.PlatformCommission) error {
	if commission.ID == uuid.Nil {
		commission.ID = uuid.New()
	}
	if commission.Status == "" {
		commission.Status = enums.CommissionStatusPending
	}
	if err := r.db.WithContext(ctx).Create(commission).Error; err != nil {
		return fmt.Errorf("insert commission: %w", err)
	}
	return nil
}

// ListPending returns up to limit pending commissions, oldest first. On postgres
// the rows stay locked for the surrounding transaction and concurrent workers
// skip them.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.PlatformCommission, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.CommissionStatusPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.PlatformCommission
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pending commissions: %w", err)
	}
	return rows, nil
}

// MarkProcessing flips the given pending commissions to processing and stamps
// the enqueue time. Rows no longer pending are left alone.
func (r *Repository) MarkProcessing(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.PlatformCommission{}).
		Where("id IN ? AND status = ?", ids, enums.CommissionStatusPending).
		Updates(map[string]any{
			"status":             enums.CommissionStatusProcessing,
			"payout_enqueued_at": at.UTC(),
			"updated_at":         at.UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("mark commissions processing: %w", res.Error)
	}
	return res.RowsAffected, nil
}
