package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
)

// PaymentRepository reads and writes payment records for either kind.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	if tx == nil {
		return r
	}
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) table(ctx context.Context, kind enums.PaymentKind) *gorm.DB {
	return r.db.WithContext(ctx).Table(kind.PaymentsTable())
}

// Create inserts a new payment record. Each checkout attempt is its own row;
// a reused reference fails rather than merging.
func (r *PaymentRepository) Create(ctx context.Context, kind enums.PaymentKind, record *models.PaymentRecord) error {
	if record == nil || record.Reference == "" {
		return errors.New("payment reference required")
	}
	if err := r.table(ctx, kind).Create(record).Error; err != nil {
		return fmt.Errorf("insert %s %s: %w", kind.PaymentsTable(), record.Reference, err)
	}
	return nil
}

// FindByReference loads one payment record.
func (r *PaymentRepository) FindByReference(ctx context.Context, kind enums.PaymentKind, reference string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.table(ctx, kind).Where("reference = ?", reference).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found").
				WithDetails(map[string]any{"reference": reference})
		}
		return nil, fmt.Errorf("load payment %s: %w", reference, err)
	}
	return &record, nil
}

// ListPending returns at most limit PENDING records. Records never attempted
// come first, then the least recently attempted, so a record that keeps failing
// cannot hold the head of the queue.
func (r *PaymentRepository) ListPending(ctx context.Context, kind enums.PaymentKind, limit int) ([]models.PaymentRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	var records []models.PaymentRecord
	err := r.table(ctx, kind).
		Where("status = ?", enums.PaymentStatusPending).
		Order("last_sync_attempt_at IS NOT NULL").
		Order("last_sync_attempt_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list pending %s: %w", kind.PaymentsTable(), err)
	}
	return records, nil
}

// StatusUpdate is one observation of a payment's provider status.
type StatusUpdate struct {
	Status     enums.PaymentStatus
	PaymentID  string
	CustomerID *string
	ObservedAt time.Time
	// FromSweep stamps the sweep bookkeeping columns.
	FromSweep bool
}

// UpdateStatus applies an observation to a PENDING record and reports whether the
// status moved. Terminal records are never rewritten. A PENDING observation only
// touches the bookkeeping columns.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, kind enums.PaymentKind, reference string, update StatusUpdate) (bool, error) {
	if !update.Status.IsValid() {
		return false, fmt.Errorf("invalid payment status %q", update.Status)
	}
	observed := update.ObservedAt.UTC()
	values := map[string]any{"updated_at": observed}
	if update.FromSweep {
		values["last_synced_at"] = observed
		values["last_sync_attempt_at"] = observed
		values["sync_attempts"] = gorm.Expr("sync_attempts + 1")
	}
	if update.Status != enums.PaymentStatusPending {
		values["status"] = update.Status
	}
	if update.CustomerID != nil && *update.CustomerID != "" {
		values["customer_id"] = *update.CustomerID
	}
	if update.PaymentID != "" {
		values["payment_id"] = update.PaymentID
	}
	res := r.table(ctx, kind).
		Where("reference = ? AND status = ?", reference, enums.PaymentStatusPending).
		Updates(values)
	if res.Error != nil {
		return false, fmt.Errorf("update %s %s: %w", kind.PaymentsTable(), reference, res.Error)
	}
	return res.RowsAffected > 0 && update.Status != enums.PaymentStatusPending, nil
}

// MarkSyncAttempt records a failed sweep attempt; the record stays PENDING.
func (r *PaymentRepository) MarkSyncAttempt(ctx context.Context, kind enums.PaymentKind, reference string, at time.Time) error {
	err := r.table(ctx, kind).
		Where("reference = ? AND status = ?", reference, enums.PaymentStatusPending).
		Updates(map[string]any{
			"last_sync_attempt_at": at.UTC(),
			"sync_attempts":        gorm.Expr("sync_attempts + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("mark sync attempt %s: %w", reference, err)
	}
	return nil
}

// DependentRepository reads and writes the per-user dependent records.
type DependentRepository struct {
	db *gorm.DB
}

func NewDependentRepository(db *gorm.DB) *DependentRepository {
	return &DependentRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *DependentRepository) WithTx(tx *gorm.DB) *DependentRepository {
	if tx == nil {
		return r
	}
	return &DependentRepository{db: tx}
}

func (r *DependentRepository) table(ctx context.Context, kind enums.PaymentKind) *gorm.DB {
	return r.db.WithContext(ctx).Table(kind.DependentsTable())
}

// FindByUserID loads the user's dependent record, or a NOT_FOUND error.
func (r *DependentRepository) FindByUserID(ctx context.Context, kind enums.PaymentKind, userID string) (*models.DependentRecord, error) {
	var record models.DependentRecord
	err := r.table(ctx, kind).Where("user_id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found").
				WithDetails(map[string]any{"userId": userID, "kind": kind})
		}
		return nil, fmt.Errorf("load %s %s: %w", kind.DependentsTable(), userID, err)
	}
	return &record, nil
}

var checkoutMergeColumns = []string{
	"plan_id",
	"plan_name",
	"partner_name",
	"status",
	"payment_reference",
	"payment_id",
	"customer_id",
	"last_payment_status",
	"masked_msisdn",
	"amount",
	"currency",
	"network",
	"updated_at",
}

// Upsert merges the checkout's view of the dependent record keyed by user id.
// created_at survives the merge; current_period_start survives unless the
// checkout itself activated the record.
func (r *DependentRepository) Upsert(ctx context.Context, kind enums.PaymentKind, record *models.DependentRecord) error {
	if record == nil || record.UserID == "" {
		return errors.New("dependent user id required")
	}
	columns := append([]string(nil), checkoutMergeColumns...)
	if record.CurrentPeriodStart != nil {
		columns = append(columns, "current_period_start")
	}
	err := r.table(ctx, kind).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", kind.DependentsTable(), record.UserID, err)
	}
	return nil
}

// SaveDerived merges the fields the status mapping owns.
func (r *DependentRepository) SaveDerived(ctx context.Context, kind enums.PaymentKind, record *models.DependentRecord) error {
	if record == nil || record.UserID == "" {
		return errors.New("dependent user id required")
	}
	values := map[string]any{
		"status":               record.Status,
		"last_payment_status":  record.LastPaymentStatus,
		"current_period_start": record.CurrentPeriodStart,
		"updated_at":           record.UpdatedAt,
	}
	if record.CustomerID != nil {
		values["customer_id"] = *record.CustomerID
	}
	err := r.table(ctx, kind).
		Where("user_id = ?", record.UserID).
		Updates(values).Error
	if err != nil {
		return fmt.Errorf("update %s %s: %w", kind.DependentsTable(), record.UserID, err)
	}
	return nil
}
