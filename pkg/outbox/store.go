package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
)

// dead-letter messages are gateway or Pub/Sub errors; some embed whole responses
const deadLetterMessageLimit = 1024

var errNoTx = errors.New("transaction required")

// Store owns outbox_events and outbox_dlq. Every write takes the caller's
// transaction so a row lands or settles together with the state it describes.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Enqueue(tx *gorm.DB, row models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&row).Error
}

// Claim returns the oldest unpublished rows with attempts left, in insert
// order. Postgres row locks let a second publisher replica skip past them.
func (s *Store) Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at, id").
		Limit(limit)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
	}
	var rows []models.OutboxEvent
	return rows, q.Find(&rows).Error
}

func (s *Store) Published(tx *gorm.DB, id uuid.UUID) error {
	return s.settle(tx, id, map[string]any{"published_at": time.Now().UTC(), "last_error": nil})
}

// Failed bumps the attempt count; the row stays claimable until it runs out.
func (s *Store) Failed(tx *gorm.DB, id uuid.UUID, cause error) error {
	return s.settle(tx, id, map[string]any{
		"last_error":    describe(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// Park sets the attempt count to the ceiling so Claim never returns the row
// again. It stays unpublished, so retention keeps it too.
func (s *Store) Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error {
	return s.settle(tx, id, map[string]any{"last_error": describe(cause), "attempt_count": ceiling})
}

func (s *Store) settle(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func (s *Store) DeadLetter(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errNoTx
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > deadLetterMessageLimit {
		short := (*entry.ErrorMessage)[:deadLetterMessageLimit]
		entry.ErrorMessage = &short
	}
	return tx.Create(&entry).Error
}

// DeadLettered returns nil, nil for an event that never reached the DLQ.
func (s *Store) DeadLettered(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PurgePublished deletes rows published before cutoff. Parked rows never
// have published_at set and are left for operators.
func (s *Store) PurgePublished(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errNoTx
	}
	res := tx.WithContext(ctx).
		Where("published_at < ?", cutoff.UTC()).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func describe(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
