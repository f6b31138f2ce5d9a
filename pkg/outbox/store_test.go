package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return db
}

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	db := setupOutboxDB(t)
	emitter := NewEmitter(NewStore(db), nil)

	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := db.Transaction(func(tx *gorm.DB) error {
		return emitter.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPaymentStatusChanged,
			AggregateType: enums.AggregatePayment,
			AggregateID:   "ref-1",
			Actor:         &ActorRef{Source: "sweep"},
			Data:          map[string]string{"status": "SUCCESS"},
			OccurredAt:    occurred,
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "ref-1", rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.True(t, envelope.OccurredAt.Equal(occurred))
	assert.JSONEq(t, `{"status":"SUCCESS"}`, string(envelope.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	db := setupOutboxDB(t)
	emitter := NewEmitter(NewStore(db), nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := emitter.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   "ref-2",
			Data:          map[string]string{},
		}); err != nil {
			return err
		}
		return errors.New("store failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	db := setupOutboxDB(t)
	emitter := NewEmitter(NewStore(db), nil)

	require.ErrorIs(t, emitter.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventPaymentInitiated, AggregateID: "x"}), errNoTx)
	require.ErrorContains(t, emitter.Emit(context.Background(), db, DomainEvent{EventType: "bogus", AggregateID: "x"}), "unknown outbox event type")
	require.EqualError(t, emitter.Emit(context.Background(), db, DomainEvent{EventType: enums.EventPaymentInitiated}), "aggregate id required")
	require.EqualError(t, emitter.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventCommissionPayoutRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   "c-1",
	}), "commission_payout_requested belongs to commission, not payment")
}

func TestEmitDerivesAggregateType(t *testing.T) {
	db := setupOutboxDB(t)
	emitter := NewEmitter(NewStore(db), nil)

	require.NoError(t, emitter.Emit(context.Background(), db, DomainEvent{
		EventType:   enums.EventCommissionPayoutRequested,
		AggregateID: "c-2",
		Data:        map[string]string{},
	}))
	var row models.OutboxEvent
	require.NoError(t, db.Take(&row).Error)
	assert.Equal(t, enums.AggregateCommission, row.AggregateType)
}

func TestStorePublishLifecycle(t *testing.T) {
	db := setupOutboxDB(t)
	store := NewStore(db)
	emitter := NewEmitter(store, nil)

	for _, ref := range []string{"a", "b", "c"} {
		require.NoError(t, emitter.Emit(context.Background(), db, DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   ref,
			Data:          map[string]string{"ref": ref},
		}))
	}

	rows, err := store.Claim(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, store.Published(db, rows[0].ID))
	require.NoError(t, store.Failed(db, rows[1].ID, errors.New("transient")))
	require.NoError(t, store.Park(db, rows[2].ID, errors.New("bad payload"), 3))

	remaining, err := store.Claim(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, rows[1].ID, remaining[0].ID)
	assert.Equal(t, 1, remaining[0].AttemptCount)
	require.NotNil(t, remaining[0].LastError)
	assert.Equal(t, "transient", *remaining[0].LastError)
}

func TestStorePurgeKeepsParkedRows(t *testing.T) {
	db := setupOutboxDB(t)
	store := NewStore(db)
	old := time.Now().UTC().AddDate(0, 0, -40)
	rows := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventPaymentInitiated, AggregateType: enums.AggregatePayment, AggregateID: "sent", Payload: []byte(`{}`), PublishedAt: &old},
		{ID: uuid.New(), EventType: enums.EventPaymentInitiated, AggregateType: enums.AggregatePayment, AggregateID: "parked", Payload: []byte(`{}`), AttemptCount: 10},
	}
	require.NoError(t, db.Create(&rows).Error)

	deleted, err := store.PurgePublished(context.Background(), db, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var left []models.OutboxEvent
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, "parked", left[0].AggregateID)
}

func TestDeadLetterTruncatesMessage(t *testing.T) {
	db := setupOutboxDB(t)
	store := NewStore(db)

	eventID := uuid.New()
	ref := "RW-77"
	long := strings.Repeat("x", deadLetterMessageLimit+200)
	err := db.Transaction(func(tx *gorm.DB) error {
		return store.DeadLetter(tx, models.OutboxDLQ{
			EventID:          eventID,
			EventType:        enums.EventCommissionPayoutRequested,
			AggregateType:    enums.AggregateCommission,
			AggregateID:      "c-1",
			PaymentReference: &ref,
			Payload:          []byte(`{}`),
			ErrorReason:      enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:     &long,
			FailedAt:         time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	found, err := store.DeadLettered(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, *found.ErrorMessage, deadLetterMessageLimit)
	assert.Equal(t, "RW-77", *found.PaymentReference)

	missing, err := store.DeadLettered(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
