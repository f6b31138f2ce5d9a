package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

const envelopeVersion = 1

// DomainEvent is what checkout, the status syncer and the payout job hand to
// Emit. Data is marshalled into the envelope as-is.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// normalize fills the aggregate type from the event type and rejects a
// caller that names a different one.
func (e *DomainEvent) normalize() error {
	want := e.EventType.Aggregate()
	switch {
	case want == "":
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	case e.AggregateType == "":
		e.AggregateType = want
	case e.AggregateType != want:
		return fmt.Errorf("%s belongs to %s, not %s", e.EventType, want, e.AggregateType)
	}
	if e.AggregateID == "" {
		return errors.New("aggregate id required")
	}
	return nil
}

// Emitter queues events in the caller's transaction.
type Emitter struct {
	store *Store
	logg  *logger.Logger
}

func NewEmitter(store *Store, logg *logger.Logger) *Emitter {
	return &Emitter{store: store, logg: logg}
}

// Emit writes the event inside tx so it commits or rolls back with the
// payment state change that produced it.
func (e *Emitter) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	if err := event.normalize(); err != nil {
		return err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", event.EventType, err)
	}

	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.Version <= 0 {
		envelope.Version = envelopeVersion
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := e.store.Enqueue(tx, models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}); err != nil {
		return err
	}
	if e.logg != nil && ctx != nil {
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}), "outbox event queued")
	}
	return nil
}
