package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and which payload
// struct its envelope data decodes into.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row that passed validation, with its typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			return payload, json.Unmarshal(raw, payload)
		},
	}
}

// EventRegistry routes payment lifecycle events to the payments topic and
// commission payout requests to the commissions topic.
type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	payments := strings.TrimSpace(cfg.PaymentsTopic)
	commissions := strings.TrimSpace(cfg.CommissionsTopic)
	switch {
	case payments == "":
		return nil, errors.New("payments topic is required")
	case commissions == "":
		return nil, errors.New("commissions topic is required")
	}

	reg := &EventRegistry{routes: map[enums.OutboxEventType]EventDescriptor{}}
	for _, d := range []EventDescriptor{
		route[payloads.PaymentInitiatedEvent](enums.EventPaymentInitiated, enums.AggregatePayment, payments),
		route[payloads.PaymentStatusChangedEvent](enums.EventPaymentStatusChanged, enums.AggregatePayment, payments),
		route[payloads.CommissionPayoutRequestedEvent](enums.EventCommissionPayoutRequested, enums.AggregateCommission, commissions),
	} {
		reg.routes[d.EventType] = d
	}
	return reg, nil
}

// Resolve checks the row against its registered route and decodes the payload.
// Every failure is non-retryable: the stored bytes will not change.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	d, ok := r.routes[row.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", row.EventType)
	case d.AggregateType != row.AggregateType:
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", d.AggregateType, row.AggregateType)
	case strings.TrimSpace(row.AggregateID) == "":
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", row.EventType)
	}
	payload, err := d.decode(envelope.Data)
	if err != nil {
		return nil, nonRetryable("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: d, Envelope: envelope, Payload: payload}, nil
}
