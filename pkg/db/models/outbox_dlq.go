package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

// OutboxDLQ keeps outbox rows the publisher gave up on, for operators to replay.
// PaymentReference lets support find every parked event of one checkout.
type OutboxDLQ struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	EventID          uuid.UUID                  `gorm:"column:event_id;type:uuid;not null"`
	EventType        enums.OutboxEventType      `gorm:"column:event_type;not null"`
	AggregateType    enums.OutboxAggregateType  `gorm:"column:aggregate_type;not null"`
	AggregateID      string                     `gorm:"column:aggregate_id;not null"`
	PaymentReference *string                    `gorm:"column:payment_reference"`
	Payload          json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorReason      enums.OutboxDLQErrorReason `gorm:"column:error_reason;not null"`
	ErrorMessage     *string                    `gorm:"column:error_message"`
	AttemptCount     int                        `gorm:"column:attempt_count;not null;default:0"`
	FailedAt         time.Time                  `gorm:"column:failed_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }
