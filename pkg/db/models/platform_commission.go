package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

// PlatformCommission is a commission owed to a payee, handed to the payout
// process once it moves to processing.
type PlatformCommission struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PaymentReference string                 `gorm:"column:payment_reference;not null" json:"paymentReference"`
	PayeeID          string                 `gorm:"column:payee_id;not null" json:"payeeId"`
	Amount           decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency         string                 `gorm:"column:currency;not null" json:"currency"`
	Status           enums.CommissionStatus `gorm:"column:status;not null;index" json:"status"`
	PayoutEnqueuedAt *time.Time             `gorm:"column:payout_enqueued_at" json:"payoutEnqueuedAt,omitempty"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (PlatformCommission) TableName() string { return "platform_commissions" }
