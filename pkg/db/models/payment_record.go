package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

// PaymentRecord is one mobile-money charge attempt keyed by the provider reference.
// The same struct backs subscription_payments and partner_payments; callers pick
// the table with PaymentKind.PaymentsTable.
type PaymentRecord struct {
	Reference         string              `gorm:"column:reference;primaryKey" json:"reference"`
	PaymentID         string              `gorm:"column:payment_id;not null" json:"paymentId"`
	UserID            string              `gorm:"column:user_id;not null" json:"userId"`
	DependentID       string              `gorm:"column:dependent_id;not null" json:"dependentId"`
	Kind              enums.PaymentKind   `gorm:"column:kind;not null" json:"kind"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency          string              `gorm:"column:currency;not null" json:"currency"`
	Network           enums.Network       `gorm:"column:network;not null" json:"network"`
	MSISDN            string              `gorm:"column:msisdn;not null" json:"-"`
	MaskedMSISDN      string              `gorm:"column:masked_msisdn;not null" json:"maskedMsisdn"`
	Status            enums.PaymentStatus `gorm:"column:status;not null" json:"status"`
	CustomerID        *string             `gorm:"column:customer_id" json:"customerId,omitempty"`
	Narration         string              `gorm:"column:narration" json:"narration"`
	PlanID            string              `gorm:"column:plan_id" json:"planId"`
	PlanName          string              `gorm:"column:plan_name" json:"planName"`
	CreatedAt         time.Time           `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt         time.Time           `gorm:"column:updated_at" json:"updatedAt"`
	LastSyncedAt      *time.Time          `gorm:"column:last_synced_at" json:"lastSyncedAt,omitempty"`
	LastSyncAttemptAt *time.Time          `gorm:"column:last_sync_attempt_at" json:"lastSyncAttemptAt,omitempty"`
	SyncAttempts      int                 `gorm:"column:sync_attempts;not null;default:0" json:"syncAttempts"`
}
