package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

// DependentRecord is a user's current subscription (or partner subscription).
// PaymentReference is a weak pointer to the funding PaymentRecord; nothing
// cascades from it.
type DependentRecord struct {
	UserID             string                `gorm:"column:user_id;primaryKey" json:"userId"`
	PlanID             string                `gorm:"column:plan_id;not null" json:"planId"`
	PlanName           string                `gorm:"column:plan_name;not null" json:"planName"`
	PartnerName        *string               `gorm:"column:partner_name" json:"partnerName,omitempty"`
	Status             enums.DependentStatus `gorm:"column:status;not null" json:"status"`
	PaymentReference   string                `gorm:"column:payment_reference" json:"paymentReference"`
	PaymentID          string                `gorm:"column:payment_id" json:"paymentId"`
	CustomerID         *string               `gorm:"column:customer_id" json:"customerId,omitempty"`
	LastPaymentStatus  enums.PaymentStatus   `gorm:"column:last_payment_status" json:"lastPaymentStatus"`
	MaskedMSISDN       string                `gorm:"column:masked_msisdn" json:"maskedMsisdn"`
	Amount             decimal.Decimal       `gorm:"column:amount;type:numeric(12,2)" json:"amount"`
	Currency           string                `gorm:"column:currency" json:"currency"`
	Network            enums.Network         `gorm:"column:network" json:"network"`
	CurrentPeriodStart *time.Time            `gorm:"column:current_period_start" json:"currentPeriodStart,omitempty"`
	CreatedAt          time.Time             `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt          time.Time             `gorm:"column:updated_at" json:"updatedAt"`
}
