package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

// PaymentInitiatedEvent is emitted when a checkout charge is recorded.
type PaymentInitiatedEvent struct {
	Reference    string              `json:"reference"`
	PaymentID    string              `json:"payment_id"`
	UserID       string              `json:"user_id"`
	Kind         enums.PaymentKind   `json:"kind"`
	PlanID       string              `json:"plan_id"`
	Amount       decimal.Decimal     `json:"amount"`
	Currency     string              `json:"currency"`
	Network      enums.Network       `json:"network"`
	MaskedMSISDN string              `json:"masked_msisdn"`
	Status       enums.PaymentStatus `json:"status"`
}

// PaymentStatusChangedEvent is emitted when a pending payment reaches a terminal status.
type PaymentStatusChangedEvent struct {
	Reference       string                `json:"reference"`
	UserID          string                `json:"user_id"`
	Kind            enums.PaymentKind     `json:"kind"`
	PreviousStatus  enums.PaymentStatus   `json:"previous_status"`
	Status          enums.PaymentStatus   `json:"status"`
	DependentStatus enums.DependentStatus `json:"dependent_status,omitempty"`
	Source          string                `json:"source"`
	ObservedAt      time.Time             `json:"observed_at"`
}

// CommissionPayoutRequestedEvent hands a commission to the payout process.
type CommissionPayoutRequestedEvent struct {
	CommissionID     string          `json:"commission_id"`
	PaymentReference string          `json:"payment_reference"`
	PayeeID          string          `json:"payee_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	EnqueuedAt       time.Time       `json:"enqueued_at"`
}
