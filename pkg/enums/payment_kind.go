package enums

import (
	"fmt"
	"strings"
)

// PaymentKind selects which payment/dependent table pair a checkout writes to.
type PaymentKind string

const (
	PaymentKindSubscription PaymentKind = "subscription"
	PaymentKindPartner      PaymentKind = "partner"
)

var validPaymentKinds = []PaymentKind{
	PaymentKindSubscription,
	PaymentKindPartner,
}

// PaymentKinds lists every kind in sweep order.
func PaymentKinds() []PaymentKind {
	kinds := make([]PaymentKind, len(validPaymentKinds))
	copy(kinds, validPaymentKinds)
	return kinds
}

// String implements fmt.Stringer.
func (k PaymentKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known PaymentKind.
func (k PaymentKind) IsValid() bool {
	for _, candidate := range validPaymentKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// PaymentsTable returns the payment record table for the kind.
func (k PaymentKind) PaymentsTable() string {
	if k == PaymentKindPartner {
		return "partner_payments"
	}
	return "subscription_payments"
}

// DependentsTable returns the dependent record table for the kind.
func (k PaymentKind) DependentsTable() string {
	if k == PaymentKindPartner {
		return "partner_subscriptions"
	}
	return "user_subscriptions"
}

// ParsePaymentKind converts raw input into a PaymentKind. Empty input means subscription.
func ParsePaymentKind(value string) (PaymentKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return PaymentKindSubscription, nil
	}
	for _, candidate := range validPaymentKinds {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment kind %q", value)
}
