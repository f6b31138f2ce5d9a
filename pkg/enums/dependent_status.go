package enums

import "fmt"

// DependentStatus is the activation state of a subscription derived from its payment.
type DependentStatus string

const (
	DependentStatusPending DependentStatus = "pending"
	DependentStatusActive  DependentStatus = "active"
	DependentStatusPastDue DependentStatus = "past_due"
)

var validDependentStatuses = []DependentStatus{
	DependentStatusPending,
	DependentStatusActive,
	DependentStatusPastDue,
}

// String implements fmt.Stringer.
func (s DependentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DependentStatus.
func (s DependentStatus) IsValid() bool {
	for _, candidate := range validDependentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseDependentStatus converts raw input into a DependentStatus.
func ParseDependentStatus(value string) (DependentStatus, error) {
	for _, candidate := range validDependentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dependent status %q", value)
}
