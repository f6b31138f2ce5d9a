package enums

import (
	"fmt"
	"strings"
)

// Network is a supported mobile-money operator.
type Network string

const (
	NetworkAirtel Network = "AIRTEL"
	NetworkMTN    Network = "MTN"
	NetworkZamtel Network = "ZAMTEL"
)

var validNetworks = []Network{
	NetworkAirtel,
	NetworkMTN,
	NetworkZamtel,
}

// String implements fmt.Stringer.
func (n Network) String() string {
	return string(n)
}

// IsValid reports whether the value is a known Network.
func (n Network) IsValid() bool {
	for _, candidate := range validNetworks {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNetwork normalizes operator input case-insensitively.
func ParseNetwork(value string) (Network, error) {
	normalized := Network(strings.ToUpper(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("unsupported mobile money network %q", value)
}
