package payments

import (
	"strings"

	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
)

const (
	minMSISDNDigits = 9
	maxMSISDNDigits = 15
	msisdnVisible   = 4
	msisdnMaskWidth = 7
)

// NormalizeNetwork maps operator input such as "airtel" or "Airtel" to the enum.
func NormalizeNetwork(raw string) (enums.Network, error) {
	network, err := enums.ParseNetwork(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mobileMoneyNetwork must be one of AIRTEL, MTN, ZAMTEL").
			WithDetails(map[string]any{"mobileMoneyNetwork": raw})
	}
	return network, nil
}

// NormalizeMSISDN strips separators and a leading "+" and checks the digit count.
func NormalizeMSISDN(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0, r == ' ', r == '-', r == '(', r == ')':
		default:
			return "", pkgerrors.New(pkgerrors.CodeValidation, "msisdn must contain only digits")
		}
	}
	digits := b.String()
	if len(digits) < minMSISDNDigits || len(digits) > maxMSISDNDigits {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "msisdn must have between 9 and 15 digits")
	}
	return digits, nil
}

// MaskMSISDN keeps the last four digits behind a fixed seven-star mask:
// 0977123456 -> *******3456. Inputs of four digits or fewer are fully masked.
func MaskMSISDN(msisdn string) string {
	digits := strings.TrimSpace(msisdn)
	if len(digits) <= msisdnVisible {
		return strings.Repeat("*", msisdnMaskWidth+msisdnVisible)
	}
	return strings.Repeat("*", msisdnMaskWidth) + digits[len(digits)-msisdnVisible:]
}
