package claims

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// MaxDecimals bounds the token precision so that one whole unit fits in a uint64.
const MaxDecimals = 19

// Amount is an entitlement expressed in the ledger's base unit.
type Amount uint64

// Uint64 returns the raw base-unit quantity.
func (a Amount) Uint64() uint64 { return uint64(a) }

// Format renders the amount as a decimal string in whole tokens with trailing zeros removed.
func (a Amount) Format(decimals uint8) string {
	digits := strconv.FormatUint(uint64(a), 10)
	if decimals == 0 {
		return digits
	}
	width := int(decimals)
	if len(digits) <= width {
		digits = strings.Repeat("0", width-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-width]
	frac := strings.TrimRight(digits[len(digits)-width:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// ParseAmount converts a decimal token quantity such as "10" or "0.25" into base units.
// Signs, exponents and more fractional digits than the token supports are rejected, as is zero.
func ParseAmount(text string, decimals uint8) (Amount, error) {
	if decimals > MaxDecimals {
		return 0, fmt.Errorf("decimals %d exceeds %d", decimals, MaxDecimals)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("amount required")
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid amount %q", text)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("invalid amount %q", text)
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return 0, fmt.Errorf("amount %q has more than %d fractional digits", text, decimals)
	}
	combined := strings.TrimLeft(whole+frac+strings.Repeat("0", int(decimals)-len(frac)), "0")
	if combined == "" {
		return 0, fmt.Errorf("amount must be positive")
	}
	value, err := uint256.FromDecimal(combined)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", text, err)
	}
	if !value.IsUint64() {
		return 0, fmt.Errorf("amount %q overflows base units", text)
	}
	return Amount(value.Uint64()), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
