// Package amount converts between user-entered decimal strings and integer
// token base units.
package amount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// maxUint256 bounds every amount passed to a uint256 contract argument.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Normalize parses a non-negative decimal string such as "12.5" and scales it
// by 10^decimals. Fractional digits beyond the token's precision are only
// accepted when they are zeros; anything else is rejected rather than
// rounded.
func Normalize(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", domain.ErrInvalidAmount)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && strings.Contains(frac, ".") {
		return nil, fmt.Errorf("%w: %q has more than one decimal point", domain.ErrInvalidAmount, s)
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q has no digits", domain.ErrInvalidAmount, s)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, fmt.Errorf("%w: %q is not a non-negative decimal number", domain.ErrInvalidAmount, s)
	}

	if len(frac) > int(decimals) {
		extra := frac[decimals:]
		if strings.Trim(extra, "0") != "" {
			return nil, fmt.Errorf("%w: %q has more than %d fractional digits", domain.ErrInvalidAmount, s, decimals)
		}
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)
	}
	if v.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("%w: %q overflows uint256", domain.ErrInvalidAmount, s)
	}
	return v, nil
}

// Format renders base units as a canonical decimal string: no leading zeros
// in the integer part and no trailing zeros in the fraction.
func Format(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()

	d := int(decimals)
	if len(digits) <= d {
		digits = strings.Repeat("0", d-len(digits)+1) + digits
	}
	whole, frac := digits[:len(digits)-d], strings.TrimRight(digits[len(digits)-d:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
