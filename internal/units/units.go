// Package units converts between whole-token decimal amounts and the integer
// base units every balance is kept in.
package units

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals matches the native gas token of the target chain.
const DefaultDecimals = 18

// MaxDecimals bounds the scale so a single whole token still fits in uint64.
const MaxDecimals = 19

var (
	ErrNegative    = errors.New("amount must not be negative")
	ErrTooPrecise  = errors.New("amount has more fractional digits than the token")
	ErrOverflow    = errors.New("amount does not fit in base units")
	ErrBadDecimals = fmt.Errorf("decimals must be between 0 and %d", MaxDecimals)
	maxUnits       = decimal.NewFromUint64(math.MaxUint64)
)

// Converter scales between whole tokens and base units.
type Converter struct {
	decimals int32
}

// New returns a converter for a token with the given number of decimals.
func New(decimals int) (Converter, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return Converter{}, ErrBadDecimals
	}
	return Converter{decimals: int32(decimals)}, nil
}

// Decimals reports the token scale.
func (c Converter) Decimals() int { return int(c.decimals) }

// One is the number of base units in one whole token.
func (c Converter) One() uint64 {
	return decimal.New(1, c.decimals).BigInt().Uint64()
}

// ToUnits converts a whole-token amount to base units. The amount must be
// representable exactly.
func (c Converter) ToUnits(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() {
		return 0, ErrNegative
	}
	scaled := amount.Shift(c.decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if scaled.GreaterThan(maxUnits) {
		return 0, ErrOverflow
	}
	return scaled.BigInt().Uint64(), nil
}

// Parse converts a decimal string such as "0.00001" to base units.
func (c Converter) Parse(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	u, err := c.ToUnits(d)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return u, nil
}

// FromUnits converts base units to whole tokens.
func (c Converter) FromUnits(units uint64) decimal.Decimal {
	return decimal.NewFromUint64(units).Shift(-c.decimals)
}

// Format renders base units as a whole-token string without trailing zeros.
func (c Converter) Format(units uint64) string {
	return c.FromUnits(units).String()
}

// Percent renders part/total as a percentage with two decimals.
func Percent(part, total uint64) string {
	if total == 0 {
		return "0.00"
	}
	return decimal.NewFromUint64(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromUint64(total)).
		StringFixed(2)
}
