package token

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var ErrPrecision = errors.New("amount has more decimal places than the token allows")

// ToMinimal converts a human amount (e.g. 1.5) into minimal units for a
// token with the given decimals.
func ToMinimal(d decimal.Decimal, decimals uint8) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", d)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrPrecision, d, decimals)
	}
	v, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %s overflows 256 bits", d)
	}
	return v, nil
}

// ParseAmount parses a human decimal string into minimal units.
func ParseAmount(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return ToMinimal(d, decimals)
}

// FromMinimal converts minimal units back into a human amount.
func FromMinimal(v *uint256.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals))
}

// ParseMinimal parses a base-10 string of minimal units.
func ParseMinimal(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse minimal amount %q: %w", s, err)
	}
	return v, nil
}
