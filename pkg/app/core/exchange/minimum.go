package exchange

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
)

// MinimumPolicy derives the smallest accepted amount or price for a token
// from its decimal precision.
type MinimumPolicy func(decimals uint8) uint256.Int

// clampDecimals bounds decimals to the registry maximum so 10^decimals
// never wraps.
func clampDecimals(decimals uint8) uint8 {
	return min(decimals, token.MaxDecimals)
}

func pow10(n uint8) uint256.Int {
	var out uint256.Int
	out.Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
	return out
}

// SqrtPolicy accepts quantities from 10^(decimals/2) minimal units upward.
func SqrtPolicy(decimals uint8) uint256.Int { return pow10(clampDecimals(decimals) / 2) }

// UnitPolicy accepts any positive quantity.
func UnitPolicy(uint8) uint256.Int { return *uint256.NewInt(1) }

// ExponentPolicy returns a policy with a fixed floor of 10^n minimal units,
// capped at one whole token.
func ExponentPolicy(n uint8) MinimumPolicy {
	return func(decimals uint8) uint256.Int {
		return pow10(min(n, clampDecimals(decimals)))
	}
}

// ParseMinimumPolicy accepts "sqrt", "unit" or "exponent:N".
func ParseMinimumPolicy(s string) (MinimumPolicy, error) {
	switch {
	case s == "" || s == "sqrt":
		return SqrtPolicy, nil
	case s == "unit":
		return UnitPolicy, nil
	case strings.HasPrefix(s, "exponent:"):
		n, err := strconv.ParseUint(strings.TrimPrefix(s, "exponent:"), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("minimum policy %q: %w", s, err)
		}
		return ExponentPolicy(uint8(n)), nil
	default:
		return nil, fmt.Errorf("unknown minimum policy %q", s)
	}
}
