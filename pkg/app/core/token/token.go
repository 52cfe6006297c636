package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Flags describe what a token allows.
type Flags uint8

const (
	Transferable Flags = 1 << iota
	Fungible
	Finite
	Divisible
)

// DefaultFlags is what genesis tokens get unless configured otherwise.
const DefaultFlags = Transferable | Fungible | Divisible

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

func (f Flags) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	for _, x := range []struct {
		flag Flags
		name string
	}{
		{Transferable, "Transferable"},
		{Fungible, "Fungible"},
		{Finite, "Finite"},
		{Divisible, "Divisible"},
	} {
		if f.Has(x.flag) {
			parts = append(parts, x.name)
		}
	}
	return strings.Join(parts, "|")
}

// MaxDecimals bounds precision so that 10^decimals always fits in 256 bits
// with plenty of headroom for price*amount products.
const MaxDecimals = 30

// Info is the registry's view of a token.
type Info struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
	Owner    common.Address `json:"owner"`
	Flags    Flags          `json:"flags"`
	// MaxSupply caps minting for Finite tokens. Nil means unbounded.
	MaxSupply *uint256.Int `json:"maxSupply,omitempty"`
}

// Validate checks that the token definition is usable.
func (t *Info) Validate() error {
	if err := ValidateSymbol(t.Symbol); err != nil {
		return err
	}
	if t.Decimals > MaxDecimals {
		return fmt.Errorf("token %s: decimals %d exceeds max %d", t.Symbol, t.Decimals, MaxDecimals)
	}
	if t.Flags.Has(Finite) && (t.MaxSupply == nil || t.MaxSupply.IsZero()) {
		return fmt.Errorf("token %s: finite token requires a positive max supply", t.Symbol)
	}
	if !t.Flags.Has(Divisible) && t.Decimals != 0 {
		return fmt.Errorf("token %s: indivisible token must have zero decimals", t.Symbol)
	}
	return nil
}

// ValidateSymbol accepts 1-10 upper-case letters or digits, starting with a letter.
func ValidateSymbol(symbol string) error {
	if len(symbol) == 0 || len(symbol) > 10 {
		return fmt.Errorf("invalid symbol %q: length must be 1-10", symbol)
	}
	for i, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("invalid symbol %q: unexpected character %q", symbol, r)
		}
	}
	return nil
}
