package exchange

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return "Unknown"
	}
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return Buy, nil
	case "sell", "ask":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

type TimeInForce uint8

const (
	GoodTilFilled TimeInForce = iota + 1
	ImmediateOrCancel
)

func (t TimeInForce) String() string {
	switch t {
	case GoodTilFilled:
		return "GTF"
	case ImmediateOrCancel:
		return "IOC"
	default:
		return "Unknown"
	}
}

func (t TimeInForce) Valid() bool { return t == GoodTilFilled || t == ImmediateOrCancel }

// OrderKind tags how the acceptable price was chosen. Market orders carry an
// unbounded price and never rest.
type OrderKind uint8

const (
	Limit OrderKind = iota + 1
	Market
)

func (k OrderKind) String() string {
	switch k {
	case Limit:
		return "Limit"
	case Market:
		return "Market"
	default:
		return "Unknown"
	}
}

// Pair identifies a trading pair. Base and Quote are token symbols.
type Pair struct {
	Base  string
	Quote string
}

func (p Pair) String() string { return p.Base + "/" + p.Quote }

func (p Pair) less(o Pair) bool {
	if p.Base != o.Base {
		return p.Base < o.Base
	}
	return p.Quote < o.Quote
}

// Order is a resting or incoming request to trade. Amount is the unfilled
// base quantity; Price is quote units per base unit.
type Order struct {
	ID          uint64
	Creator     common.Address
	Base        string
	Quote       string
	Side        Side
	Kind        OrderKind
	TimeInForce TimeInForce
	Amount      uint256.Int
	Price       uint256.Int
}

func (o *Order) Pair() Pair { return Pair{Base: o.Base, Quote: o.Quote} }

// escrowSymbol is the token an order of this side locks.
func (o *Order) escrowSymbol() string {
	if o.Side == Buy {
		return o.Quote
	}
	return o.Base
}

// Fill is one match between an incoming taker and a resting maker.
type Fill struct {
	TakerID uint64
	MakerID uint64
	Qty     uint256.Int
	Price   uint256.Int
}

// OrderStatus is where an order ended up when the opening call returned.
type OrderStatus uint8

const (
	StatusResting OrderStatus = iota + 1
	StatusClosed
	StatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusResting:
		return "Resting"
	case StatusClosed:
		return "Closed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}
