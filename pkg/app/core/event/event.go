package event

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind identifies what an event records.
type Kind uint8

const (
	OrderCreated Kind = iota + 1
	OrderClosed
	OrderCancelled
	TokenSend
	TokenReceive
	TokenMint
	TokenBurn
)

var kindNames = map[Kind]string{
	OrderCreated:   "OrderCreated",
	OrderClosed:    "OrderClosed",
	OrderCancelled: "OrderCancelled",
	TokenSend:      "TokenSend",
	TokenReceive:   "TokenReceive",
	TokenMint:      "TokenMint",
	TokenBurn:      "TokenBurn",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// IsOrder reports whether the event carries an order id rather than a token movement.
func (k Kind) IsOrder() bool {
	return k == OrderCreated || k == OrderClosed || k == OrderCancelled
}

// Event is one entry in a transaction's ordered event log. Order events
// carry OrderID; token events carry Symbol and Value.
type Event struct {
	Kind    Kind
	Address common.Address
	OrderID uint64
	Symbol  string
	Value   uint256.Int
}

func Order(kind Kind, addr common.Address, id uint64) Event {
	return Event{Kind: kind, Address: addr, OrderID: id}
}

func Token(kind Kind, addr common.Address, symbol string, value *uint256.Int) Event {
	return Event{Kind: kind, Address: addr, Symbol: symbol, Value: *value}
}

type jsonEvent struct {
	Kind    Kind           `json:"kind"`
	Address common.Address `json:"address"`
	OrderID uint64         `json:"orderId,omitempty"`
	Symbol  string         `json:"symbol,omitempty"`
	Value   string         `json:"value,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	je := jsonEvent{Kind: e.Kind, Address: e.Address, OrderID: e.OrderID, Symbol: e.Symbol}
	if !e.Kind.IsOrder() {
		je.Value = e.Value.Dec()
	}
	return json.Marshal(je)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var je jsonEvent
	if err := json.Unmarshal(b, &je); err != nil {
		return err
	}
	*e = Event{Kind: je.Kind, Address: je.Address, OrderID: je.OrderID, Symbol: je.Symbol}
	if je.Value != "" {
		v, err := uint256.FromDecimal(je.Value)
		if err != nil {
			return fmt.Errorf("event value: %w", err)
		}
		e.Value = *v
	}
	return nil
}

func (e Event) String() string {
	if e.Kind.IsOrder() {
		return fmt.Sprintf("%s{%s order=%d}", e.Kind, e.Address.Hex(), e.OrderID)
	}
	return fmt.Sprintf("%s{%s %s %s}", e.Kind, e.Address.Hex(), e.Value.Dec(), e.Symbol)
}
