package transaction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/crypto"
)

// TxType represents the type of transaction
type TxType string

const (
	TxTypeOrder    TxType = "order"    // Open limit or market order
	TxTypeCancel   TxType = "cancel"   // Cancel resting order
	TxTypeTransfer TxType = "transfer" // Move tokens between accounts
	TxTypeMint     TxType = "mint"     // Token owner creates supply
	TxTypeBurn     TxType = "burn"     // Holder destroys supply
)

var ErrMalformed = errors.New("malformed transaction")

// SignedTransaction is the wire envelope. Exactly one payload matching Type
// is set, and Signature covers its EIP-712 digest.
type SignedTransaction struct {
	Type      TxType         `json:"type"`
	Order     *OrderPayload  `json:"order,omitempty"`
	Cancel    *CancelPayload `json:"cancel,omitempty"`
	Transfer  *TokenPayload  `json:"transfer,omitempty"`
	Mint      *TokenPayload  `json:"mint,omitempty"`
	Burn      *TokenPayload  `json:"burn,omitempty"`
	Signature string         `json:"signature"` // 0x-prefixed hex
}

// OrderPayload carries amounts as decimal strings in minimal units
type OrderPayload struct {
	From        string `json:"from"`
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	Side        uint8  `json:"side"`          // 1=Buy, 2=Sell
	Kind        uint8  `json:"kind"`          // 1=Limit, 2=Market
	TimeInForce uint8  `json:"time_in_force"` // 1=GTF, 2=IOC
	Amount      string `json:"amount"`
	Price       string `json:"price,omitempty"`
	Nonce       uint64 `json:"nonce"`
	Deadline    uint64 `json:"deadline,omitempty"` // unix seconds, 0 = none
}

type CancelPayload struct {
	From    string `json:"from"`
	OrderID uint64 `json:"order_id"`
	Nonce   uint64 `json:"nonce"`
}

// TokenPayload is shared by transfer, mint and burn. Burn leaves To empty.
type TokenPayload struct {
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
	Nonce  uint64 `json:"nonce"`
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid %s address %q", ErrMalformed, field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", ErrMalformed, field, s)
	}
	return v, nil
}

// ToEIP712 converts the payload into its typed-data form
func (o *OrderPayload) ToEIP712() (*crypto.OrderEIP712, error) {
	from, err := parseAddress("from", o.From)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", o.Amount)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", o.Price)
	if err != nil {
		return nil, err
	}
	return &crypto.OrderEIP712{
		From:        from,
		Base:        o.Base,
		Quote:       o.Quote,
		Side:        o.Side,
		Kind:        o.Kind,
		TimeInForce: o.TimeInForce,
		Amount:      amount,
		Price:       price,
		Nonce:       o.Nonce,
		Deadline:    o.Deadline,
	}, nil
}

func (c *CancelPayload) ToEIP712() (*crypto.CancelEIP712, error) {
	from, err := parseAddress("from", c.From)
	if err != nil {
		return nil, err
	}
	return &crypto.CancelEIP712{From: from, OrderID: c.OrderID, Nonce: c.Nonce}, nil
}

func (p *TokenPayload) ToEIP712(action string) (*crypto.TokenEIP712, error) {
	from, err := parseAddress("from", p.From)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	msg := &crypto.TokenEIP712{Action: action, From: from, Symbol: p.Symbol, Amount: amount, Nonce: p.Nonce}
	if action != "Burn" {
		if msg.To, err = parseAddress("to", p.To); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// Message returns the typed message the signature must cover
func (tx *SignedTransaction) Message() (crypto.TypedMessage, error) {
	switch tx.Type {
	case TxTypeOrder:
		return tx.Order.ToEIP712()
	case TxTypeCancel:
		return tx.Cancel.ToEIP712()
	case TxTypeTransfer:
		return tx.Transfer.ToEIP712("Transfer")
	case TxTypeMint:
		return tx.Mint.ToEIP712("Mint")
	case TxTypeBurn:
		return tx.Burn.ToEIP712("Burn")
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, tx.Type)
	}
}

// Nonce returns the payload nonce. Validate must have succeeded.
func (tx *SignedTransaction) Nonce() uint64 {
	switch tx.Type {
	case TxTypeOrder:
		return tx.Order.Nonce
	case TxTypeCancel:
		return tx.Cancel.Nonce
	case TxTypeTransfer:
		return tx.Transfer.Nonce
	case TxTypeMint:
		return tx.Mint.Nonce
	case TxTypeBurn:
		return tx.Burn.Nonce
	}
	return 0
}

// Validate performs structural checks only. Amounts, tokens and balances are
// checked when the transaction executes.
func (tx *SignedTransaction) Validate() error {
	if tx.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrMalformed)
	}

	set := 0
	for _, present := range []bool{tx.Order != nil, tx.Cancel != nil, tx.Transfer != nil, tx.Mint != nil, tx.Burn != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: want exactly one payload, got %d", ErrMalformed, set)
	}

	switch tx.Type {
	case TxTypeOrder:
		if tx.Order == nil {
			return fmt.Errorf("%w: order type requires order payload", ErrMalformed)
		}
		if tx.Order.Base == "" || tx.Order.Quote == "" {
			return fmt.Errorf("%w: missing order symbols", ErrMalformed)
		}
		if tx.Order.Side != 1 && tx.Order.Side != 2 {
			return fmt.Errorf("%w: invalid order side %d", ErrMalformed, tx.Order.Side)
		}
		if tx.Order.Kind != 1 && tx.Order.Kind != 2 {
			return fmt.Errorf("%w: invalid order kind %d", ErrMalformed, tx.Order.Kind)
		}
		if tx.Order.Kind == 1 && tx.Order.TimeInForce != 1 && tx.Order.TimeInForce != 2 {
			return fmt.Errorf("%w: invalid time in force %d", ErrMalformed, tx.Order.TimeInForce)
		}
	case TxTypeCancel:
		if tx.Cancel == nil {
			return fmt.Errorf("%w: cancel type requires cancel payload", ErrMalformed)
		}
	case TxTypeTransfer, TxTypeMint, TxTypeBurn:
		p := tx.tokenPayload()
		if p == nil {
			return fmt.Errorf("%w: %s type requires %s payload", ErrMalformed, tx.Type, tx.Type)
		}
		if p.Symbol == "" {
			return fmt.Errorf("%w: missing symbol", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, tx.Type)
	}

	_, err := tx.Message()
	return err
}

func (tx *SignedTransaction) tokenPayload() *TokenPayload {
	switch tx.Type {
	case TxTypeTransfer:
		return tx.Transfer
	case TxTypeMint:
		return tx.Mint
	case TxTypeBurn:
		return tx.Burn
	}
	return nil
}

func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// ParseTransaction decodes and structurally validates a JSON transaction
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Hash identifies a transaction by the keccak256 of its raw bytes
func Hash(raw []byte) common.Hash {
	return ethCrypto.Keccak256Hash(raw)
}

// Sign builds a signed envelope around msg
func Sign(e *crypto.EIP712Signer, s *crypto.Signer, msg crypto.TypedMessage) (*SignedTransaction, error) {
	sig, err := e.Sign(s, msg)
	if err != nil {
		return nil, err
	}
	tx := &SignedTransaction{Signature: crypto.EncodeSignature(sig)}

	switch m := msg.(type) {
	case *crypto.OrderEIP712:
		tx.Type = TxTypeOrder
		tx.Order = &OrderPayload{
			From:        m.From.Hex(),
			Base:        m.Base,
			Quote:       m.Quote,
			Side:        m.Side,
			Kind:        m.Kind,
			TimeInForce: m.TimeInForce,
			Amount:      decOrEmpty(m.Amount),
			Price:       decOrEmpty(m.Price),
			Nonce:       m.Nonce,
			Deadline:    m.Deadline,
		}
	case *crypto.CancelEIP712:
		tx.Type = TxTypeCancel
		tx.Cancel = &CancelPayload{From: m.From.Hex(), OrderID: m.OrderID, Nonce: m.Nonce}
	case *crypto.TokenEIP712:
		p := &TokenPayload{From: m.From.Hex(), Symbol: m.Symbol, Amount: decOrEmpty(m.Amount), Nonce: m.Nonce}
		switch m.Action {
		case "Transfer":
			tx.Type, tx.Transfer = TxTypeTransfer, p
		case "Mint":
			tx.Type, tx.Mint = TxTypeMint, p
		case "Burn":
			tx.Type, tx.Burn = TxTypeBurn, p
		default:
			return nil, fmt.Errorf("%w: unknown token action %q", ErrMalformed, m.Action)
		}
		if m.Action != "Burn" {
			p.To = m.To.Hex()
		}
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", ErrMalformed, msg)
	}
	return tx, nil
}

func decOrEmpty(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

// Example:
//   {
//     "type": "order",
//     "order": {
//       "from": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
//       "base": "NEX", "quote": "USD",
//       "side": 1, "kind": 1, "time_in_force": 1,
//       "amount": "100000000", "price": "25",
//       "nonce": 0
//     },
//     "signature": "0x1234567890abcdef..."
//   }
