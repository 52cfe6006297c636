package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/contracts
type EIP712Domain struct {
	Name              string         // Protocol name ("NexusDEX")
	Version           string         // Protocol version ("1")
	ChainID           *big.Int       // Chain ID (1337 for local devnet)
	VerifyingContract common.Address // Zero for off-chain signing
}

// DefaultDomain returns the devnet EIP-712 domain
func DefaultDomain() EIP712Domain {
	return DomainForChain(1337)
}

func DomainForChain(chainID int64) EIP712Domain {
	return EIP712Domain{
		Name:              "NexusDEX",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.Address{},
	}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// TypedMessage is a payload that can be hashed under the EIP-712 domain.
// Sender is the address that must have produced the signature.
type TypedMessage interface {
	PrimaryType() string
	Fields() []apitypes.Type
	Message() apitypes.TypedDataMessage
	Sender() common.Address
}

// OrderEIP712 is an order as signed by the wallet.
type OrderEIP712 struct {
	From        common.Address
	Base        string
	Quote       string
	Side        uint8 // 1 = Buy, 2 = Sell
	Kind        uint8 // 1 = Limit, 2 = Market
	TimeInForce uint8 // 1 = GTF, 2 = IOC
	Amount      *uint256.Int
	Price       *uint256.Int // zero for market orders
	Nonce       uint64
	Deadline    uint64 // unix seconds, 0 = no expiry
}

func (o *OrderEIP712) PrimaryType() string     { return "Order" }
func (o *OrderEIP712) Sender() common.Address { return o.From }

func (o *OrderEIP712) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "from", Type: "address"},
		{Name: "base", Type: "string"},
		{Name: "quote", Type: "string"},
		{Name: "side", Type: "uint8"},
		{Name: "kind", Type: "uint8"},
		{Name: "timeInForce", Type: "uint8"},
		{Name: "amount", Type: "uint256"},
		{Name: "price", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}
}

func (o *OrderEIP712) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"from":        o.From.Hex(),
		"base":        o.Base,
		"quote":       o.Quote,
		"side":        strconv.Itoa(int(o.Side)),
		"kind":        strconv.Itoa(int(o.Kind)),
		"timeInForce": strconv.Itoa(int(o.TimeInForce)),
		"amount":      dec(o.Amount),
		"price":       dec(o.Price),
		"nonce":       strconv.FormatUint(o.Nonce, 10),
		"deadline":    strconv.FormatUint(o.Deadline, 10),
	}
}

// CancelEIP712 is a cancel request for a resting order.
type CancelEIP712 struct {
	From    common.Address
	OrderID uint64
	Nonce   uint64
}

func (c *CancelEIP712) PrimaryType() string     { return "Cancel" }
func (c *CancelEIP712) Sender() common.Address { return c.From }

func (c *CancelEIP712) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "from", Type: "address"},
		{Name: "orderId", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	}
}

func (c *CancelEIP712) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"from":    c.From.Hex(),
		"orderId": strconv.FormatUint(c.OrderID, 10),
		"nonce":   strconv.FormatUint(c.Nonce, 10),
	}
}

// TokenEIP712 covers the ledger primitives: Transfer and Mint move Amount
// of Symbol to To, Burn destroys Amount from From and ignores To.
type TokenEIP712 struct {
	Action string // "Transfer", "Mint" or "Burn"
	From   common.Address
	To     common.Address
	Symbol string
	Amount *uint256.Int
	Nonce  uint64
}

func (t *TokenEIP712) PrimaryType() string     { return t.Action }
func (t *TokenEIP712) Sender() common.Address { return t.From }

func (t *TokenEIP712) Fields() []apitypes.Type {
	if t.Action == "Burn" {
		return []apitypes.Type{
			{Name: "from", Type: "address"},
			{Name: "symbol", Type: "string"},
			{Name: "amount", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
		}
	}
	return []apitypes.Type{
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "symbol", Type: "string"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	}
}

func (t *TokenEIP712) Message() apitypes.TypedDataMessage {
	msg := apitypes.TypedDataMessage{
		"from":   t.From.Hex(),
		"symbol": t.Symbol,
		"amount": dec(t.Amount),
		"nonce":  strconv.FormatUint(t.Nonce, 10),
	}
	if t.Action != "Burn" {
		msg["to"] = t.To.Hex()
	}
	return msg
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// EIP712Signer hashes, signs and recovers typed messages under one domain
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

func (e *EIP712Signer) typedData(m TypedMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			m.PrimaryType(): m.Fields(),
		},
		PrimaryType: m.PrimaryType(),
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: m.Message(),
	}
}

// Hash returns the EIP-712 digest that should be signed
func (e *EIP712Signer) Hash(m TypedMessage) ([]byte, error) {
	typedData := e.typedData(m)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", typedData.PrimaryType, err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

func (e *EIP712Signer) Sign(signer *Signer, m TypedMessage) ([]byte, error) {
	hash, err := e.Hash(m)
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", m.PrimaryType(), err)
	}
	return signature, nil
}

// Recover returns the address that produced signature over m
func (e *EIP712Signer) Recover(m TypedMessage, signature []byte) (common.Address, error) {
	hash, err := e.Hash(m)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// Verify reports whether signature was produced by m.Sender()
func (e *EIP712Signer) Verify(m TypedMessage, signature []byte) (bool, error) {
	addr, err := e.Recover(m, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return addr == m.Sender(), nil
}

// ToJSON renders the typed data in the eth_signTypedData_v4 format used by
// wallets.
func (e *EIP712Signer) ToJSON(m TypedMessage) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.typedData(m), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal typed data: %w", err)
	}
	return string(jsonBytes), nil
}
