// Command sign-order builds and signs a transaction offline and prints the
// JSON body for POST /api/v1/tx.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
	"github.com/uhyunpark/nexusdex/pkg/app/core/transaction"
	"github.com/uhyunpark/nexusdex/pkg/crypto"
)

type options struct {
	key      string
	chainID  int64
	txType   string
	base     string
	quote    string
	side     string
	market   bool
	ioc      bool
	amount   string
	decimals uint
	price    string
	nonce    uint64
	deadline uint64
	orderID  uint64
	symbol   string
	to       string
}

func main() {
	var o options
	flag.StringVar(&o.key, "key", "", "hex private key; a fresh key is generated when empty")
	flag.Int64Var(&o.chainID, "chain-id", 1337, "chain id of the signing domain")
	flag.StringVar(&o.txType, "type", "order", "order, cancel, transfer, mint or burn")
	flag.StringVar(&o.base, "base", "NEX", "base token of the order")
	flag.StringVar(&o.quote, "quote", "USD", "quote token of the order")
	flag.StringVar(&o.side, "side", "buy", "buy or sell")
	flag.BoolVar(&o.market, "market", false, "open a market order")
	flag.BoolVar(&o.ioc, "ioc", false, "cancel any unfilled remainder of a limit order")
	flag.StringVar(&o.amount, "amount", "1", "amount in whole tokens, e.g. 1.25")
	flag.UintVar(&o.decimals, "decimals", 8, "decimals of the token -amount is denominated in")
	flag.StringVar(&o.price, "price", "0", "limit price in minimal quote units per minimal base unit")
	flag.Uint64Var(&o.nonce, "nonce", 0, "account nonce")
	flag.Uint64Var(&o.deadline, "deadline", 0, "unix time after which the order is rejected; 0 for none")
	flag.Uint64Var(&o.orderID, "order-id", 0, "order to cancel")
	flag.StringVar(&o.symbol, "symbol", "", "token for transfer, mint and burn")
	flag.StringVar(&o.to, "to", "", "recipient for transfer and mint")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "sign-order: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	signer, err := loadSigner(o.key)
	if err != nil {
		return err
	}
	msg, err := buildMessage(o, signer.Address())
	if err != nil {
		return err
	}

	domain := crypto.DomainForChain(o.chainID)
	tx, err := transaction.Sign(crypto.NewEIP712Signer(domain), signer, msg)
	if err != nil {
		return err
	}

	// Round trip through the verifier so a bad flag combination fails here
	// instead of at the node.
	raw, err := tx.Serialize()
	if err != nil {
		return err
	}
	if _, err := transaction.NewVerifier(domain).VerifyRaw(raw); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "signer: %s\n", signer.Address().Hex())
	if o.key == "" {
		fmt.Fprintf(os.Stderr, "private key: %s\n", signer.PrivateKeyHex())
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tx)
}

func loadSigner(key string) (*crypto.Signer, error) {
	if key == "" {
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(key)
}

func buildMessage(o options, from common.Address) (crypto.TypedMessage, error) {
	switch o.txType {
	case "order":
		return buildOrder(o, from)
	case "cancel":
		return &crypto.CancelEIP712{From: from, OrderID: o.orderID, Nonce: o.nonce}, nil
	case "transfer", "mint", "burn":
		amount, err := parseAmount(o)
		if err != nil {
			return nil, err
		}
		msg := &crypto.TokenEIP712{
			Action: strings.ToUpper(o.txType[:1]) + o.txType[1:],
			From:   from,
			Symbol: strings.ToUpper(o.symbol),
			Amount: amount,
			Nonce:  o.nonce,
		}
		if o.txType != "burn" {
			if !common.IsHexAddress(o.to) {
				return nil, fmt.Errorf("-to %q is not an address", o.to)
			}
			msg.To = common.HexToAddress(o.to)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown -type %q", o.txType)
	}
}

func buildOrder(o options, from common.Address) (*crypto.OrderEIP712, error) {
	side, err := exchange.ParseSide(o.side)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(o)
	if err != nil {
		return nil, err
	}
	msg := &crypto.OrderEIP712{
		From:        from,
		Base:        strings.ToUpper(o.base),
		Quote:       strings.ToUpper(o.quote),
		Side:        uint8(side),
		Kind:        uint8(exchange.Limit),
		TimeInForce: uint8(exchange.GoodTilFilled),
		Amount:      amount,
		Price:       new(uint256.Int),
		Nonce:       o.nonce,
		Deadline:    o.deadline,
	}
	switch {
	case o.market:
		msg.Kind = uint8(exchange.Market)
		msg.TimeInForce = uint8(exchange.ImmediateOrCancel)
	case o.ioc:
		msg.TimeInForce = uint8(exchange.ImmediateOrCancel)
	}
	if !o.market {
		if msg.Price, err = token.ParseMinimal(o.price); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func parseAmount(o options) (*uint256.Int, error) {
	if o.decimals > token.MaxDecimals {
		return nil, fmt.Errorf("-decimals %d exceeds %d", o.decimals, token.MaxDecimals)
	}
	return token.ParseAmount(o.amount, uint8(o.decimals))
}
