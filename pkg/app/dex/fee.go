package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/app/core/event"
	"github.com/uhyunpark/nexusdex/pkg/app/core/ledger"
	"github.com/uhyunpark/nexusdex/params"
)

// FeeConfig is the flat per-transaction charge in the fuel token.
type FeeConfig struct {
	Symbol    string
	Amount    uint256.Int
	Collector common.Address
}

func ParseFeeConfig(f params.Fees) (FeeConfig, error) {
	amount, err := uint256.FromDecimal(f.TxFee)
	if err != nil {
		return FeeConfig{}, fmt.Errorf("fee amount %q: %w", f.TxFee, err)
	}
	if !common.IsHexAddress(f.Collector) {
		return FeeConfig{}, fmt.Errorf("fee collector %q is not an address", f.Collector)
	}
	return FeeConfig{
		Symbol:    f.FuelSymbol,
		Amount:    *amount,
		Collector: common.HexToAddress(f.Collector),
	}, nil
}

func (f FeeConfig) Enabled() bool { return !f.Amount.IsZero() }

// charge moves the fee from payer to the collector. The collector pays
// nothing for its own transactions.
func (f FeeConfig) charge(l *ledger.Ledger, payer common.Address) ([]event.Event, error) {
	if !f.Enabled() || payer == f.Collector {
		return nil, nil
	}
	if err := l.Transfer(f.Symbol, payer, f.Collector, &f.Amount); err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}
	return []event.Event{
		event.Token(event.TokenSend, payer, f.Symbol, &f.Amount),
		event.Token(event.TokenReceive, f.Collector, f.Symbol, &f.Amount),
	}, nil
}
