package dex

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/nexusdex/pkg/app/core/ledger"
	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
)

// initGenesis registers the configured tokens and mints the initial
// balances. Genesis amounts are human decimals, not minimal units.
func (a *App) initGenesis(cfg Config) error {
	a.ledger = ledger.New()
	a.tokens = token.NewRegistry()
	a.exchange = a.newExchange(nil, cfg.MinimumPolicy)

	toks, err := cfg.Genesis.ParseTokens()
	if err != nil {
		return err
	}
	for _, gt := range toks {
		info := token.Info{
			Symbol:   gt.Symbol,
			Name:     gt.Symbol,
			Decimals: gt.Decimals,
			Owner:    gt.Owner,
			Flags:    token.DefaultFlags,
		}
		if gt.Decimals == 0 {
			info.Flags &^= token.Divisible
		}
		if gt.MaxSupply != "" {
			maxSupply, err := token.ParseAmount(gt.MaxSupply, gt.Decimals)
			if err != nil {
				return fmt.Errorf("token %s max supply: %w", gt.Symbol, err)
			}
			info.Flags |= token.Finite
			info.MaxSupply = maxSupply
		}
		if err := a.tokens.Register(info); err != nil {
			return err
		}
	}

	balances, err := cfg.Genesis.ParseBalances()
	if err != nil {
		return err
	}
	for _, gb := range balances {
		info, ok := a.tokens.FindToken(gb.Symbol)
		if !ok {
			return fmt.Errorf("balance for unknown token %s", gb.Symbol)
		}
		amount, err := token.ParseAmount(gb.Amount, info.Decimals)
		if err != nil {
			return fmt.Errorf("balance %s/%s: %w", gb.Symbol, gb.Address.Hex(), err)
		}
		if err := a.ledger.Mint(gb.Symbol, gb.Address, amount, info.MaxSupply); err != nil {
			return fmt.Errorf("balance %s/%s: %w", gb.Symbol, gb.Address.Hex(), err)
		}
	}

	a.height = 0
	a.appHash = a.computeAppHash(0, 0)
	if a.store != nil {
		if err := a.persist(); err != nil {
			return err
		}
	} else {
		a.ledger.Committed()
	}

	a.logger.Info("genesis_applied",
		zap.Int("tokens", len(toks)),
		zap.Int("balances", len(balances)),
		zap.String("apphash", a.appHash.Hex()))
	return nil
}
