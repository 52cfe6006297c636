package dex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
	"github.com/uhyunpark/nexusdex/pkg/chain"
)

// Account is a read-only view of one address.
type Account struct {
	Address  common.Address
	Nonce    uint64
	Balances map[string]uint256.Int
}

func (a *App) Height() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.height
}

func (a *App) AppHash() chain.Hash {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.appHash
}

func (a *App) LastBlock() BlockResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastBlock
}

func (a *App) GetOrder(id uint64) (exchange.Order, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exchange.GetExchangeOrder(id)
}

func (a *App) GetOrderBook(base, quote string, side exchange.Side) []exchange.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exchange.GetOrderBook(base, quote, side)
}

func (a *App) Pairs() []exchange.Pair {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exchange.State().Pairs()
}

func (a *App) GetMinimumSymbolQuantity(decimals uint8) uint256.Int {
	return a.exchange.GetMinimumSymbolQuantity(decimals)
}

// Tokens and Token read the registry, which has its own lock.
func (a *App) Tokens() []token.Info { return a.tokens.List() }

func (a *App) Token(symbol string) (token.Info, bool) { return a.tokens.FindToken(symbol) }

func (a *App) Account(addr common.Address) Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Account{
		Address:  addr,
		Nonce:    a.ledger.Nonce(addr),
		Balances: a.ledger.Balances(addr),
	}
}

func (a *App) Balance(symbol string, addr common.Address) uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ledger.Balance(symbol, addr)
}

func (a *App) Supply(symbol string) uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ledger.Supply(symbol)
}
