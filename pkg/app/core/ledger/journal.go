package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type change interface {
	revert(l *Ledger)
}

type balanceChange struct {
	key  balanceKey
	prev uint256.Int
}

func (c balanceChange) revert(l *Ledger) {
	if c.prev.IsZero() {
		delete(l.balances, c.key)
	} else {
		l.balances[c.key] = c.prev
	}
	l.dirtyBalances[c.key] = struct{}{}
}

type supplyChange struct {
	symbol string
	prev   uint256.Int
}

func (c supplyChange) revert(l *Ledger) {
	if c.prev.IsZero() {
		delete(l.supply, c.symbol)
	} else {
		l.supply[c.symbol] = c.prev
	}
	l.dirtySupply[c.symbol] = struct{}{}
}

type nonceChange struct {
	addr common.Address
	prev uint64
}

func (c nonceChange) revert(l *Ledger) {
	if c.prev == 0 {
		delete(l.nonces, c.addr)
	} else {
		l.nonces[c.addr] = c.prev
	}
	l.dirtyNonces[c.addr] = struct{}{}
}
