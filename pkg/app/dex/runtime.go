package dex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/app/core/ledger"
	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
)

// txRuntime exposes the ledger and token registry to one engine call. The
// only witness is the recovered signer of the transaction being executed.
type txRuntime struct {
	ledger *ledger.Ledger
	tokens *token.Registry
	signer common.Address
}

func (r *txRuntime) IsWitness(addr common.Address) bool { return addr == r.signer }

func (r *txRuntime) GetBalance(symbol string, addr common.Address) uint256.Int {
	return r.ledger.Balance(symbol, addr)
}

func (r *txRuntime) Debit(symbol string, addr common.Address, amount *uint256.Int) error {
	return r.ledger.Debit(symbol, addr, amount)
}

func (r *txRuntime) Credit(symbol string, addr common.Address, amount *uint256.Int) error {
	return r.ledger.Credit(symbol, addr, amount)
}

func (r *txRuntime) FindToken(symbol string) (token.Info, bool) {
	return r.tokens.FindToken(symbol)
}

func (r *txRuntime) Snapshot() int { return r.ledger.Snapshot() }

func (r *txRuntime) RevertToSnapshot(id int) { r.ledger.RevertToSnapshot(id) }

var _ exchange.Runtime = (*txRuntime)(nil)
