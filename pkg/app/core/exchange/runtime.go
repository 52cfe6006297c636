package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
)

// Runtime is what the exchange needs from the chain executing it. Balance
// mutations go through Debit and Credit only.
type Runtime interface {
	// IsWitness reports whether addr authorized the current transaction.
	IsWitness(addr common.Address) bool

	GetBalance(symbol string, addr common.Address) uint256.Int
	Debit(symbol string, addr common.Address, amount *uint256.Int) error
	Credit(symbol string, addr common.Address, amount *uint256.Int) error

	FindToken(symbol string) (token.Info, bool)

	// Snapshot and RevertToSnapshot bracket a call so that a failure undoes
	// every balance change made during it.
	Snapshot() int
	RevertToSnapshot(id int)
}
