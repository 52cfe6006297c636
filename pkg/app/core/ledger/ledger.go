package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSameAccount       = errors.New("source and destination must differ")
	ErrSupplyExceeded    = errors.New("max supply exceeded")
	ErrOverflow          = errors.New("balance overflow")
)

type balanceKey struct {
	Symbol string
	Addr   common.Address
}

// Ledger holds token balances, total supplies and account nonces.
//
// Every mutation is journaled so a caller can take a Snapshot and later
// RevertToSnapshot to undo everything done since. Ledger is not safe for
// concurrent use; the application serializes access.
type Ledger struct {
	balances map[balanceKey]uint256.Int
	supply   map[string]uint256.Int
	nonces   map[common.Address]uint64

	journal []change

	dirtyBalances map[balanceKey]struct{}
	dirtySupply   map[string]struct{}
	dirtyNonces   map[common.Address]struct{}
}

func New() *Ledger {
	return &Ledger{
		balances:      make(map[balanceKey]uint256.Int),
		supply:        make(map[string]uint256.Int),
		nonces:        make(map[common.Address]uint64),
		dirtyBalances: make(map[balanceKey]struct{}),
		dirtySupply:   make(map[string]struct{}),
		dirtyNonces:   make(map[common.Address]struct{}),
	}
}

// Balance returns the balance of addr in symbol. Unknown accounts hold zero.
func (l *Ledger) Balance(symbol string, addr common.Address) uint256.Int {
	return l.balances[balanceKey{symbol, addr}]
}

// Balances returns every non-zero balance held by addr, keyed by symbol.
func (l *Ledger) Balances(addr common.Address) map[string]uint256.Int {
	out := make(map[string]uint256.Int)
	for k, v := range l.balances {
		if k.Addr == addr {
			out[k.Symbol] = v
		}
	}
	return out
}

func (l *Ledger) Supply(symbol string) uint256.Int {
	return l.supply[symbol]
}

func (l *Ledger) Nonce(addr common.Address) uint64 {
	return l.nonces[addr]
}

func (l *Ledger) IncrementNonce(addr common.Address) {
	prev := l.nonces[addr]
	l.journal = append(l.journal, nonceChange{addr: addr, prev: prev})
	l.nonces[addr] = prev + 1
	l.dirtyNonces[addr] = struct{}{}
}

// Debit removes amount from addr's balance.
func (l *Ledger) Debit(symbol string, addr common.Address, amount *uint256.Int) error {
	k := balanceKey{symbol, addr}
	bal := l.balances[k]
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s balance %s < %s", ErrInsufficientFunds, symbol, bal.Dec(), amount.Dec())
	}
	var next uint256.Int
	next.Sub(&bal, amount)
	l.setBalance(k, bal, next)
	return nil
}

// Credit adds amount to addr's balance.
func (l *Ledger) Credit(symbol string, addr common.Address, amount *uint256.Int) error {
	k := balanceKey{symbol, addr}
	bal := l.balances[k]
	var next uint256.Int
	if _, overflow := next.AddOverflow(&bal, amount); overflow {
		return fmt.Errorf("%w: %s credit to %s", ErrOverflow, symbol, addr.Hex())
	}
	l.setBalance(k, bal, next)
	return nil
}

// Mint creates amount new tokens for to. A non-nil maxSupply caps the
// resulting total supply.
func (l *Ledger) Mint(symbol string, to common.Address, amount, maxSupply *uint256.Int) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	prev := l.supply[symbol]
	var next uint256.Int
	if _, overflow := next.AddOverflow(&prev, amount); overflow {
		return fmt.Errorf("%w: %s", ErrSupplyExceeded, symbol)
	}
	if maxSupply != nil && next.Gt(maxSupply) {
		return fmt.Errorf("%w: %s supply %s > %s", ErrSupplyExceeded, symbol, next.Dec(), maxSupply.Dec())
	}
	if err := l.Credit(symbol, to, amount); err != nil {
		return err
	}
	l.setSupply(symbol, prev, next)
	return nil
}

// Burn destroys amount tokens held by from.
func (l *Ledger) Burn(symbol string, from common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	if err := l.Debit(symbol, from, amount); err != nil {
		return err
	}
	prev := l.supply[symbol]
	var next uint256.Int
	next.Sub(&prev, amount)
	l.setSupply(symbol, prev, next)
	return nil
}

// Transfer moves amount of symbol from one account to another.
func (l *Ledger) Transfer(symbol string, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSameAccount
	}
	if err := l.Debit(symbol, from, amount); err != nil {
		return err
	}
	return l.Credit(symbol, to, amount)
}

func (l *Ledger) setBalance(k balanceKey, prev, next uint256.Int) {
	l.journal = append(l.journal, balanceChange{key: k, prev: prev})
	if next.IsZero() {
		delete(l.balances, k)
	} else {
		l.balances[k] = next
	}
	l.dirtyBalances[k] = struct{}{}
}

func (l *Ledger) setSupply(symbol string, prev, next uint256.Int) {
	l.journal = append(l.journal, supplyChange{symbol: symbol, prev: prev})
	if next.IsZero() {
		delete(l.supply, symbol)
	} else {
		l.supply[symbol] = next
	}
	l.dirtySupply[symbol] = struct{}{}
}

// Snapshot returns an identifier for the current state.
func (l *Ledger) Snapshot() int {
	return len(l.journal)
}

// RevertToSnapshot undoes every mutation made after Snapshot returned id.
func (l *Ledger) RevertToSnapshot(id int) {
	if id < 0 || id > len(l.journal) {
		panic(fmt.Sprintf("ledger: invalid snapshot %d (journal length %d)", id, len(l.journal)))
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		l.journal[i].revert(l)
	}
	l.journal = l.journal[:id]
}

// DiscardJournal drops undo history. Outstanding snapshot ids become invalid.
func (l *Ledger) DiscardJournal() {
	l.journal = l.journal[:0]
}

// Committed marks the current state as durable: the dirty sets and the
// undo journal are cleared. Call it after the batch from Flush commits, or
// after every block when nothing is persisted.
func (l *Ledger) Committed() {
	clear(l.dirtyBalances)
	clear(l.dirtySupply)
	clear(l.dirtyNonces)
	l.DiscardJournal()
}

// Hash is keccak256 over every non-zero balance, supply and nonce in key order.
func (l *Ledger) Hash() [32]byte {
	h := sha3.NewLegacyKeccak256()

	bkeys := make([]balanceKey, 0, len(l.balances))
	for k := range l.balances {
		bkeys = append(bkeys, k)
	}
	sort.Slice(bkeys, func(i, j int) bool {
		if bkeys[i].Symbol != bkeys[j].Symbol {
			return bkeys[i].Symbol < bkeys[j].Symbol
		}
		return bytes.Compare(bkeys[i].Addr[:], bkeys[j].Addr[:]) < 0
	})
	for _, k := range bkeys {
		v := l.balances[k]
		writeString(h, k.Symbol)
		h.Write(k.Addr[:])
		b := v.Bytes32()
		h.Write(b[:])
	}

	symbols := make([]string, 0, len(l.supply))
	for s := range l.supply {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		v := l.supply[s]
		writeString(h, s)
		b := v.Bytes32()
		h.Write(b[:])
	}

	addrs := make([]common.Address, 0, len(l.nonces))
	for a := range l.nonces {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
	for _, a := range addrs {
		h.Write(a[:])
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], l.nonces[a])
		h.Write(n[:])
	}

	var out [32]byte
	h.Sum(out[:0])
	return out
}

func writeString(w interface{ Write([]byte) (int, error) }, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	w.Write(n[:])
	w.Write([]byte(s))
}
