package dex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
	"github.com/uhyunpark/nexusdex/pkg/chain"
)

const (
	metaHeight   = "height"
	metaAppHash  = "apphash"
	metaExchange = "exchange"
	metaTokens   = "tokens"
)

// computeAppHash commits to the height, the block time, the order books
// and the ledger: keccak256(height || timestamp || books || ledger).
func (a *App) computeAppHash(height, timestamp int64) chain.Hash {
	h := sha3.NewLegacyKeccak256()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(height))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(timestamp))
	h.Write(buf[:])

	books := a.exchange.State().Hash()
	h.Write(books[:])
	balances := a.ledger.Hash()
	h.Write(balances[:])

	var out chain.Hash
	h.Sum(out[:0])
	return out
}

// persist writes the ledger delta, books, tokens and head in one batch.
func (a *App) persist() error {
	books, err := a.exchange.State().MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode books: %w", err)
	}
	tokens, err := json.Marshal(a.tokens.List())
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}

	b := a.store.NewBatch()
	defer b.Close()

	if err := a.ledger.Flush(b); err != nil {
		return err
	}
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], uint64(a.height))
	for name, value := range map[string][]byte{
		metaHeight:   height[:],
		metaAppHash:  a.appHash[:],
		metaExchange: books,
		metaTokens:   tokens,
	} {
		if err := b.SetMeta(name, value); err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit height %d: %w", a.height, err)
	}
	a.ledger.Committed()
	return nil
}

// restore loads the last committed state. It reports false when the
// store is empty.
func (a *App) restore(policy exchange.MinimumPolicy) (bool, error) {
	if a.store == nil {
		return false, nil
	}
	rawHeight, ok, err := a.store.GetMeta(metaHeight)
	if err != nil || !ok {
		return false, err
	}
	if len(rawHeight) != 8 {
		return false, fmt.Errorf("corrupt height meta: %d bytes", len(rawHeight))
	}

	l, err := a.store.Load()
	if err != nil {
		return false, err
	}

	rawTokens, _, err := a.store.GetMeta(metaTokens)
	if err != nil {
		return false, err
	}
	var infos []token.Info
	if err := json.Unmarshal(rawTokens, &infos); err != nil {
		return false, fmt.Errorf("decode tokens: %w", err)
	}
	reg := token.NewRegistry()
	for _, info := range infos {
		if err := reg.Register(info); err != nil {
			return false, err
		}
	}

	rawBooks, _, err := a.store.GetMeta(metaExchange)
	if err != nil {
		return false, err
	}
	state := exchange.NewState()
	if err := state.UnmarshalBinary(rawBooks); err != nil {
		return false, fmt.Errorf("decode books: %w", err)
	}

	rawHash, _, err := a.store.GetMeta(metaAppHash)
	if err != nil {
		return false, err
	}

	a.ledger = l
	a.tokens = reg
	a.exchange = a.newExchange(state, policy)
	a.height = int64(binary.BigEndian.Uint64(rawHeight))
	copy(a.appHash[:], rawHash)
	return true, nil
}
