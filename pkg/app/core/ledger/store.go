package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/holiman/uint256"
)

// Store persists ledger state in Pebble. Values are fixed width:
// balances and supplies as 32-byte big-endian integers, nonces as 8 bytes.
type Store struct {
	db *pebble.DB
}

func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20),
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetMeta returns an opaque value stored next to the ledger, such as the
// serialized order books or the last committed height.
func (s *Store) GetMeta(name string) ([]byte, bool, error) {
	data, closer, err := s.db.Get(metaStoreKey(name))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get meta %s: %w", name, err)
	}
	defer closer.Close()
	return append([]byte(nil), data...), true, nil
}

// Load reads every persisted balance, supply and nonce into a new Ledger.
func (s *Store) Load() (*Ledger, error) {
	l := New()

	err := s.scan(prefixBalance, func(k, v []byte) error {
		bk, err := parseBalanceKey(k)
		if err != nil {
			return err
		}
		var amt uint256.Int
		amt.SetBytes(v)
		l.balances[bk] = amt
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan(prefixSupply, func(k, v []byte) error {
		var amt uint256.Int
		amt.SetBytes(v)
		l.supply[string(k[len(prefixSupply):])] = amt
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan(prefixNonce, func(k, v []byte) error {
		addr, err := parseNonceKey(k)
		if err != nil {
			return err
		}
		if len(v) != 8 {
			return fmt.Errorf("invalid nonce value for %s", addr.Hex())
		}
		l.nonces[addr] = binary.BigEndian.Uint64(v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return l, nil
}

func (s *Store) scan(prefix string, fn func(k, v []byte) error) error {
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Batch collects writes that are committed atomically.
type Batch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) SetMeta(name string, value []byte) error {
	return b.batch.Set(metaStoreKey(name), value, nil)
}

func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

func (b *Batch) Close() error {
	return b.batch.Close()
}

// Flush stages every entry touched since the last Committed call into b.
// Zero balances and supplies are deleted. The dirty sets survive until
// Committed so a failed batch can be retried.
func (l *Ledger) Flush(b *Batch) error {
	for k := range l.dirtyBalances {
		key := balanceStoreKey(k.Symbol, k.Addr)
		v, ok := l.balances[k]
		var err error
		if ok {
			buf := v.Bytes32()
			err = b.batch.Set(key, buf[:], nil)
		} else {
			err = b.batch.Delete(key, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to stage balance: %w", err)
		}
	}
	for sym := range l.dirtySupply {
		key := supplyStoreKey(sym)
		v, ok := l.supply[sym]
		var err error
		if ok {
			buf := v.Bytes32()
			err = b.batch.Set(key, buf[:], nil)
		} else {
			err = b.batch.Delete(key, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to stage supply: %w", err)
		}
	}
	for addr := range l.dirtyNonces {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], l.nonces[addr])
		if err := b.batch.Set(nonceStoreKey(addr), buf[:], nil); err != nil {
			return fmt.Errorf("failed to stage nonce: %w", err)
		}
	}
	return nil
}
