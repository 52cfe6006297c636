package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/nexusdex/pkg/chain"
)

// PebbleStore is the durable BlockStore.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open block store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: b:<32-byte-hash>, h:<8-byte-height> -> hash, cm -> committed hash
func kBlock(h chain.Hash) []byte     { return append([]byte("b:"), h[:]...) }
func kHeight(h chain.Height) []byte { return append([]byte("h:"), heightKey(h)...) }
func kCommitted() []byte            { return []byte("cm") }

// SaveBlock writes the block and its height index in one batch.
func (s *PebbleStore) SaveBlock(b chain.Block) error {
	h := chain.HashOfBlock(b)
	val, err := encodeGob(b)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(kBlock(h), val, nil); err != nil {
		return err
	}
	if err := batch.Set(kHeight(b.Height), h[:], nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) get(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), true, nil
}

func (s *PebbleStore) GetBlock(h chain.Hash) (chain.Block, bool, error) {
	val, ok, err := s.get(kBlock(h))
	if err != nil || !ok {
		return chain.Block{}, false, err
	}
	var out chain.Block
	if err := decodeGob(val, &out); err != nil {
		return chain.Block{}, false, fmt.Errorf("decode block %s: %w", h, err)
	}
	return out, true, nil
}

func (s *PebbleStore) GetBlockByHeight(height chain.Height) (chain.Block, bool, error) {
	val, ok, err := s.get(kHeight(height))
	if err != nil || !ok {
		return chain.Block{}, false, err
	}
	var h chain.Hash
	copy(h[:], val)
	return s.GetBlock(h)
}

func (s *PebbleStore) SetCommitted(h chain.Hash) error {
	return s.db.Set(kCommitted(), h[:], pebble.Sync)
}

func (s *PebbleStore) GetCommitted() (chain.Hash, bool, error) {
	val, ok, err := s.get(kCommitted())
	if err != nil || !ok {
		return chain.Hash{}, false, err
	}
	var out chain.Hash
	copy(out[:], val)
	return out, true, nil
}

var _ chain.BlockStore = (*PebbleStore)(nil)
