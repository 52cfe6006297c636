package storage

import (
	"sync"

	"github.com/uhyunpark/nexusdex/pkg/chain"
)

// InMemoryBlockStore is a BlockStore for tests and throwaway devnets.
type InMemoryBlockStore struct {
	mu        sync.Mutex
	blocks    map[chain.Hash]chain.Block
	byHeight  map[chain.Height]chain.Hash
	committed *chain.Hash
}

func NewInMemoryBlockStore() *InMemoryBlockStore {
	return &InMemoryBlockStore{
		blocks:   make(map[chain.Hash]chain.Block),
		byHeight: make(map[chain.Height]chain.Hash),
	}
}

func (s *InMemoryBlockStore) SaveBlock(b chain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := chain.HashOfBlock(b)
	s.blocks[h] = b
	s.byHeight[b.Height] = h
	return nil
}

func (s *InMemoryBlockStore) GetBlock(h chain.Hash) (chain.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[h]
	return b, ok, nil
}

func (s *InMemoryBlockStore) GetBlockByHeight(height chain.Height) (chain.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byHeight[height]
	if !ok {
		return chain.Block{}, false, nil
	}
	return s.blocks[h], true, nil
}

func (s *InMemoryBlockStore) SetCommitted(h chain.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = &h
	return nil
}

func (s *InMemoryBlockStore) GetCommitted() (chain.Hash, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed == nil {
		return chain.Hash{}, false, nil
	}
	return *s.committed, true, nil
}

var _ chain.BlockStore = (*InMemoryBlockStore)(nil)
