package token

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds every token known to the chain, keyed by symbol.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]Info
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]Info)}
}

// Register adds a token. Symbols are unique for the life of the chain.
func (r *Registry) Register(t Info) error {
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[t.Symbol]; exists {
		return fmt.Errorf("token %s already registered", t.Symbol)
	}
	if t.MaxSupply != nil {
		t.MaxSupply = t.MaxSupply.Clone()
	}
	r.tokens[t.Symbol] = t
	return nil
}

// FindToken returns the token registered under symbol.
func (r *Registry) FindToken(symbol string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[symbol]
	if ok && t.MaxSupply != nil {
		t.MaxSupply = t.MaxSupply.Clone()
	}
	return t, ok
}

// List returns all tokens sorted by symbol.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.tokens))
	for _, t := range r.tokens {
		if t.MaxSupply != nil {
			t.MaxSupply = t.MaxSupply.Clone()
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
