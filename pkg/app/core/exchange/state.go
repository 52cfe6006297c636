package exchange

import (
	"sort"

	"github.com/holiman/uint256"
)

type pairBooks struct {
	bids *book
	asks *book
}

func (pb *pairBooks) side(s Side) *book {
	if s == Buy {
		return pb.bids
	}
	return pb.asks
}

func (pb *pairBooks) empty() bool { return pb.bids.Len() == 0 && pb.asks.Len() == 0 }

// State is everything the exchange persists: the id counter and every
// resting order. It is threaded explicitly through the Exchange.
type State struct {
	NextID uint64

	pairs map[Pair]*pairBooks
	index map[uint64]*Order
}

func NewState() *State {
	return &State{
		NextID: 1,
		pairs:  make(map[Pair]*pairBooks),
		index:  make(map[uint64]*Order),
	}
}

// Len returns the number of resting orders across all pairs.
func (s *State) Len() int { return len(s.index) }

func (s *State) order(id uint64) (*Order, bool) {
	o, ok := s.index[id]
	return o, ok
}

// book returns the side of a pair, or nil when nothing ever rested there.
func (s *State) book(p Pair, side Side) *book {
	pb, ok := s.pairs[p]
	if !ok {
		return nil
	}
	return pb.side(side)
}

// Pairs lists pairs with at least one resting order, sorted.
func (s *State) Pairs() []Pair {
	out := make([]Pair, 0, len(s.pairs))
	for p, pb := range s.pairs {
		if !pb.empty() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

func (s *State) allocID(j *journal) uint64 {
	id := s.NextID
	s.NextID++
	j.record(func() { s.NextID = id })
	return id
}

func (s *State) insert(j *journal, o *Order) {
	p := o.Pair()
	pb, ok := s.pairs[p]
	if !ok {
		pb = &pairBooks{bids: newBook(Buy), asks: newBook(Sell)}
		s.pairs[p] = pb
	}
	pb.side(o.Side).insert(o)
	s.index[o.ID] = o
	j.record(func() { s.unlink(o) })
}

func (s *State) remove(j *journal, o *Order) {
	s.unlink(o)
	j.record(func() {
		s.pairs[o.Pair()].side(o.Side).insert(o)
		s.index[o.ID] = o
	})
}

// unlink drops o from its book and the index. Empty pairs keep their books
// so that undo records can re-insert without recreating them.
func (s *State) unlink(o *Order) {
	if pb, ok := s.pairs[o.Pair()]; ok {
		pb.side(o.Side).remove(o)
	}
	delete(s.index, o.ID)
}

// reduce subtracts qty from the order's remaining amount.
func (s *State) reduce(j *journal, o *Order, qty *uint256.Int) {
	prev := o.Amount
	o.Amount.Sub(&o.Amount, qty)
	j.record(func() { o.Amount = prev })
}

// journal records undo steps for the call in progress.
type journal struct {
	undo []func()
}

func (j *journal) record(f func()) { j.undo = append(j.undo, f) }

func (j *journal) revert() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.reset()
}

func (j *journal) reset() { j.undo = j.undo[:0] }
