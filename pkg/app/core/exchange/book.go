package exchange

import (
	"container/heap"
	"sort"

	"github.com/holiman/uint256"
)

// book is one side of a pair: price levels ordered by a heap, each level a
// queue of orders sorted by ascending id.
type book struct {
	side   Side
	prices *priceHeap
	levels map[uint256.Int][]*Order
	size   int
}

func newBook(side Side) *book {
	h := &priceHeap{max: side == Buy}
	heap.Init(h)
	return &book{
		side:   side,
		prices: h,
		levels: make(map[uint256.Int][]*Order),
	}
}

func (b *book) Len() int { return b.size }

// best returns the first order at the best price level.
func (b *book) best() *Order {
	p, ok := b.prices.Peek()
	if !ok {
		return nil
	}
	return b.levels[p][0]
}

// insert places o in its level at the position given by its id, so that
// re-inserting a removed order restores its original queue position.
func (b *book) insert(o *Order) {
	level, exists := b.levels[o.Price]
	if !exists {
		heap.Push(b.prices, o.Price)
	}
	i := sort.Search(len(level), func(i int) bool { return level[i].ID > o.ID })
	level = append(level, nil)
	copy(level[i+1:], level[i:])
	level[i] = o
	b.levels[o.Price] = level
	b.size++
}

func (b *book) remove(o *Order) bool {
	level, exists := b.levels[o.Price]
	if !exists {
		return false
	}
	i := sort.Search(len(level), func(i int) bool { return level[i].ID >= o.ID })
	if i == len(level) || level[i].ID != o.ID {
		return false
	}
	level = append(level[:i], level[i+1:]...)
	b.size--

	if len(level) > 0 {
		b.levels[o.Price] = level
		return true
	}
	delete(b.levels, o.Price)
	if idx := b.prices.indexOf(&o.Price); idx >= 0 {
		heap.Remove(b.prices, idx)
	}
	return true
}

// orders returns the resting orders in canonical order: best price first,
// lower id first within a price.
func (b *book) orders() []*Order {
	prices := make([]uint256.Int, 0, len(b.levels))
	for p := range b.levels {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if b.side == Buy {
			return prices[i].Gt(&prices[j])
		}
		return prices[i].Lt(&prices[j])
	})

	out := make([]*Order, 0, b.size)
	for _, p := range prices {
		out = append(out, b.levels[p]...)
	}
	return out
}
