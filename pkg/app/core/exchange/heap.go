package exchange

import "github.com/holiman/uint256"

// priceHeap implements heap.Interface over distinct price levels. With max
// set the highest price is on top (bids), otherwise the lowest (asks).
type priceHeap struct {
	prices []uint256.Int
	max    bool
}

func (h *priceHeap) Len() int { return len(h.prices) }

func (h *priceHeap) Less(i, j int) bool {
	if h.max {
		return h.prices[i].Gt(&h.prices[j])
	}
	return h.prices[i].Lt(&h.prices[j])
}

func (h *priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) { h.prices = append(h.prices, x.(uint256.Int)) }

func (h *priceHeap) Pop() any {
	n := len(h.prices)
	x := h.prices[n-1]
	h.prices = h.prices[:n-1]
	return x
}

// Peek returns the best price without removing it.
func (h *priceHeap) Peek() (uint256.Int, bool) {
	if len(h.prices) == 0 {
		return uint256.Int{}, false
	}
	return h.prices[0], true
}

func (h *priceHeap) indexOf(p *uint256.Int) int {
	for i := range h.prices {
		if h.prices[i].Eq(p) {
			return i
		}
	}
	return -1
}
