package exchange

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/nexusdex/pkg/app/core/event"
)

func TestFaultMidSettlementRollsBack(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			rt := newTestRuntime(t)
			ex := New(nil)
			rt.fund(t, "BASE", alice, 4)
			rt.fund(t, "BASE", carol, 3)
			rt.fund(t, "QUOTE", bob, 100)

			limit(t, ex, rt, alice, Sell, 4, 2, false)
			limit(t, ex, rt, carol, Sell, 3, 5, false)

			ledgerBefore := rt.Hash()
			stateBefore, err := ex.State().MarshalBinary()
			require.NoError(t, err)
			nextBefore := ex.State().NextID

			// fourth credit of the call is the second fill's taker leg
			if mode == "panic" {
				rt.panicCredit = rt.credits + 4
			} else {
				rt.failCredit = rt.credits + 4
			}

			rec, err := ex.OpenLimitOrder(rt, bob, "BASE", "QUOTE", u(10), u(5), Buy, false)
			assert.Nil(t, rec)
			require.ErrorIs(t, err, ErrFault)

			assert.Equal(t, ledgerBefore, rt.Hash())
			stateAfter, err := ex.State().MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, stateBefore, stateAfter)
			assert.Equal(t, nextBefore, ex.State().NextID)

			book := ex.GetOrderBook("BASE", "QUOTE", Sell)
			require.Len(t, book, 2)
			assert.Equal(t, uint64(4), book[0].Amount.Uint64())

			// the engine is still usable after a rollback
			rt.failCredit, rt.panicCredit = 0, 0
			rec, err = ex.OpenLimitOrder(rt, bob, "BASE", "QUOTE", u(10), u(5), Buy, false)
			require.NoError(t, err)
			assert.Equal(t, uint64(7), rec.Filled.Uint64())
			assert.Equal(t, nextBefore, rec.OrderID)
		})
	}
}

func TestFaultDuringCancelRollsBack(t *testing.T) {
	rt := newTestRuntime(t)
	ex := New(nil)
	rt.fund(t, "BASE", alice, 4)
	rec := limit(t, ex, rt, alice, Sell, 4, 2, false)

	rt.failCredit = rt.credits + 1
	_, err := ex.CancelOrder(rt, rec.OrderID, alice)
	require.ErrorIs(t, err, ErrFault)

	o, err := ex.GetExchangeOrder(rec.OrderID)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), o.Amount.Uint64())
	assert.Equal(t, uint64(0), rt.bal("BASE", alice))
}

var accounts = []common.Address{alice, bob, carol}

type call struct {
	kind   int
	who    common.Address
	side   Side
	amount uint64
	price  uint64
	ioc    bool
	cancel uint64
}

func randomCalls(seed int64, n int) []call {
	rng := rand.New(rand.NewSource(seed))
	calls := make([]call, n)
	for i := range calls {
		c := call{
			kind:   rng.Intn(10),
			who:    accounts[rng.Intn(len(accounts))],
			side:   Side(rng.Intn(2) + 1),
			amount: uint64(rng.Intn(20) + 1),
			price:  uint64(rng.Intn(10) + 1),
			ioc:    rng.Intn(3) == 0,
			cancel: uint64(rng.Intn(i+1) + 1),
		}
		calls[i] = c
	}
	return calls
}

func run(t *testing.T, rt *testRuntime, ex *Exchange, c call) []event.Event {
	var rec *Receipt
	var err error
	switch {
	case c.kind == 0:
		rec, err = ex.CancelOrder(rt, c.cancel, c.who)
	case c.kind == 1:
		rec, err = ex.OpenMarketOrder(rt, c.who, "BASE", "QUOTE", u(c.amount), c.side)
	default:
		rec, err = ex.OpenLimitOrder(rt, c.who, "BASE", "QUOTE", u(c.amount), u(c.price), c.side, c.ioc)
	}
	if err != nil {
		return nil
	}
	return rec.Events
}

// totalHeld sums balances and resting escrow for one token.
func totalHeld(rt *testRuntime, ex *Exchange, symbol string) uint64 {
	var sum uint64
	for _, a := range accounts {
		sum += rt.bal(symbol, a)
	}
	for _, side := range []Side{Buy, Sell} {
		for _, o := range ex.GetOrderBook("BASE", "QUOTE", side) {
			if o.escrowSymbol() != symbol {
				continue
			}
			held := restingEscrow(&o)
			sum += held.Uint64()
		}
	}
	return sum
}

func TestRandomSequenceConservesTokens(t *testing.T) {
	rt := newTestRuntime(t)
	ex := New(nil)
	for _, a := range accounts {
		rt.fund(t, "BASE", a, 500)
		rt.fund(t, "QUOTE", a, 5000)
	}

	for i, c := range randomCalls(42, 400) {
		run(t, rt, ex, c)
		require.Equal(t, uint64(1500), totalHeld(rt, ex, "BASE"), "call %d", i)
		require.Equal(t, uint64(15000), totalHeld(rt, ex, "QUOTE"), "call %d", i)

		for _, side := range []Side{Buy, Sell} {
			book := ex.GetOrderBook("BASE", "QUOTE", side)
			for k := 1; k < len(book); k++ {
				prev, cur := book[k-1], book[k]
				if prev.Price.Eq(&cur.Price) {
					require.Less(t, prev.ID, cur.ID)
				} else if side == Buy {
					require.True(t, prev.Price.Gt(&cur.Price))
				} else {
					require.True(t, prev.Price.Lt(&cur.Price))
				}
			}
		}

		bids := ex.GetOrderBook("BASE", "QUOTE", Buy)
		asks := ex.GetOrderBook("BASE", "QUOTE", Sell)
		if len(bids) > 0 && len(asks) > 0 {
			require.True(t, bids[0].Price.Lt(&asks[0].Price), "book must never rest crossed")
		}
	}
}

func TestIndependentEnginesAgree(t *testing.T) {
	calls := randomCalls(7, 300)

	replay := func() (*Exchange, *testRuntime, [][]event.Event) {
		rt := newTestRuntime(t)
		ex := New(nil)
		for _, a := range accounts {
			rt.fund(t, "BASE", a, 500)
			rt.fund(t, "QUOTE", a, 5000)
		}
		var log [][]event.Event
		for _, c := range calls {
			log = append(log, run(t, rt, ex, c))
		}
		return ex, rt, log
	}

	ex1, rt1, log1 := replay()
	ex2, rt2, log2 := replay()

	assert.Equal(t, log1, log2)
	assert.Equal(t, rt1.Hash(), rt2.Hash())

	b1, err := ex1.State().MarshalBinary()
	require.NoError(t, err)
	b2, err := ex2.State().MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
	assert.Equal(t, ex1.State().Hash(), ex2.State().Hash())
}

func TestPerCallConservation(t *testing.T) {
	rt := newTestRuntime(t)
	ex := New(nil)
	rt.fund(t, "BASE", alice, 10)
	rt.fund(t, "BASE", carol, 10)
	rt.fund(t, "QUOTE", bob, 200)

	limit(t, ex, rt, alice, Sell, 3, 4, false)
	limit(t, ex, rt, carol, Sell, 5, 6, false)

	quoteBefore := rt.bal("QUOTE", bob)
	rec := limit(t, ex, rt, bob, Buy, 12, 7, true)

	var locked, returned, toOthers uint256.Int
	for _, ev := range rec.Events {
		switch {
		case ev.Kind == event.TokenSend && ev.Address == bob:
			locked.Add(&locked, &ev.Value)
		case ev.Kind == event.TokenReceive && ev.Symbol == "QUOTE" && ev.Address == bob:
			returned.Add(&returned, &ev.Value)
		case ev.Kind == event.TokenReceive && ev.Address != bob:
			toOthers.Add(&toOthers, &ev.Value)
		}
	}

	var spent uint256.Int
	spent.Sub(&locked, &returned)
	assert.Equal(t, spent.Uint64(), toOthers.Uint64())
	assert.Equal(t, uint64(3*4+5*6), toOthers.Uint64())
	assert.Equal(t, quoteBefore-toOthers.Uint64(), rt.bal("QUOTE", bob))
}
