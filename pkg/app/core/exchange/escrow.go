package exchange

import (
	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/app/core/event"
)

// escrowFor computes what o must lock. It reads the opposite book for
// market buys but mutates nothing.
func (e *Exchange) escrowFor(op string, o *Order) (uint256.Int, error) {
	var required uint256.Int

	switch {
	case o.Side == Sell:
		required = o.Amount

	case o.Kind == Market:
		// Lock exactly what the asks that will be consumed cost.
		remaining := o.Amount
		if asks := e.state.book(o.Pair(), Sell); asks != nil {
			for _, maker := range asks.orders() {
				if remaining.IsZero() {
					break
				}
				qty := minAmount(&remaining, &maker.Amount)
				var cost uint256.Int
				if _, overflow := cost.MulOverflow(&qty, &maker.Price); overflow {
					return uint256.Int{}, newError(KindValidation, op, "market order cost overflows")
				}
				if _, overflow := required.AddOverflow(&required, &cost); overflow {
					return uint256.Int{}, newError(KindValidation, op, "market order cost overflows")
				}
				remaining.Sub(&remaining, &qty)
			}
		}

	default:
		if _, overflow := required.MulOverflow(&o.Amount, &o.Price); overflow {
			return uint256.Int{}, newError(KindValidation, op, "amount*price overflows")
		}
	}
	return required, nil
}

// lock debits the escrow from the opener.
func (e *Exchange) lock(rt Runtime, em *emitter, op string, o *Order, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	symbol := o.escrowSymbol()
	if err := rt.Debit(symbol, o.Creator, amount); err != nil {
		return wrapError(KindInsufficientFunds, op, err)
	}
	em.token(event.TokenSend, o.Creator, symbol, amount)
	return nil
}

// release returns amount of o's escrow to its creator.
func (e *Exchange) release(rt Runtime, em *emitter, op string, o *Order, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	return e.credit(rt, em, op, o.Creator, o.escrowSymbol(), amount)
}

// restingEscrow is what a resting order still has locked.
func restingEscrow(o *Order) uint256.Int {
	if o.Side == Sell {
		return o.Amount
	}
	var v uint256.Int
	v.Mul(&o.Amount, &o.Price)
	return v
}

func minAmount(a, b *uint256.Int) uint256.Int {
	if a.Lt(b) {
		return *a
	}
	return *b
}
