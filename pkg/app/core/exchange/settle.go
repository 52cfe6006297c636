package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/nexusdex/pkg/app/core/event"
)

// emitter collects the ordered event log of one call.
type emitter struct {
	events []event.Event
}

func (em *emitter) order(kind event.Kind, addr common.Address, id uint64) {
	em.events = append(em.events, event.Order(kind, addr, id))
}

func (em *emitter) token(kind event.Kind, addr common.Address, symbol string, value *uint256.Int) {
	em.events = append(em.events, event.Token(kind, addr, symbol, value))
}

func (e *Exchange) credit(rt Runtime, em *emitter, op string, addr common.Address, symbol string, amount *uint256.Int) error {
	if err := rt.Credit(symbol, addr, amount); err != nil {
		return wrapError(KindFault, op, err)
	}
	em.token(event.TokenReceive, addr, symbol, amount)
	return nil
}

// settle exchanges base for quote between taker and maker at the maker's
// price. It returns how much of the taker's escrow the fill consumed,
// including any price improvement refunded to a buying taker.
func (e *Exchange) settle(rt Runtime, em *emitter, op string, taker, maker *Order, f *Fill) (uint256.Int, error) {
	var quoteValue uint256.Int
	if _, overflow := quoteValue.MulOverflow(&f.Qty, &f.Price); overflow {
		return uint256.Int{}, newError(KindFault, op, "fill value overflows")
	}

	if taker.Side == Buy {
		if err := e.credit(rt, em, op, taker.Creator, taker.Base, &f.Qty); err != nil {
			return uint256.Int{}, err
		}
		if err := e.credit(rt, em, op, maker.Creator, taker.Quote, &quoteValue); err != nil {
			return uint256.Int{}, err
		}
		consumed := quoteValue
		if taker.Kind == Limit && taker.Price.Gt(&f.Price) {
			var diff, refund uint256.Int
			diff.Sub(&taker.Price, &f.Price)
			refund.Mul(&f.Qty, &diff)
			if err := e.credit(rt, em, op, taker.Creator, taker.Quote, &refund); err != nil {
				return uint256.Int{}, err
			}
			consumed.Add(&consumed, &refund)
		}
		return consumed, nil
	}

	if err := e.credit(rt, em, op, taker.Creator, taker.Quote, &quoteValue); err != nil {
		return uint256.Int{}, err
	}
	if err := e.credit(rt, em, op, maker.Creator, taker.Base, &f.Qty); err != nil {
		return uint256.Int{}, err
	}
	return f.Qty, nil
}
