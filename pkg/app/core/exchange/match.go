package exchange

import (
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/nexusdex/pkg/app/core/event"
)

// crosses reports whether a resting maker is acceptable to the taker.
func crosses(taker, maker *Order) bool {
	if taker.Side == Buy {
		return !maker.Price.Gt(&taker.Price)
	}
	return !maker.Price.Lt(&taker.Price)
}

// match walks the opposite book in canonical order, settling each fill as
// it goes. escrowLeft is reduced by what every fill consumes from the
// taker's lock. Filled makers are removed and closed in walk order.
func (e *Exchange) match(rt Runtime, em *emitter, op string, taker *Order, escrowLeft *uint256.Int) ([]Fill, error) {
	opp := e.state.book(taker.Pair(), taker.Side.Opposite())
	if opp == nil {
		return nil, nil
	}

	var fills []Fill
	for !taker.Amount.IsZero() {
		maker := opp.best()
		if maker == nil || !crosses(taker, maker) {
			break
		}

		f := Fill{
			TakerID: taker.ID,
			MakerID: maker.ID,
			Qty:     minAmount(&taker.Amount, &maker.Amount),
			Price:   maker.Price,
		}

		consumed, err := e.settle(rt, em, op, taker, maker, &f)
		if err != nil {
			return nil, err
		}
		if escrowLeft.Lt(&consumed) {
			return nil, newError(KindFault, op, "fill consumed more than the locked escrow")
		}
		escrowLeft.Sub(escrowLeft, &consumed)

		e.state.reduce(&e.j, taker, &f.Qty)
		e.state.reduce(&e.j, maker, &f.Qty)
		if maker.Amount.IsZero() {
			e.state.remove(&e.j, maker)
			em.order(event.OrderClosed, maker.Creator, maker.ID)
		}

		e.logger.Debug("order_fill",
			zap.Uint64("taker", f.TakerID),
			zap.Uint64("maker", f.MakerID),
			zap.String("qty", f.Qty.Dec()),
			zap.String("price", f.Price.Dec()))

		fills = append(fills, f)
	}
	return fills, nil
}
