package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/nexusdex/pkg/app/core/event"
)

// Exchange is the order lifecycle controller. Each mutating call runs as a
// single unit: it either applies every ledger, book and event change or
// none of them.
//
// Exchange is not safe for concurrent use.
type Exchange struct {
	state   *State
	minimum MinimumPolicy
	logger  *zap.Logger

	j journal
}

type Option func(*Exchange)

func WithLogger(l *zap.Logger) Option {
	return func(e *Exchange) { e.logger = l }
}

func WithMinimumPolicy(p MinimumPolicy) Option {
	return func(e *Exchange) { e.minimum = p }
}

// New creates an exchange over state. A nil state starts empty.
func New(state *State, opts ...Option) *Exchange {
	if state == nil {
		state = NewState()
	}
	e := &Exchange{
		state:   state,
		minimum: SqrtPolicy,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exchange) State() *State { return e.state }

// Receipt describes the outcome of a successful mutating call.
type Receipt struct {
	OrderID uint64
	Status  OrderStatus
	// Filled is the base quantity traded by the opening order.
	Filled uint256.Int
	Fills  []Fill
	Events []event.Event
}

// OpenLimitOrder opens an order that trades at price or better. With ioc
// set any unfilled remainder is cancelled instead of resting.
func (e *Exchange) OpenLimitOrder(rt Runtime, creator common.Address, base, quote string, amount, price *uint256.Int, side Side, ioc bool) (*Receipt, error) {
	tif := GoodTilFilled
	if ioc {
		tif = ImmediateOrCancel
	}
	return e.open(rt, "OpenLimitOrder", &Order{
		Creator:     creator,
		Base:        base,
		Quote:       quote,
		Side:        side,
		Kind:        Limit,
		TimeInForce: tif,
		Amount:      *amount,
		Price:       *price,
	})
}

// OpenMarketOrder trades amount against the best available prices and
// cancels whatever could not be filled.
func (e *Exchange) OpenMarketOrder(rt Runtime, creator common.Address, base, quote string, amount *uint256.Int, side Side) (*Receipt, error) {
	return e.open(rt, "OpenMarketOrder", &Order{
		Creator:     creator,
		Base:        base,
		Quote:       quote,
		Side:        side,
		Kind:        Market,
		TimeInForce: ImmediateOrCancel,
		Amount:      *amount,
	})
}

func (e *Exchange) validate(rt Runtime, op string, o *Order) error {
	if !o.Side.Valid() {
		return newError(KindValidation, op, "invalid side %d", o.Side)
	}
	if !rt.IsWitness(o.Creator) {
		return newError(KindNotAuthorized, op, "%s is not a witness", o.Creator.Hex())
	}
	if o.Base == o.Quote {
		return newError(KindValidation, op, "base and quote are both %s", o.Base)
	}
	baseTok, ok := rt.FindToken(o.Base)
	if !ok {
		return newError(KindValidation, op, "unknown token %s", o.Base)
	}
	quoteTok, ok := rt.FindToken(o.Quote)
	if !ok {
		return newError(KindValidation, op, "unknown token %s", o.Quote)
	}

	if o.Amount.IsZero() {
		return newError(KindValidation, op, "amount must be positive")
	}
	minAmt := e.minimum(baseTok.Decimals)
	if o.Amount.Lt(&minAmt) {
		return newError(KindValidation, op, "amount %s below minimum %s for %s", o.Amount.Dec(), minAmt.Dec(), o.Base)
	}

	if o.Kind == Market {
		return nil
	}
	if o.Price.IsZero() {
		return newError(KindValidation, op, "price must be positive")
	}
	minPrice := e.minimum(quoteTok.Decimals)
	if o.Price.Lt(&minPrice) {
		return newError(KindValidation, op, "price %s below minimum %s for %s", o.Price.Dec(), minPrice.Dec(), o.Quote)
	}
	// Settlement multiplies fill quantities by the resting price, so the
	// full notional must be representable on either side.
	var notional uint256.Int
	if _, overflow := notional.MulOverflow(&o.Amount, &o.Price); overflow {
		return newError(KindValidation, op, "amount*price overflows")
	}
	return nil
}

func (e *Exchange) open(rt Runtime, op string, o *Order) (*Receipt, error) {
	if err := e.validate(rt, op, o); err != nil {
		return nil, err
	}

	locked, err := e.escrowFor(op, o)
	if err != nil {
		return nil, err
	}
	if bal := rt.GetBalance(o.escrowSymbol(), o.Creator); bal.Lt(&locked) {
		return nil, newError(KindInsufficientFunds, op, "%s balance %s < required %s", o.escrowSymbol(), bal.Dec(), locked.Dec())
	}

	if o.Kind == Market {
		if o.Side == Buy {
			o.Price.SetAllOne()
		} else {
			o.Price.Clear()
		}
	}

	rec := &Receipt{}
	initial := o.Amount
	events, err := e.atomic(rt, op, func(em *emitter) error {
		o.ID = e.state.allocID(&e.j)
		rec.OrderID = o.ID
		em.order(event.OrderCreated, o.Creator, o.ID)

		if err := e.lock(rt, em, op, o, &locked); err != nil {
			return err
		}

		escrowLeft := locked
		fills, err := e.match(rt, em, op, o, &escrowLeft)
		if err != nil {
			return err
		}
		rec.Fills = fills

		switch {
		case o.Amount.IsZero():
			em.order(event.OrderClosed, o.Creator, o.ID)
			rec.Status = StatusClosed
		case o.TimeInForce == ImmediateOrCancel:
			if err := e.release(rt, em, op, o, &escrowLeft); err != nil {
				return err
			}
			em.order(event.OrderCancelled, o.Creator, o.ID)
			rec.Status = StatusCancelled
		default:
			e.state.insert(&e.j, o)
			rec.Status = StatusResting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rec.Filled.Sub(&initial, &o.Amount)
	rec.Events = events

	e.logger.Debug("order_opened",
		zap.Uint64("id", rec.OrderID),
		zap.String("pair", o.Pair().String()),
		zap.Stringer("side", o.Side),
		zap.Stringer("kind", o.Kind),
		zap.String("filled", rec.Filled.Dec()),
		zap.Stringer("status", rec.Status))
	return rec, nil
}

// CancelOrder removes a resting order and returns its escrow to the creator.
func (e *Exchange) CancelOrder(rt Runtime, id uint64, caller common.Address) (*Receipt, error) {
	const op = "CancelOrder"

	o, ok := e.state.order(id)
	if !ok {
		return nil, newError(KindNotFound, op, "order %d", id)
	}
	if caller != o.Creator || !rt.IsWitness(caller) {
		return nil, newError(KindNotAuthorized, op, "%s cannot cancel order %d", caller.Hex(), id)
	}

	events, err := e.atomic(rt, op, func(em *emitter) error {
		e.state.remove(&e.j, o)
		refund := restingEscrow(o)
		if err := e.release(rt, em, op, o, &refund); err != nil {
			return err
		}
		em.order(event.OrderCancelled, o.Creator, o.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("order_cancelled", zap.Uint64("id", id))
	return &Receipt{OrderID: id, Status: StatusCancelled, Events: events}, nil
}

// GetExchangeOrder returns a copy of a resting order. Closed, cancelled
// and unknown ids are all NotFound.
func (e *Exchange) GetExchangeOrder(id uint64) (Order, error) {
	o, ok := e.state.order(id)
	if !ok {
		return Order{}, newError(KindNotFound, "GetExchangeOrder", "order %d", id)
	}
	return *o, nil
}

// GetOrderBook returns copies of the resting orders on one side of a pair
// in matching order.
func (e *Exchange) GetOrderBook(base, quote string, side Side) []Order {
	b := e.state.book(Pair{Base: base, Quote: quote}, side)
	if b == nil {
		return []Order{}
	}
	resting := b.orders()
	out := make([]Order, len(resting))
	for i, o := range resting {
		out[i] = *o
	}
	return out
}

// GetMinimumSymbolQuantity is the smallest amount or price accepted for a
// token with the given decimals.
func (e *Exchange) GetMinimumSymbolQuantity(decimals uint8) uint256.Int {
	return e.minimum(decimals)
}

// atomic runs fn with the journal armed. On error or panic every state and
// ledger change made by fn is undone and no events escape.
func (e *Exchange) atomic(rt Runtime, op string, fn func(em *emitter) error) (events []event.Event, err error) {
	snap := rt.Snapshot()
	e.j.reset()
	em := &emitter{}

	defer func() {
		if r := recover(); r != nil {
			err = newError(KindFault, op, "%v", r)
		}
		if err != nil {
			e.j.revert()
			rt.RevertToSnapshot(snap)
			events = nil
			e.logger.Debug("call_reverted", zap.String("op", op), zap.Error(err))
			return
		}
		e.j.reset()
	}()

	if err := fn(em); err != nil {
		return nil, err
	}
	return em.events, nil
}

func (e *Exchange) String() string {
	return fmt.Sprintf("Exchange{next=%d resting=%d pairs=%d}", e.state.NextID, e.state.Len(), len(e.state.Pairs()))
}
