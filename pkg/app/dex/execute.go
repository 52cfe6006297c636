package dex

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/nexusdex/pkg/abci"
	"github.com/uhyunpark/nexusdex/pkg/app/core/event"
	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/app/core/mempool"
	"github.com/uhyunpark/nexusdex/pkg/app/core/token"
	"github.com/uhyunpark/nexusdex/pkg/app/core/transaction"
	"github.com/uhyunpark/nexusdex/pkg/chain"
	"github.com/uhyunpark/nexusdex/pkg/crypto"
	"github.com/uhyunpark/nexusdex/pkg/telemetry"
)

// TxReceipt is the outcome of one transaction in a block.
type TxReceipt struct {
	Hash    common.Hash        `json:"hash"`
	Type    transaction.TxType `json:"type,omitempty"`
	From    common.Address     `json:"from"`
	Code    uint32             `json:"code"`
	Result  string             `json:"result"`
	Log     string             `json:"log,omitempty"`
	OrderID uint64             `json:"orderId,omitempty"`
	Events  []event.Event      `json:"events,omitempty"`
}

// BlockResult is what the last FinalizeBlock produced.
type BlockResult struct {
	Height  int64       `json:"height"`
	Time    int64       `json:"time"`
	AppHash chain.Hash  `json:"-"`
	Txs     []TxReceipt `json:"txs"`
}

func (a *App) PrepareProposal(req abci.RequestPrepareProposal) abci.ResponsePrepareProposal {
	txs := a.mempool.SelectForProposal(req.MaxTxBytes)
	for class, n := range a.mempool.Sizes() {
		telemetry.MempoolSize.WithLabelValues(class.String()).Set(float64(n))
	}
	return abci.ResponsePrepareProposal{Txs: txs}
}

// ProcessProposal only checks envelopes. Invalid signatures and nonces
// still make it into the block and fail there with a receipt.
func (a *App) ProcessProposal(req abci.RequestProcessProposal) abci.ResponseProcessProposal {
	for i, tx := range req.Txs {
		if _, err := mempool.Classify(tx); err != nil {
			return abci.ResponseProcessProposal{Reason: fmt.Sprintf("tx %d: %v", i, err)}
		}
	}
	return abci.ResponseProcessProposal{Accept: true}
}

// FinalizeBlock executes every transaction in order, then commits the
// resulting state. A failing transaction is reverted on its own and does
// not affect the others.
func (a *App) FinalizeBlock(req abci.RequestFinalizeBlock) (abci.ResponseFinalizeBlock, error) {
	start := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if req.Height != a.height+1 {
		return abci.ResponseFinalizeBlock{}, fmt.Errorf("finalize height %d, expected %d", req.Height, a.height+1)
	}

	receipts := make([]TxReceipt, 0, len(req.Txs))
	results := make([]abci.TxResult, 0, len(req.Txs))
	failed := 0
	for _, raw := range req.Txs {
		rec := a.deliverTx(raw, req.Timestamp)
		receipts = append(receipts, rec)
		results = append(results, abci.TxResult{Code: rec.Code, Log: rec.Log, Events: rec.Events})
		telemetry.TxsTotal.WithLabelValues(string(rec.Type), rec.Result).Inc()

		if rec.Code != CodeOK {
			failed++
			a.logger.Info("tx_failed",
				zap.Int64("height", req.Height),
				zap.String("hash", rec.Hash.Hex()),
				zap.String("type", string(rec.Type)),
				zap.String("from", rec.From.Hex()),
				zap.String("result", rec.Result),
				zap.String("log", rec.Log))
		}
	}

	a.height = req.Height
	a.appHash = a.computeAppHash(req.Height, req.Timestamp)
	if a.store != nil {
		if err := a.persist(); err != nil {
			return abci.ResponseFinalizeBlock{}, err
		}
	} else {
		a.ledger.Committed()
	}
	a.lastBlock = BlockResult{Height: req.Height, Time: req.Timestamp, AppHash: a.appHash, Txs: receipts}

	telemetry.BlocksCommitted.Inc()
	telemetry.BlockHeight.Set(float64(req.Height))
	telemetry.RestingOrders.Set(float64(a.exchange.State().Len()))
	telemetry.FinalizeDuration.Observe(time.Since(start).Seconds())

	if len(req.Txs) > 0 {
		a.logger.Info("block_finalized",
			zap.Int64("height", req.Height),
			zap.Int("txs", len(req.Txs)),
			zap.Int("failed", failed),
			zap.String("apphash", a.appHash.Hex()))
	}
	return abci.ResponseFinalizeBlock{TxResults: results, AppHash: a.appHash}, nil
}

func (r TxReceipt) fail(err error) TxReceipt {
	r.Code = codeFor(err)
	r.Result = CodeName(r.Code)
	r.Log = err.Error()
	r.Events = nil
	return r
}

// deliverTx runs one transaction. Signature, nonce and deadline failures
// touch nothing. Past those checks the nonce bump, fee and effect are one
// unit: any error reverts all three.
func (a *App) deliverTx(raw []byte, timestamp int64) TxReceipt {
	rec := TxReceipt{Hash: transaction.Hash(raw)}

	verified, err := a.verifier.VerifyRaw(raw)
	if err != nil {
		return rec.fail(err)
	}
	tx, signer := verified.Tx, verified.Signer
	rec.Type, rec.From = tx.Type, signer

	if want := a.ledger.Nonce(signer); tx.Nonce() != want {
		return rec.fail(fmt.Errorf("%w: got %d, want %d", ErrBadNonce, tx.Nonce(), want))
	}
	if o, ok := verified.Message.(*crypto.OrderEIP712); ok && o.Deadline != 0 && uint64(timestamp) > o.Deadline {
		return rec.fail(fmt.Errorf("%w: %d > %d", ErrExpired, timestamp, o.Deadline))
	}

	snap := a.ledger.Snapshot()
	a.ledger.IncrementNonce(signer)

	events, err := a.fee.charge(a.ledger, signer)
	if err == nil {
		var effects []event.Event
		effects, rec.OrderID, err = a.dispatch(verified)
		events = append(events, effects...)
	}
	if err != nil {
		a.ledger.RevertToSnapshot(snap)
		return rec.fail(err)
	}

	rec.Code = CodeOK
	rec.Result = CodeName(CodeOK)
	rec.Events = events
	return rec
}

func (a *App) dispatch(v *transaction.Verified) ([]event.Event, uint64, error) {
	rt := &txRuntime{ledger: a.ledger, tokens: a.tokens, signer: v.Signer}

	switch m := v.Message.(type) {
	case *crypto.OrderEIP712:
		var (
			rec *exchange.Receipt
			err error
		)
		side := exchange.Side(m.Side)
		if exchange.OrderKind(m.Kind) == exchange.Market {
			rec, err = a.exchange.OpenMarketOrder(rt, m.From, m.Base, m.Quote, m.Amount, side)
		} else {
			ioc := exchange.TimeInForce(m.TimeInForce) == exchange.ImmediateOrCancel
			rec, err = a.exchange.OpenLimitOrder(rt, m.From, m.Base, m.Quote, m.Amount, m.Price, side, ioc)
		}
		if err != nil {
			return nil, 0, err
		}
		if len(rec.Fills) > 0 {
			telemetry.FillsTotal.WithLabelValues(m.Base + "/" + m.Quote).Add(float64(len(rec.Fills)))
		}
		return rec.Events, rec.OrderID, nil

	case *crypto.CancelEIP712:
		rec, err := a.exchange.CancelOrder(rt, m.OrderID, m.From)
		if err != nil {
			return nil, 0, err
		}
		return rec.Events, rec.OrderID, nil

	case *crypto.TokenEIP712:
		events, err := a.applyToken(m)
		return events, 0, err

	default:
		return nil, 0, fmt.Errorf("%w: unsupported message %T", transaction.ErrMalformed, m)
	}
}

// applyToken executes the ledger primitives.
func (a *App) applyToken(m *crypto.TokenEIP712) ([]event.Event, error) {
	info, ok := a.tokens.FindToken(m.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, m.Symbol)
	}

	switch m.Action {
	case "Transfer":
		if !info.Flags.Has(token.Transferable) {
			return nil, fmt.Errorf("%w: %s", ErrNotTransferable, m.Symbol)
		}
		if err := a.ledger.Transfer(m.Symbol, m.From, m.To, m.Amount); err != nil {
			return nil, err
		}
		return []event.Event{
			event.Token(event.TokenSend, m.From, m.Symbol, m.Amount),
			event.Token(event.TokenReceive, m.To, m.Symbol, m.Amount),
		}, nil

	case "Mint":
		if info.Owner == (common.Address{}) || info.Owner != m.From {
			return nil, fmt.Errorf("%w: %s", ErrNotTokenOwner, m.Symbol)
		}
		var maxSupply = info.MaxSupply
		if !info.Flags.Has(token.Finite) {
			maxSupply = nil
		}
		if err := a.ledger.Mint(m.Symbol, m.To, m.Amount, maxSupply); err != nil {
			return nil, err
		}
		return []event.Event{event.Token(event.TokenMint, m.To, m.Symbol, m.Amount)}, nil

	case "Burn":
		if err := a.ledger.Burn(m.Symbol, m.From, m.Amount); err != nil {
			return nil, err
		}
		return []event.Event{event.Token(event.TokenBurn, m.From, m.Symbol, m.Amount)}, nil

	default:
		return nil, fmt.Errorf("%w: token action %q", transaction.ErrMalformed, m.Action)
	}
}
