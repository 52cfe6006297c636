package abci

import (
	"fmt"

	"github.com/uhyunpark/nexusdex/pkg/app/core/event"
	"github.com/uhyunpark/nexusdex/pkg/chain"
)

type RequestPrepareProposal struct{ Height, MaxTxBytes int64 }
type ResponsePrepareProposal struct{ Txs [][]byte }
type RequestProcessProposal struct {
	Height int64
	Txs    [][]byte
}
type ResponseProcessProposal struct {
	Accept bool
	Reason string
}
type RequestFinalizeBlock struct {
	Height    int64
	Timestamp int64 // Unix seconds
	Txs       [][]byte
}

// TxResult is the per-transaction outcome. Code zero is success; a failed
// transaction carries no events and leaves state untouched.
type TxResult struct {
	Code   uint32        `json:"code"`
	Log    string        `json:"log,omitempty"`
	Events []event.Event `json:"events,omitempty"`
}

type ResponseFinalizeBlock struct {
	TxResults []TxResult
	AppHash   chain.Hash // state after executing every tx
}

type Application interface {
	PrepareProposal(RequestPrepareProposal) ResponsePrepareProposal
	ProcessProposal(RequestProcessProposal) ResponseProcessProposal
	FinalizeBlock(RequestFinalizeBlock) (ResponseFinalizeBlock, error)
}

// Bridge adapts an Application to the block producer.
type Bridge struct {
	App        Application
	MaxTxBytes int64

	// OnFinalize observes every finalized block with its results.
	OnFinalize func(chain.Block, ResponseFinalizeBlock)
}

func (b *Bridge) PreparePayload(_ chain.Block, next chain.Height) []byte {
	max := b.MaxTxBytes
	if max == 0 {
		max = 1 << 24
	}
	resp := b.App.PrepareProposal(RequestPrepareProposal{Height: int64(next), MaxTxBytes: max})
	return joinPayload(resp.Txs)
}

func (b *Bridge) OnCommit(committed chain.Block) (chain.Hash, error) {
	txs := splitPayload(committed.Payload)

	pp := b.App.ProcessProposal(RequestProcessProposal{Height: int64(committed.Height), Txs: txs})
	if !pp.Accept {
		return chain.Hash{}, fmt.Errorf("proposal rejected at height %d: %s", committed.Height, pp.Reason)
	}

	resp, err := b.App.FinalizeBlock(RequestFinalizeBlock{
		Height:    int64(committed.Height),
		Timestamp: committed.Time.Unix(),
		Txs:       txs,
	})
	if err != nil {
		return chain.Hash{}, err
	}
	if b.OnFinalize != nil {
		b.OnFinalize(committed, resp)
	}
	return resp.AppHash, nil
}

var _ chain.AppHook = (*Bridge)(nil)

// Transactions are JSON, which never contains a NUL byte, so 0x00 is a safe
// delimiter.
func joinPayload(txs [][]byte) []byte {
	var payload []byte
	for _, tx := range txs {
		payload = append(payload, tx...)
		payload = append(payload, 0x00)
	}
	return payload
}

func splitPayload(p []byte) [][]byte {
	var out [][]byte
	cur := make([]byte, 0, len(p))
	for _, b := range p {
		if b == 0x00 {
			if len(cur) > 0 {
				out = append(out, append([]byte(nil), cur...))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, b)
	}
	if len(cur) > 0 {
		out = append(out, append([]byte(nil), cur...))
	}
	return out
}

// SplitPayload returns the transactions packed in a block payload.
func SplitPayload(p []byte) [][]byte { return splitPayload(p) }
