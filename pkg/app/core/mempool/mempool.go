package mempool

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/nexusdex/pkg/app/core/transaction"
)

// Class is the proposal bucket a transaction is placed in.
type Class int

const (
	ClassNonOrder Class = iota // transfer, mint, burn
	ClassCancel
	ClassOrder
)

func (c Class) String() string {
	switch c {
	case ClassNonOrder:
		return "non_order"
	case ClassCancel:
		return "cancel"
	case ClassOrder:
		return "order"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

var (
	ErrUnclassified = errors.New("mempool: unrecognised transaction envelope")
	ErrDuplicate    = errors.New("mempool: duplicate transaction")
	ErrFull         = errors.New("mempool: full")
	ErrTooLarge     = errors.New("mempool: transaction exceeds block size")
)

// Classify reads only the envelope type. Signature and payload checks are
// left to the verifier.
func Classify(b []byte) (Class, error) {
	var envelope struct {
		Type transaction.TxType `json:"type"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnclassified, err)
	}

	switch envelope.Type {
	case transaction.TxTypeTransfer, transaction.TxTypeMint, transaction.TxTypeBurn:
		return ClassNonOrder, nil
	case transaction.TxTypeCancel:
		return ClassCancel, nil
	case transaction.TxTypeOrder:
		return ClassOrder, nil
	default:
		return 0, fmt.Errorf("%w: type %q", ErrUnclassified, envelope.Type)
	}
}

// Mempool keeps three FIFO queues drained in order: non-order, cancel,
// order. Cancels ahead of orders let makers pull quotes before takers
// arrive in the same block.
type Mempool struct {
	mu         sync.Mutex
	queues     [3][][]byte
	pending    map[common.Hash]struct{}
	limit      int
	maxTxBytes int64
}

type Option func(*Mempool)

// WithMaxTxBytes rejects transactions that could never fit in a block.
func WithMaxTxBytes(n int64) Option {
	return func(m *Mempool) { m.maxTxBytes = n }
}

// NewMempool creates a mempool holding at most limit transactions.
// A limit of zero means unbounded.
func NewMempool(limit int, opts ...Option) *Mempool {
	m := &Mempool{
		pending: make(map[common.Hash]struct{}),
		limit:   limit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PushRaw classifies and enqueues a copy of b.
func (m *Mempool) PushRaw(b []byte) (Class, error) {
	class, err := Classify(b)
	if err != nil {
		return 0, err
	}
	if m.maxTxBytes > 0 && int64(len(b)) > m.maxTxBytes {
		return class, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b), m.maxTxBytes)
	}
	h := transaction.Hash(b)
	cp := append([]byte(nil), b...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[h]; ok {
		return class, ErrDuplicate
	}
	if m.limit > 0 && len(m.pending) >= m.limit {
		return class, ErrFull
	}
	m.pending[h] = struct{}{}
	m.queues[class] = append(m.queues[class], cp)
	return class, nil
}

// SelectForProposal removes and returns up to maxBytes worth of
// transactions. A bucket stops at the first transaction that does not fit,
// which keeps FIFO order within it. A transaction larger than maxBytes on
// its own is dropped so it cannot stall its bucket.
func (m *Mempool) SelectForProposal(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64

	pull := func(q *[][]byte) {
		for len(*q) > 0 {
			tx := (*q)[0]
			n := int64(len(tx))
			if maxBytes > 0 && n > maxBytes {
				delete(m.pending, transaction.Hash(tx))
				*q = (*q)[1:]
				continue
			}
			if maxBytes > 0 && used+n > maxBytes {
				return
			}
			out = append(out, tx)
			used += n
			delete(m.pending, transaction.Hash(tx))
			*q = (*q)[1:]
		}
	}

	for i := range m.queues {
		pull(&m.queues[i])
	}
	return out
}

func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Sizes reports the queue depth per class.
func (m *Mempool) Sizes() map[Class]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[Class]int{
		ClassNonOrder: len(m.queues[ClassNonOrder]),
		ClassCancel:   len(m.queues[ClassCancel]),
		ClassOrder:    len(m.queues[ClassOrder]),
	}
}
