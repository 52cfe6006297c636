package chain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/nexusdex/pkg/util"
)

type ProducerConfig struct {
	BlockTime time.Duration
	Proposer  string
	// SkipEmpty suppresses blocks with no transactions.
	SkipEmpty bool
}

// Producer seals a block every BlockTime on a single node. There is no
// voting: a block is final once the application has executed it.
type Producer struct {
	cfg    ProducerConfig
	store  BlockStore
	app    AppHook
	clock  util.Clock
	logger *zap.SugaredLogger

	head     Block
	onCommit []func(Block)
}

// NewProducer resumes from the committed head in store, or from an empty
// genesis at height zero.
func NewProducer(cfg ProducerConfig, store BlockStore, app AppHook, clock util.Clock, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	p := &Producer{
		cfg:    cfg,
		store:  store,
		app:    app,
		clock:  clock,
		logger: logger.Sugar(),
	}

	h, ok, err := store.GetCommitted()
	if err != nil {
		return nil, fmt.Errorf("load committed head: %w", err)
	}
	if ok {
		blk, found, err := store.GetBlock(h)
		if err != nil {
			return nil, fmt.Errorf("load head block: %w", err)
		}
		if !found {
			return nil, fmt.Errorf("committed head %s missing from store", h)
		}
		p.head = blk
	}
	return p, nil
}

// OnCommit registers fn to run after each block is stored.
func (p *Producer) OnCommit(fn func(Block)) {
	p.onCommit = append(p.onCommit, fn)
}

func (p *Producer) Head() Block { return p.head }

// Step seals and commits one block. With SkipEmpty set and nothing to
// include it returns false.
func (p *Producer) Step() (Block, bool, error) {
	next := p.head.Height + 1
	payload := p.app.PreparePayload(p.head, next)
	if p.cfg.SkipEmpty && len(payload) == 0 {
		return Block{}, false, nil
	}

	var parent Hash
	if p.head.Height > 0 {
		parent = HashOfBlock(p.head)
	}
	blk := Block{
		Height:   next,
		Parent:   parent,
		Payload:  payload,
		Proposer: p.cfg.Proposer,
		Time:     p.clock.Now().UTC(),
	}

	appHash, err := p.app.OnCommit(blk)
	if err != nil {
		return Block{}, false, fmt.Errorf("execute block %d: %w", next, err)
	}
	blk.AppHash = appHash

	if err := p.store.SaveBlock(blk); err != nil {
		return Block{}, false, fmt.Errorf("save block %d: %w", next, err)
	}
	if err := p.store.SetCommitted(HashOfBlock(blk)); err != nil {
		return Block{}, false, fmt.Errorf("commit block %d: %w", next, err)
	}
	p.head = blk

	if len(payload) > 0 {
		p.logger.Infow("block_committed", "height", blk.Height, "bytes", len(payload), "apphash", blk.AppHash.Hex())
	} else {
		p.logger.Debugw("block_committed", "height", blk.Height, "apphash", blk.AppHash.Hex())
	}
	for _, fn := range p.onCommit {
		fn(blk)
	}
	return blk, true, nil
}

// Run seals blocks until ctx is cancelled or a block fails to commit.
func (p *Producer) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.BlockTime)
	defer ticker.Stop()

	p.logger.Infow("producer_started", "height", p.head.Height, "block_time", p.cfg.BlockTime.String(), "proposer", p.cfg.Proposer)
	for {
		select {
		case <-ctx.Done():
			p.logger.Infow("producer_stopped", "height", p.head.Height)
			return ctx.Err()
		case <-ticker.C():
			if _, _, err := p.Step(); err != nil {
				p.logger.Errorw("block_failed", "height", p.head.Height+1, "err", err)
				return err
			}
		}
	}
}
