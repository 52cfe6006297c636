// Package feed streams committed transaction receipts to Kafka for
// off-chain consumers such as indexers and market data services.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/nexusdex/pkg/app/dex"
	"github.com/uhyunpark/nexusdex/pkg/telemetry"
	"github.com/uhyunpark/nexusdex/params"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the value of every record. Records are keyed by the sender
// address so one account's history stays ordered within a partition.
type Message struct {
	Height  int64         `json:"height"`
	Time    int64         `json:"time"`
	Receipt dex.TxReceipt `json:"receipt"`
}

const defaultQueue = 256

// Publisher hands finished blocks to a background writer. The block
// producer never waits on Kafka: when the queue is full the block is
// dropped and counted.
type Publisher struct {
	writer messageWriter
	logger *zap.Logger
	queue  chan dex.BlockResult
}

func NewPublisher(cfg params.Kafka, logger *zap.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newPublisher(w, logger, defaultQueue)
}

func newPublisher(w messageWriter, logger *zap.Logger, queue int) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: w, logger: logger, queue: make(chan dex.BlockResult, queue)}
}

// Enqueue schedules a block for publishing. Blocks without transactions
// are skipped.
func (p *Publisher) Enqueue(b dex.BlockResult) {
	if len(b.Txs) == 0 {
		return
	}
	select {
	case p.queue <- b:
	default:
		telemetry.FeedMessagesPublished.WithLabelValues("dropped").Add(float64(len(b.Txs)))
		p.logger.Warn("feed_queue_full", zap.Int64("height", b.Height))
	}
}

// Run publishes queued blocks until ctx is done, then closes the writer.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.writer.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-p.queue:
			if err := p.publish(ctx, b); err != nil && ctx.Err() == nil {
				p.logger.Error("feed_publish_failed", zap.Int64("height", b.Height), zap.Error(err))
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, b dex.BlockResult) error {
	msgs, err := Messages(b)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		telemetry.FeedMessagesPublished.WithLabelValues("error").Add(float64(len(msgs)))
		return err
	}
	telemetry.FeedMessagesPublished.WithLabelValues("ok").Add(float64(len(msgs)))
	p.logger.Debug("feed_published", zap.Int64("height", b.Height), zap.Int("messages", len(msgs)))
	return nil
}

// Messages renders one record per receipt, in block order.
func Messages(b dex.BlockResult) ([]kafka.Message, error) {
	out := make([]kafka.Message, 0, len(b.Txs))
	for _, r := range b.Txs {
		value, err := json.Marshal(Message{Height: b.Height, Time: b.Time, Receipt: r})
		if err != nil {
			return nil, err
		}
		out = append(out, kafka.Message{Key: []byte(r.From.Hex()), Value: value})
	}
	return out, nil
}
