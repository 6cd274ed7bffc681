package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/unboundlabs/unbound/internal/models"
)

// Handler processes one job delivery. A nil return acks the message
// (including skipped duplicates); an error naks it so JetStream redelivers
// per the consumer's backoff schedule.
type Handler func(ctx context.Context, job models.IngestJob) error

// Consumer is the worker-side subscription to the ingest stream.
type Consumer struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	cctx jetstream.ConsumeContext
	log  *zap.Logger
}

func NewConsumer(url string, log *zap.Logger) (*Consumer, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	// A worker may boot before the API ever published; it still needs the
	// stream to exist before its consumer can bind to it.
	ensureStream(js, log)

	return &Consumer{nc: nc, js: js, log: log}, nil
}

// Consume starts the durable work-queue consumer. ackWait is the per-job
// lease: it must exceed the worst-case conversion+indexing time, or the job
// is considered abandoned and redelivered while still running.
func (c *Consumer) Consume(ctx context.Context, ackWait time.Duration, handler Handler) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    3,
		BackOff:       []time.Duration{5 * time.Second, 10 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cctx, err := cons.Consume(func(msg jetstream.Msg) {
		var job models.IngestJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			c.log.Error("undecodable job payload, dropping", zap.Error(err))
			_ = msg.Term() // malformed forever, redelivery cannot help
			return
		}

		if err := handler(context.Background(), job); err != nil {
			c.log.Error("job failed, requesting redelivery",
				zap.String("book_id", job.BookID), zap.Error(err))
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	c.cctx = cctx

	c.log.Info("worker listening on queue",
		zap.String("stream", StreamName), zap.String("subject", Subject))
	return nil
}

func (c *Consumer) Close() {
	if c.cctx != nil {
		c.cctx.Stop()
	}
	if c.nc != nil {
		c.nc.Close()
	}
}
