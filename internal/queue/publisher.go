// Package queue wires the ingestion job queue on NATS JetStream. The queue
// gives at-least-once delivery; dedup against duplicate deliveries lives in
// the worker's idempotency guard, not here.
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

const (
	StreamName = "INGEST"
	Subject    = "ingest.books"

	durableName = "ingest-worker"
)

// Publisher enqueues ingestion jobs.
type Publisher struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
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

	ensureStream(js, log)

	return &Publisher{nc: nc, js: js, log: log}, nil
}

func ingestStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"ingest.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	}
}

// ensureStream creates the ingest stream if absent. Publisher and consumer
// both call it, so whichever process starts first owns stream creation.
func ensureStream(js jetstream.JetStream, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := js.CreateOrUpdateStream(ctx, ingestStreamConfig()); err != nil {
		log.Warn("could not ensure ingest stream", zap.Error(err))
		// NATS may not be ready yet or the stream already exists with another
		// owner; the next publish or consume surfaces a hard failure either way.
	}
}

// Enqueue publishes one ingestion job for the worker fleet.
func (p *Publisher) Enqueue(ctx context.Context, job models.IngestJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if _, err := p.js.Publish(ctx, Subject, data); err != nil {
		return fmt.Errorf("publish job for book %s: %w", job.BookID, err)
	}

	p.log.Info("job added to queue", zap.String("book_id", job.BookID))
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
