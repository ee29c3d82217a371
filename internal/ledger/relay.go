package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/kafka"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/storage"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
)

// Publisher delivers outbox messages downstream.
type Publisher interface {
	Publish(ctx context.Context, msgs []kafka.Message) error
}

// Relay drains the ledger outbox into a Publisher. Delivery is at least
// once: a crash between publish and mark republishes the batch, keyed by
// migration id so consumers can deduplicate.
type Relay struct {
	outbox    storage.OutboxStore
	publisher Publisher
	logger    *slog.Logger
	metrics   *RelayMetrics
	interval  time.Duration
	batchSize int
}

type RelayOption func(*Relay)

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithRelayMetrics(m *RelayMetrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRelay(outbox storage.OutboxStore, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		logger:    slog.Default(),
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls the outbox until ctx is cancelled. Flush errors are logged and
// retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "outbox flush failed", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Flush publishes pending outbox rows in batches until none remain and
// returns how many were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	published := 0
	for {
		pending, err := r.outbox.PendingOutbox(ctx, r.batchSize)
		if err != nil {
			return published, fmt.Errorf("load pending outbox: %w", err)
		}
		if len(pending) == 0 {
			return published, nil
		}

		msgs := make([]kafka.Message, 0, len(pending))
		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			msgs = append(msgs, kafka.Message{
				Key:   []byte(p.MigrationID.String()),
				Value: p.Payload,
			})
			ids = append(ids, p.ID)
		}
		if err := r.publisher.Publish(ctx, msgs); err != nil {
			r.metrics.incrementFailure()
			return published, fmt.Errorf("publish outbox batch: %w", err)
		}
		if err := r.outbox.MarkOutboxPublished(ctx, ids, time.Now().UTC()); err != nil {
			return published, fmt.Errorf("mark outbox published: %w", err)
		}
		published += len(pending)
		r.metrics.addPublished(len(pending))

		if len(pending) < r.batchSize {
			return published, nil
		}
	}
}
