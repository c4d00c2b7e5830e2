// Package outbox publishes events committed to the outbox table.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/metrics"
)

// Publisher delivers a batch of events to the broker.
type Publisher interface {
	Publish(ctx context.Context, events []store.Event) error
}

type Relay struct {
	store     store.Store
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewRelay(st store.Store, pub Publisher, m *metrics.Metrics, logger *slog.Logger, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     st,
		publisher: pub,
		metrics:   m,
		logger:    logger.With("component", "outbox"),
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// RelayOnce publishes one batch of pending events and marks them sent in
// the same transaction. If publishing fails nothing is marked, so the batch
// is retried on the next tick; delivery is at least once.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	sent := 0
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		events, err := tx.PendingEvents(ctx, r.batchSize)
		if err != nil {
			return fmt.Errorf("load pending events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		if err := r.publisher.Publish(ctx, events); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		ids := make([]string, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		if err := tx.MarkEventsSent(ctx, ids, r.now()); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		sent = len(events)
		return nil
	})
	if err != nil {
		if r.metrics != nil {
			r.metrics.OutboxFailures.Inc()
		}
		return 0, err
	}
	if sent > 0 {
		if r.metrics != nil {
			r.metrics.OutboxSent.Add(float64(sent))
		}
		r.logger.Debug("published outbox events", "count", sent)
	}
	return sent, nil
}

// Run relays until ctx is cancelled. A full batch is followed immediately
// by another one.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started", "interval", r.interval, "batch_size", r.batchSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("relay batch failed", "error", err)
		}
		if n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
