// Package worker relays audit events from the Postgres outbox to a
// downstream sink such as Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	audit "landdocs/pkg/platform/audit"
)

// Outbox is the claim-and-mark side of the outbox table.
type Outbox interface {
	Relay(ctx context.Context, limit int, publish func(context.Context, audit.Event) error) (int, error)
}

// Worker polls the outbox and forwards entries to sink.
type Worker struct {
	outbox   Outbox
	sink     audit.Store
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewWorker(outbox Outbox, sink audit.Store, logger *slog.Logger, interval time.Duration, batch int) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{outbox: outbox, sink: sink, logger: logger, interval: interval, batch: batch}
}

// Run relays until ctx is cancelled. A full batch is followed immediately by
// another pass; otherwise the worker waits one interval.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.WarnContext(ctx, "audit relay pass failed", "relayed", n, "error", err)
		}
		if err == nil && n == w.batch {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce relays a single batch.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	return w.outbox.Relay(ctx, w.batch, w.sink.Append)
}
