// Package worker relays audit events from the PostgreSQL outbox to a sink.
package worker

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"discard/pkg/platform/audit/store/postgres"
	txcontext "discard/pkg/platform/tx"
)

// Outbox is the pending-entry side of the outbox store.
type Outbox interface {
	FetchPending(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Sink receives relayed payloads.
type Sink interface {
	PublishPayload(ctx context.Context, payload postgres.Payload) error
}

// Worker drains the outbox in batches. Delivery is at-least-once: an entry is
// marked published only after the sink acknowledges it.
type Worker struct {
	outbox    Outbox
	sink      Sink
	db        *sql.DB
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDB runs each batch inside a transaction so FetchPending row locks
// hold until the batch is marked.
func WithDB(db *sql.DB) Option {
	return func(w *Worker) { w.db = db }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func NewWorker(outbox Outbox, sink Sink, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		sink:      sink,
		batchSize: 100,
		interval:  time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && w.logger != nil {
				w.logger.ErrorContext(ctx, "audit outbox relay failed", "error", err)
			}
		}
	}
}

// RunOnce relays one batch and returns how many entries were published.
// Entries after the first sink failure stay pending for the next run.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	var (
		published int
		sinkErr   error
	)
	relay := func(ctx context.Context) error {
		entries, err := w.outbox.FetchPending(ctx, w.batchSize)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			if sinkErr = w.sink.PublishPayload(ctx, entry.Payload); sinkErr != nil {
				break
			}
			ids = append(ids, entry.ID)
		}
		if err := w.outbox.MarkPublished(ctx, ids, w.now()); err != nil {
			return err
		}
		published = len(ids)
		// commit what was delivered; the failed entry stays pending
		return nil
	}

	var err error
	if w.db != nil {
		err = txcontext.Run(ctx, w.db, relay)
	} else {
		err = relay(ctx)
	}
	if err != nil {
		return 0, err
	}
	return published, sinkErr
}
