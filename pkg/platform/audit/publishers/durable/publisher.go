// Package durable writes audit events synchronously to a durable store,
// normally the PostgreSQL outbox that the relay worker drains to Kafka.
//
// Compliance and security events fail closed: a failed write is returned to
// the caller. Operations events are logged and dropped on failure.
package durable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	audit "discard/pkg/platform/audit"
	"discard/pkg/requestcontext"
)

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps the event from ctx, classifies it by action and appends it.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Subject == "" || event.Action == "" {
		return errors.New("audit event requires subject and action")
	}
	event.Category = audit.AuditEvent(event.Action).Category()
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	start := time.Now()
	err := p.store.Append(ctx, event)
	category := string(event.Category)
	if p.metrics != nil {
		p.metrics.observe(category, time.Since(start).Seconds(), err)
	}
	if err == nil {
		return nil
	}

	failClosed := event.Category != audit.CategoryOperations
	if p.logger != nil {
		level := slog.LevelWarn
		if failClosed {
			level = slog.LevelError
		}
		p.logger.Log(ctx, level, "audit write failed",
			"action", event.Action,
			"subject", event.Subject,
			"category", category,
			"error", err,
		)
	}
	if !failClosed {
		return nil
	}
	return fmt.Errorf("persist %s audit event: %w", category, err)
}

func (p *Publisher) Close() error {
	return nil
}
