// Package sweeper runs the periodic expiry pass over nullifiers, compliance
// proofs and receive addresses.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"

	"discard/internal/sweeper/metrics"
)

const (
	StepNullifiers = "nullifiers_expire"
	StepProofs     = "proofs_expire"
	StepAddresses  = "addresses_expire"
	StepCleanup    = "nullifiers_cleanup"
)

type Nullifiers interface {
	MarkExpired(ctx context.Context) (int, error)
	CleanupExpired(ctx context.Context, olderThan time.Duration) (int, error)
}

type Proofs interface {
	ExpireProofs(ctx context.Context) (int, error)
}

type Addresses interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Result counts what one run touched, keyed by step.
type Result map[string]int

// Sweeper expires stale records. Each step only touches non-terminal rows,
// so runs are idempotent and can overlap with live traffic.
type Sweeper struct {
	nullifiers Nullifiers
	proofs     Proofs
	addresses  Addresses
	logger     *slog.Logger
	metrics    *metrics.Metrics
	interval   time.Duration
	retention  time.Duration
	timeout    time.Duration
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRetention sets how long expired nullifiers are kept before cleanup.
func WithRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithRunTimeout bounds a single scheduled run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(nullifiers Nullifiers, proofs Proofs, addresses Addresses, opts ...Option) (*Sweeper, error) {
	if nullifiers == nil || proofs == nil || addresses == nil {
		return nil, errors.New("nullifiers, proofs and addresses are required")
	}
	s := &Sweeper{
		nullifiers: nullifiers,
		proofs:     proofs,
		addresses:  addresses,
		interval:   time.Minute,
		retention:  7 * 24 * time.Hour,
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunOnce runs every step in order. A failing step does not stop the ones
// after it; the step errors are joined.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	steps := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{StepNullifiers, s.nullifiers.MarkExpired},
		{StepProofs, s.proofs.ExpireProofs},
		{StepAddresses, s.addresses.ExpireStale},
		{StepCleanup, func(ctx context.Context) (int, error) {
			return s.nullifiers.CleanupExpired(ctx, s.retention)
		}},
	}

	result := make(Result, len(steps))
	var errs []error
	for _, step := range steps {
		start := time.Now()
		n, err := step.run(ctx)
		if s.metrics != nil {
			s.metrics.ObserveStep(step.name, n, time.Since(start).Seconds(), err != nil)
		}
		if err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "sweep step failed", "step", step.name, "error", err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		result[step.name] = n
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "sweep finished",
			StepNullifiers, result[StepNullifiers],
			StepProofs, result[StepProofs],
			StepAddresses, result[StepAddresses],
			StepCleanup, result[StepCleanup],
		)
	}
	return result, errors.Join(errs...)
}

// Start schedules RunOnce every interval until ctx is cancelled. It blocks.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New()
	err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		_, _ = s.RunOnce(runCtx)
	})
	if err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	c.Start()
	<-ctx.Done()
	c.Stop()
	return nil
}
