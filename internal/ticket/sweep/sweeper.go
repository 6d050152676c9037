// Package sweep owns the background purge of expired ticket records.
// The sweeper is an explicit task started and stopped by the hosting
// process, never a side effect of package import.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gatepass/internal/ticket/models"
)

const (
	// The first sweep runs shortly after start so a restart cleans up
	// promptly; later sweeps are paced for a slow-moving dataset.
	DefaultInitialDelay = 2 * time.Second
	DefaultInterval     = 2 * time.Hour
)

// Purger is the store capability the sweeper drives.
type Purger interface {
	PurgeExpired(ctx context.Context) (models.PurgeResult, error)
}

// Sweeper periodically purges expired records from both storage tiers.
// A failed run is logged; the next scheduled run is the only recovery.
type Sweeper struct {
	purger       Purger
	initialDelay time.Duration
	interval     time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithInitialDelay overrides the delay before the first run.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Sweeper) {
		s.initialDelay = d
	}
}

// WithInterval overrides the period between runs.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		s.interval = d
	}
}

// New constructs a stopped Sweeper.
func New(purger Purger, opts ...Option) (*Sweeper, error) {
	if purger == nil {
		return nil, fmt.Errorf("purger is required")
	}

	s := &Sweeper{
		purger:       purger,
		initialDelay: DefaultInitialDelay,
		interval:     DefaultInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the sweep loop. Calling Start on a running sweeper is a
// no-op. The loop stops when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
// Stopping a stopped sweeper is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	initial := time.NewTimer(s.initialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return
	case <-initial.C:
	}
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	result, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
		return
	}
	if result.RemoteRemoved > 0 || result.LocalRemoved > 0 {
		s.logger.InfoContext(ctx, "expiry sweep completed",
			"remote_removed", result.RemoteRemoved,
			"local_removed", result.LocalRemoved)
	}
}
