// Package dispatch sends bulk ticket messages in bounded-concurrency
// batches with retry and partial-failure isolation.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gatepass/internal/ticket/issue"
	"gatepass/internal/ticket/metrics"
	"gatepass/internal/ticket/models"
)

// Defaults for bulk dispatch. Batch size bounds concurrency; the
// inter-batch delay keeps external provider rate limits honest.
const (
	DefaultBatchSize       = 15
	DefaultInterBatchDelay = 500 * time.Millisecond
	DefaultSendTimeout     = 8 * time.Second
	DefaultMaxAttempts     = 2
	DefaultRetryDelay      = time.Second
)

// Options tune a single bulk run. Zero values fall back to the defaults.
type Options struct {
	BatchSize       int
	InterBatchDelay time.Duration
	SendTimeout     time.Duration
	MaxAttempts     int
	RetryDelay      time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.InterBatchDelay <= 0 {
		o.InterBatchDelay = DefaultInterBatchDelay
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// Progress is reported after every item settles. Current is monotonically
// non-decreasing; ordering across concurrent items in a batch is not
// guaranteed.
type Progress struct {
	Current      int
	Total        int
	Percentage   int
	CurrentGuest string
	Status       string
}

// ProgressFunc receives progress updates. May be nil.
type ProgressFunc func(Progress)

// Issuer is the issuance capability the batcher depends on.
type Issuer interface {
	IssueTicket(ctx context.Context, guest models.Guest, event models.Event) (*issue.Issued, error)
}

// Composer renders the outbound message for one guest. Kept injectable so
// message copy stays out of the dispatch mechanics.
type Composer func(guest models.Guest, event models.Event, downloadURL string) string

// Batcher splits a guest list into fixed-size batches and dispatches each
// batch with full internal concurrency. Batches run strictly sequentially.
type Batcher struct {
	issuer    Issuer
	transport Transport
	compose   Composer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Batcher) {
		b.metrics = m
	}
}

// WithComposer overrides the default message template.
func WithComposer(compose Composer) Option {
	return func(b *Batcher) {
		if compose != nil {
			b.compose = compose
		}
	}
}

// New constructs a Batcher. A nil transport is treated as unconfigured:
// every item settles in simulated mode.
func New(issuer Issuer, transport Transport, opts ...Option) (*Batcher, error) {
	if issuer == nil {
		return nil, fmt.Errorf("issuer is required")
	}

	b := &Batcher{
		issuer:    issuer,
		transport: transport,
		compose:   defaultComposer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func defaultComposer(guest models.Guest, event models.Event, downloadURL string) string {
	return fmt.Sprintf("Hi %s! Your ticket for %s is ready. Download it here: %s",
		guest.Name, event.Name, downloadURL)
}

// SendBulk issues and dispatches one ticket per guest. Item failures are
// isolated: they land in the report and never abort the batch or their
// siblings. The returned error is reserved for catastrophic driver
// failures before any item is attempted.
func (b *Batcher) SendBulk(ctx context.Context, guests []models.Guest, event models.Event, opts Options, onProgress ProgressFunc) (*models.BatchReport, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	opts = opts.withDefaults()
	start := time.Now()

	report := &models.BatchReport{Total: len(guests)}
	simulated := b.transport == nil || !b.transport.Configured()
	if simulated {
		b.logger.InfoContext(ctx, "transport unconfigured, dispatching in simulated mode",
			"event_id", event.ID, "total", len(guests))
	}

	tracker := &progressTracker{total: len(guests), onProgress: onProgress}

	for offset := 0; offset < len(guests); offset += opts.BatchSize {
		if offset > 0 {
			time.Sleep(opts.InterBatchDelay)
		}
		end := min(offset+opts.BatchSize, len(guests))
		outcomes := b.dispatchBatch(ctx, guests[offset:end], event, opts, simulated, tracker)

		for _, outcome := range outcomes {
			switch {
			case outcome.Simulated:
				report.Simulated++
				b.metrics.RecordOutcome("simulated")
			case outcome.Success:
				report.Sent++
				b.metrics.RecordOutcome("sent")
			default:
				report.Failed++
				b.metrics.RecordOutcome("failed")
				report.Failures = append(report.Failures, models.DispatchFailure{
					GuestID:  outcome.Guest.ID,
					Name:     outcome.Guest.Name,
					Email:    outcome.Guest.Email,
					Error:    outcome.Err.Error(),
					Attempts: outcome.Attempts,
				})
			}
		}
	}

	report.Duration = time.Since(start)
	b.metrics.ObserveDispatchDuration(report.Duration.Seconds())
	b.logger.InfoContext(ctx, "bulk dispatch completed",
		"event_id", event.ID, "total", report.Total, "sent", report.Sent,
		"simulated", report.Simulated, "failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}

// dispatchBatch runs one batch with every item in flight concurrently.
// Item goroutines always return nil so one failure cannot cancel siblings.
func (b *Batcher) dispatchBatch(ctx context.Context, guests []models.Guest, event models.Event, opts Options, simulated bool, tracker *progressTracker) []models.DispatchOutcome {
	outcomes := make([]models.DispatchOutcome, len(guests))

	g, ctx := errgroup.WithContext(ctx)
	for i, guest := range guests {
		g.Go(func() error {
			outcomes[i] = b.dispatchItem(ctx, guest, event, opts, simulated)
			tracker.settle(guest, outcomes[i])
			return nil
		})
	}
	// Error intentionally discarded: item goroutines never return one.
	_ = g.Wait()
	return outcomes
}

func (b *Batcher) dispatchItem(ctx context.Context, guest models.Guest, event models.Event, opts Options, simulated bool) models.DispatchOutcome {
	outcome := models.DispatchOutcome{Guest: guest}

	issued, err := b.issuer.IssueTicket(ctx, guest, event)
	if err != nil {
		outcome.Err = err
		outcome.Attempts = 1
		b.logger.WarnContext(ctx, "issuance failed during dispatch",
			"guest_id", guest.ID, "event_id", event.ID, "error", err)
		return outcome
	}
	outcome.Code = issued.Code

	if simulated {
		outcome.Success = true
		outcome.Simulated = true
		outcome.Attempts = 1
		return outcome
	}

	content := b.compose(guest, event, issued.DownloadURL)

	// Iterative retry: only transport errors tagged transient earn
	// another attempt, with a fixed delay between attempts.
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		outcome.Attempts = attempt

		sendCtx, cancel := context.WithTimeout(ctx, opts.SendTimeout)
		messageID, err := b.transport.Send(sendCtx, guest.Email, content)
		cancel()

		if err == nil {
			outcome.Success = true
			outcome.MessageID = messageID
			outcome.Err = nil
			return outcome
		}
		outcome.Err = err

		if !Transient(err) || attempt == opts.MaxAttempts {
			break
		}
		b.logger.WarnContext(ctx, "transient send failure, retrying",
			"guest_id", guest.ID, "attempt", attempt, "error", err)
		time.Sleep(opts.RetryDelay)
	}
	return outcome
}

// progressTracker serializes progress callbacks from concurrent items so
// Current never goes backwards.
type progressTracker struct {
	mu         sync.Mutex
	current    int
	total      int
	onProgress ProgressFunc
}

func (t *progressTracker) settle(guest models.Guest, outcome models.DispatchOutcome) {
	if t.onProgress == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current++
	status := "failed"
	switch {
	case outcome.Simulated:
		status = "simulated"
	case outcome.Success:
		status = "sent"
	}
	t.onProgress(Progress{
		Current:      t.current,
		Total:        t.total,
		Percentage:   t.current * 100 / t.total,
		CurrentGuest: guest.Name,
		Status:       status,
	})
}
