// Package service is the consumer-facing surface of the ticket lifecycle:
// bulk issue-and-dispatch, retrieval by download code, download marking,
// and expiry purging. The HTTP layer and any future callers go through
// this facade rather than the underlying components.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"gatepass/internal/ticket/dispatch"
	"gatepass/internal/ticket/events"
	"gatepass/internal/ticket/models"
)

// Store is the persistence surface the service consumes.
type Store interface {
	GetByCode(ctx context.Context, code string) (*models.TicketRecord, error)
	MarkDownloaded(ctx context.Context, code string) error
	PurgeExpired(ctx context.Context) (models.PurgeResult, error)
}

// Batcher is the bulk dispatch capability.
type Batcher interface {
	SendBulk(ctx context.Context, guests []models.Guest, event models.Event, opts dispatch.Options, onProgress dispatch.ProgressFunc) (*models.BatchReport, error)
}

// Service ties the lifecycle components together and emits lifecycle
// events around them.
type Service struct {
	store   Store
	batcher Batcher
	events  *events.Publisher
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEvents sets the lifecycle event publisher. A nil publisher is fine.
func WithEvents(publisher *events.Publisher) Option {
	return func(s *Service) {
		s.events = publisher
	}
}

// New constructs the ticket service.
func New(store Store, batcher Batcher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ticket store is required")
	}
	if batcher == nil {
		return nil, fmt.Errorf("dispatch batcher is required")
	}

	s := &Service{
		store:   store,
		batcher: batcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAndDispatch issues one ticket per guest and dispatches the lot.
// Per-item failures live in the report; only a driver-level failure
// before any item is attempted returns an error.
func (s *Service) IssueAndDispatch(ctx context.Context, guests []models.Guest, event models.Event, opts dispatch.Options, onProgress dispatch.ProgressFunc) (*models.BatchReport, error) {
	report, err := s.batcher.SendBulk(ctx, guests, event, opts, onProgress)
	if err != nil {
		return nil, fmt.Errorf("bulk dispatch for event %s: %w", event.ID, err)
	}

	s.events.Emit(ctx, events.TypeDispatchCompleted, map[string]any{
		"eventId":   event.ID,
		"total":     report.Total,
		"sent":      report.Sent,
		"simulated": report.Simulated,
		"failed":    report.Failed,
	})
	return report, nil
}

// GetTicketByCode returns the live record for a code, or nil when the
// code is unknown or expired. The two cases are indistinguishable to the
// caller on purpose.
func (s *Service) GetTicketByCode(ctx context.Context, code string) (*models.TicketRecord, error) {
	record, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", code, err)
	}
	return record, nil
}

// MarkTicketAsDownloaded flags the record on its owning tier.
func (s *Service) MarkTicketAsDownloaded(ctx context.Context, code string) error {
	if err := s.store.MarkDownloaded(ctx, code); err != nil {
		return fmt.Errorf("mark ticket %s downloaded: %w", code, err)
	}
	return nil
}

// PurgeExpired removes expired records from both tiers and reports
// per-tier counts.
func (s *Service) PurgeExpired(ctx context.Context) (models.PurgeResult, error) {
	result, err := s.store.PurgeExpired(ctx)
	if err != nil {
		return result, err
	}

	if result.RemoteRemoved > 0 || result.LocalRemoved > 0 {
		s.events.Emit(ctx, events.TypeRecordsPurged, map[string]any{
			"remoteRemoved": result.RemoteRemoved,
			"localRemoved":  result.LocalRemoved,
		})
	}
	return result, nil
}
