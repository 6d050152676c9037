// Package store persists ticket records across two independent tiers: a
// remote primary and a local fallback. The tiers are deliberately not kept
// consistent with each other; a record lives in exactly one tier for its
// whole lifetime.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatepass/internal/ticket/metrics"
	"gatepass/internal/ticket/models"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/requestcontext"
)

// TicketTTL is how long an issued ticket stays retrievable. Fixed by
// product decision, not configurable per ticket.
const TicketTTL = 7 * 24 * time.Hour

// Backend is the capability one storage tier implements. Find returns
// sentinel.ErrNotFound when the code is absent; expiry is handled above
// this interface by the TieredStore.
type Backend interface {
	Tier() models.Tier
	Save(ctx context.Context, record *models.TicketRecord) error
	Find(ctx context.Context, code string) (*models.TicketRecord, error)
	Update(ctx context.Context, record *models.TicketRecord) error
	Delete(ctx context.Context, code string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// TieredStore orchestrates the two tiers: writes prefer the remote tier
// and fall back to local, reads probe remote then local. Callers cannot
// force a tier.
type TieredStore struct {
	remote  Backend
	local   Backend
	cache   *recordCache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a TieredStore.
type Option func(*TieredStore)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *TieredStore) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TieredStore) {
		s.metrics = m
	}
}

// WithCacheTTL overrides the record cache retention.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *TieredStore) {
		s.cache = newRecordCache(ttl)
	}
}

// New constructs a TieredStore over the given remote and local backends.
func New(remote, local Backend, opts ...Option) (*TieredStore, error) {
	if remote == nil || local == nil {
		return nil, fmt.Errorf("both remote and local backends are required")
	}

	s := &TieredStore{
		remote: remote,
		local:  local,
		cache:  newRecordCache(defaultCacheTTL),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save persists a new ticket record. The remote tier is tried first; any
// remote failure falls through to the local tier. Only when both tiers
// reject the write does the error escalate to the caller.
func (s *TieredStore) Save(ctx context.Context, code string, guest models.Guest, event models.Event, credential string) (*models.TicketRecord, error) {
	now := requestcontext.Now(ctx)
	record := &models.TicketRecord{
		Code:       code,
		Guest:      guest,
		Event:      event,
		Credential: credential,
		CreatedAt:  now,
		ExpiresAt:  now.Add(TicketTTL),
		Tier:       models.TierRemote,
	}

	remoteErr := s.remote.Save(ctx, record)
	if remoteErr == nil {
		s.metrics.RecordSave(string(models.TierRemote))
		s.cache.put(record)
		return record, nil
	}
	s.logger.WarnContext(ctx, "remote tier save failed, falling back to local",
		"code", code, "error", remoteErr)

	record.Tier = models.TierLocal
	if localErr := s.local.Save(ctx, record); localErr != nil {
		return nil, fmt.Errorf("%w: remote: %v, local: %v",
			sentinel.ErrPersistenceFailed, remoteErr, localErr)
	}
	s.metrics.RecordSave(string(models.TierLocal))
	s.cache.put(record)
	return record, nil
}

// GetByCode returns the live record for a download code, or nil when the
// code is unknown or expired; callers cannot distinguish the two. A live
// hit increments DownloadCount and stamps LastAccessed on the owning tier.
// An expired record is deleted from its tier before returning nil.
//
// Known limitation: a record that lives only in the remote tier is
// invisible while that tier is unreachable. There is no retry or merge.
func (s *TieredStore) GetByCode(ctx context.Context, code string) (*models.TicketRecord, error) {
	now := requestcontext.Now(ctx)

	record, backend := s.find(ctx, code)
	if record == nil {
		return nil, nil
	}

	if record.Expired(now) {
		s.cache.invalidate(code)
		if err := backend.Delete(ctx, code); err != nil {
			s.logger.WarnContext(ctx, "failed to delete expired record",
				"code", code, "tier", backend.Tier(), "error", err)
		}
		return nil, nil
	}

	// Read-modify-write without cross-process atomicity; single-row
	// writes on each tier are the only guarantee relied upon.
	record.DownloadCount++
	record.LastAccessed = &now
	if err := backend.Update(ctx, record); err != nil {
		s.logger.WarnContext(ctx, "failed to persist access counters",
			"code", code, "tier", backend.Tier(), "error", err)
	}
	s.cache.put(record)
	return record, nil
}

// MarkDownloaded flags the record as downloaded on whichever tier holds
// it. Returns sentinel.ErrNotFound when no tier has the code.
func (s *TieredStore) MarkDownloaded(ctx context.Context, code string) error {
	record, backend := s.find(ctx, code)
	if record == nil {
		return sentinel.ErrNotFound
	}

	now := requestcontext.Now(ctx)
	record.Downloaded = true
	record.DownloadedAt = &now
	if err := backend.Update(ctx, record); err != nil {
		return fmt.Errorf("mark downloaded on %s tier: %w", backend.Tier(), err)
	}
	s.cache.put(record)
	return nil
}

// PurgeExpired removes expired records from both tiers. The tiers are
// independent failure domains: a failure purging one never prevents
// purging the other. The error is non-nil only when both tiers fail.
func (s *TieredStore) PurgeExpired(ctx context.Context) (models.PurgeResult, error) {
	now := requestcontext.Now(ctx)
	var result models.PurgeResult

	remoteRemoved, remoteErr := s.remote.DeleteExpired(ctx, now)
	if remoteErr != nil {
		s.logger.ErrorContext(ctx, "remote tier purge failed", "error", remoteErr)
	}
	result.RemoteRemoved = remoteRemoved
	s.metrics.RecordPurged(string(models.TierRemote), remoteRemoved)

	localRemoved, localErr := s.local.DeleteExpired(ctx, now)
	if localErr != nil {
		s.logger.ErrorContext(ctx, "local tier purge failed", "error", localErr)
	}
	result.LocalRemoved = localRemoved
	s.metrics.RecordPurged(string(models.TierLocal), localRemoved)

	// Purged codes may still sit in the cache; records expire out of it
	// within the cache TTL, and GetByCode re-checks expiry on every hit.

	if remoteErr != nil && localErr != nil {
		return result, fmt.Errorf("%w: remote: %v, local: %v",
			sentinel.ErrPersistenceFailed, remoteErr, localErr)
	}
	return result, nil
}

// find locates the record and its owning backend. The cache only
// short-circuits tier probing; the owning backend is always re-read so
// counters and flags mutate against fresh state.
func (s *TieredStore) find(ctx context.Context, code string) (*models.TicketRecord, Backend) {
	order := []Backend{s.remote, s.local}
	if cached, ok := s.cache.get(code); ok {
		s.metrics.RecordCacheHit()
		if cached.Tier == models.TierLocal {
			order = []Backend{s.local}
		} else {
			order = []Backend{s.remote}
		}
	} else {
		s.metrics.RecordCacheMiss()
	}

	for _, backend := range order {
		record, err := backend.Find(ctx, code)
		if err == nil {
			return record, backend
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "tier lookup failed",
				"code", code, "tier", backend.Tier(), "error", err)
		}
	}
	return nil, nil
}
