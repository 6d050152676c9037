// Package issue creates ticket records: one download code, one encrypted
// credential, one persisted record per call. Issuance is deliberately not
// idempotent; calling twice for the same guest and event produces two
// independently valid tickets.
package issue

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"

	"gatepass/internal/ticket/events"
	"gatepass/internal/ticket/metrics"
	"gatepass/internal/ticket/models"
	"gatepass/pkg/requestcontext"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Codec is the credential encoding capability the issuer depends on.
type Codec interface {
	Encode(payload models.TicketPayload) string
}

// Store is the persistence capability the issuer depends on.
type Store interface {
	Save(ctx context.Context, code string, guest models.Guest, event models.Event, credential string) (*models.TicketRecord, error)
}

// Events is the lifecycle event sink notified on successful issuance.
type Events interface {
	Emit(ctx context.Context, eventType string, payload map[string]any)
}

// Issued is what a successful issuance hands back to the caller.
type Issued struct {
	Code        string
	DownloadURL string
	Record      *models.TicketRecord
}

// Issuer coordinates code generation, credential encoding, and persistence.
type Issuer struct {
	codec   Codec
	store   Store
	origin  string
	events  Events
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// WithEvents sets the lifecycle event sink.
func WithEvents(sink Events) Option {
	return func(i *Issuer) {
		i.events = sink
	}
}

// New constructs an Issuer. Origin is the fully-qualified base for
// retrieval URLs, e.g. "https://tickets.example.com".
func New(codec Codec, store Store, origin string, opts ...Option) (*Issuer, error) {
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if origin == "" {
		return nil, fmt.Errorf("origin is required")
	}

	i := &Issuer{
		codec:  codec,
		store:  store,
		origin: strings.TrimRight(origin, "/"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// IssueTicket builds a payload snapshot, encrypts it, persists the record,
// and returns the download code and retrieval URL. The only error surfaced
// is a persistence failure of both storage tiers.
func (i *Issuer) IssueTicket(ctx context.Context, guest models.Guest, event models.Event) (*Issued, error) {
	now := requestcontext.Now(ctx)
	code := downloadCode(event.ID, guest.ID, now.UnixMilli())

	payload := models.TicketPayload{
		GuestID:       guest.ID,
		GuestName:     guest.Name,
		GuestEmail:    guest.Email,
		EventID:       event.ID,
		EventName:     event.Name,
		IssuedAt:      now.UnixMilli(),
		SchemaVersion: models.PayloadVersion,
	}
	credential := i.codec.Encode(payload)

	record, err := i.store.Save(ctx, code, guest, event, credential)
	if err != nil {
		return nil, fmt.Errorf("issue ticket for guest %s: %w", guest.ID, err)
	}

	i.metrics.IncrementIssued()
	i.logger.InfoContext(ctx, "ticket issued",
		"code", code, "guest_id", guest.ID, "event_id", event.ID, "tier", record.Tier)
	if i.events != nil {
		i.events.Emit(ctx, events.TypeTicketIssued, map[string]any{
			"code":    code,
			"guestId": guest.ID,
			"eventId": event.ID,
			"tier":    string(record.Tier),
		})
	}

	return &Issued{
		Code:        code,
		DownloadURL: i.origin + "/#/download-ticket/" + code,
		Record:      record,
	}, nil
}

// downloadCode concatenates event id, guest id, a millisecond timestamp,
// and a random suffix, then normalizes: lowercase, hyphens stripped.
// Uniqueness leans on the timestamp plus suffix; there is no collision
// check against existing codes.
func downloadCode(eventID, guestID string, millis int64) string {
	code := fmt.Sprintf("%s_%s_%d_%s", eventID, guestID, millis, randomSuffix(6))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ToLower(code)
}

func randomSuffix(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random suffix: %v", err))
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}
