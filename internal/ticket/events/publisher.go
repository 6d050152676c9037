// Package events publishes ticket lifecycle events to Kafka. Publishing
// is fire-and-forget: a broker outage degrades observability, never the
// ticket path itself.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Event types emitted on the lifecycle topic.
const (
	TypeTicketIssued      = "ticket.issued"
	TypeDispatchCompleted = "ticket.dispatch.completed"
	TypeRecordsPurged     = "ticket.records.purged"
)

// Envelope is the wire form of a lifecycle event.
type Envelope struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher produces lifecycle events. A nil Publisher is valid and drops
// everything, mirroring how optional infrastructure is wired elsewhere.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// New constructs a Publisher over an existing Kafka client. Returns nil
// when the client is nil (Kafka not configured).
func New(client *kgo.Client, topic string, logger *slog.Logger) *Publisher {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, topic: topic, logger: logger}
}

// Emit publishes one event asynchronously. Delivery failures are logged,
// not returned; callers never block on the broker.
func (p *Publisher) Emit(ctx context.Context, eventType string, payload map[string]any) {
	if p == nil {
		return
	}

	envelope := Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal lifecycle event", "type", eventType, "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(eventType),
		Value: value,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.WarnContext(ctx, "lifecycle event delivery failed",
				"type", eventType, "error", err)
		}
	})
}

// Close flushes pending records and releases the client.
func (p *Publisher) Close(ctx context.Context) {
	if p == nil {
		return
	}
	if err := p.client.Flush(ctx); err != nil {
		p.logger.WarnContext(ctx, "flush lifecycle events", "error", err)
	}
	p.client.Close()
}
