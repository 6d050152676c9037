package store

import (
	"context"
	"sync"
	"time"

	"gatepass/internal/ticket/models"
	"gatepass/pkg/platform/sentinel"
)

// InMemoryBackend keeps ticket records in process memory. It backs unit
// tests and serves as the local tier when no Redis is configured. It
// intentionally favors clarity over performance.
type InMemoryBackend struct {
	mu      sync.RWMutex
	tier    models.Tier
	records map[string]models.TicketRecord
}

// NewInMemoryBackend constructs a memory backend reporting the given tier.
func NewInMemoryBackend(tier models.Tier) *InMemoryBackend {
	return &InMemoryBackend{
		tier:    tier,
		records: make(map[string]models.TicketRecord),
	}
}

func (b *InMemoryBackend) Tier() models.Tier {
	return b.tier
}

func (b *InMemoryBackend) Save(_ context.Context, record *models.TicketRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[record.Code] = *record
	return nil
}

func (b *InMemoryBackend) Find(_ context.Context, code string) (*models.TicketRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if record, ok := b.records[code]; ok {
		return &record, nil
	}
	return nil, sentinel.ErrNotFound
}

func (b *InMemoryBackend) Update(_ context.Context, record *models.TicketRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[record.Code]; !ok {
		return sentinel.ErrNotFound
	}
	b.records[record.Code] = *record
	return nil
}

func (b *InMemoryBackend) Delete(_ context.Context, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, code)
	return nil
}

func (b *InMemoryBackend) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for code, record := range b.records {
		if now.After(record.ExpiresAt) {
			delete(b.records, code)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored records. Test helper.
func (b *InMemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}
