package store

import (
	"sync"
	"time"

	"gatepass/internal/ticket/models"
)

const defaultCacheTTL = 5 * time.Minute

type cachedRecord struct {
	record   models.TicketRecord
	storedAt time.Time
}

// recordCache is an in-process read-through cache keyed by download code.
// Keys are precise (one code, one entry); mutations invalidate or refresh
// exactly the affected code, never by pattern matching. A read that races
// an invalidating write may serve one stale entry; last write wins.
type recordCache struct {
	mu      sync.RWMutex
	records map[string]cachedRecord
	ttl     time.Duration
}

func newRecordCache(ttl time.Duration) *recordCache {
	return &recordCache{
		records: make(map[string]cachedRecord),
		ttl:     ttl,
	}
}

func (c *recordCache) get(code string) (*models.TicketRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.records[code]; ok {
		if time.Since(cached.storedAt) < c.ttl {
			record := cached.record
			return &record, true
		}
	}
	return nil, false
}

func (c *recordCache) put(record *models.TicketRecord) {
	if record == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[record.Code] = cachedRecord{record: *record, storedAt: time.Now()}
}

func (c *recordCache) invalidate(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, code)
}
