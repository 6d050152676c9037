package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gatepass/internal/ticket/models"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/requestcontext"
)

const (
	// Redis key layout: one JSON blob per record plus an index set of
	// active codes maintained in lockstep with record writes/deletes.
	recordKeyPrefix = "ticket_"
	codesIndexKey   = "ticket_codes"
)

// RedisBackend is the local-tier key-value store. Per-record keys carry a
// Redis TTL matching the ticket expiry so the store self-cleans even when
// the sweeper never runs; the index set is trimmed by sweeps.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend constructs a Redis-backed local tier.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Tier() models.Tier {
	return models.TierLocal
}

func (b *RedisBackend) Save(ctx context.Context, record *models.TicketRecord) error {
	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal ticket record: %w", err)
	}

	ttl := record.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return fmt.Errorf("%w: record expired before save", sentinel.ErrExpired)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, recordKeyPrefix+record.Code, blob, ttl)
	pipe.SAdd(ctx, codesIndexKey, record.Code)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}
	return nil
}

func (b *RedisBackend) Find(ctx context.Context, code string) (*models.TicketRecord, error) {
	blob, err := b.client.Get(ctx, recordKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}

	var record models.TicketRecord
	if err := json.Unmarshal(blob, &record); err != nil {
		return nil, fmt.Errorf("unmarshal ticket record: %w", err)
	}
	record.Tier = models.TierLocal
	return &record, nil
}

func (b *RedisBackend) Update(ctx context.Context, record *models.TicketRecord) error {
	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal ticket record: %w", err)
	}
	// KEEPTTL preserves the expiry set at save time.
	if err := b.client.Set(ctx, recordKeyPrefix+record.Code, blob, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, code string) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, recordKeyPrefix+code)
	pipe.SRem(ctx, codesIndexKey, code)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return nil
}

// DeleteExpired walks the code index. A record key can be gone already
// (Redis TTL fired); those codes are dropped from the index but not
// counted as removed by this sweep.
func (b *RedisBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	codes, err := b.client.SMembers(ctx, codesIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list ticket codes: %w", err)
	}

	removed := 0
	for _, code := range codes {
		record, err := b.Find(ctx, code)
		if errors.Is(err, sentinel.ErrNotFound) {
			if err := b.client.SRem(ctx, codesIndexKey, code).Err(); err != nil {
				return removed, fmt.Errorf("trim ticket index: %w", err)
			}
			continue
		}
		if err != nil {
			return removed, err
		}
		if now.After(record.ExpiresAt) {
			if err := b.Delete(ctx, code); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
