package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gatepass/internal/ticket/models"
	"gatepass/pkg/platform/sentinel"
)

// PostgresBackend persists ticket records in PostgreSQL and serves as the
// remote tier. Guest and event snapshots are stored as JSONB blobs so the
// row layout does not chase the snapshot shape.
//
// Expected schema:
//
//	CREATE TABLE tickets (
//	    code           TEXT PRIMARY KEY,
//	    guest          JSONB NOT NULL,
//	    event          JSONB NOT NULL,
//	    credential     TEXT NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    expires_at     TIMESTAMPTZ NOT NULL,
//	    downloaded     BOOLEAN NOT NULL DEFAULT false,
//	    downloaded_at  TIMESTAMPTZ,
//	    download_count INTEGER NOT NULL DEFAULT 0,
//	    last_accessed  TIMESTAMPTZ
//	);
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend constructs a PostgreSQL-backed remote tier.
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Tier() models.Tier {
	return models.TierRemote
}

func (b *PostgresBackend) Save(ctx context.Context, record *models.TicketRecord) error {
	guest, err := json.Marshal(record.Guest)
	if err != nil {
		return fmt.Errorf("marshal guest snapshot: %w", err)
	}
	event, err := json.Marshal(record.Event)
	if err != nil {
		return fmt.Errorf("marshal event snapshot: %w", err)
	}

	query := `
		INSERT INTO tickets (code, guest, event, credential, created_at, expires_at, downloaded, download_count)
		VALUES ($1, $2, $3, $4, $5, $6, false, 0)
	`
	_, err = b.db.ExecContext(ctx, query,
		record.Code, guest, event, record.Credential, record.CreatedAt, record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Find(ctx context.Context, code string) (*models.TicketRecord, error) {
	query := `
		SELECT code, guest, event, credential, created_at, expires_at,
		       downloaded, downloaded_at, download_count, last_accessed
		FROM tickets WHERE code = $1
	`
	var (
		record       models.TicketRecord
		guest, event []byte
		downloadedAt sql.NullTime
		lastAccessed sql.NullTime
	)
	err := b.db.QueryRowContext(ctx, query, code).Scan(
		&record.Code, &guest, &event, &record.Credential,
		&record.CreatedAt, &record.ExpiresAt,
		&record.Downloaded, &downloadedAt, &record.DownloadCount, &lastAccessed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find ticket: %w", err)
	}

	if err := json.Unmarshal(guest, &record.Guest); err != nil {
		return nil, fmt.Errorf("unmarshal guest snapshot: %w", err)
	}
	if err := json.Unmarshal(event, &record.Event); err != nil {
		return nil, fmt.Errorf("unmarshal event snapshot: %w", err)
	}
	if downloadedAt.Valid {
		record.DownloadedAt = &downloadedAt.Time
	}
	if lastAccessed.Valid {
		record.LastAccessed = &lastAccessed.Time
	}
	record.Tier = models.TierRemote
	return &record, nil
}

func (b *PostgresBackend) Update(ctx context.Context, record *models.TicketRecord) error {
	query := `
		UPDATE tickets
		SET downloaded = $2, downloaded_at = $3, download_count = $4, last_accessed = $5
		WHERE code = $1
	`
	result, err := b.db.ExecContext(ctx, query,
		record.Code, record.Downloaded, nullTime(record.DownloadedAt),
		record.DownloadCount, nullTime(record.LastAccessed))
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, code string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM tickets WHERE code = $1`, code); err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return nil
}

func (b *PostgresBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := b.db.ExecContext(ctx, `DELETE FROM tickets WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tickets: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rows affected: %w", err)
	}
	return int(affected), nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
