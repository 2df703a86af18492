package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

var _ application.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore keeps keys in idempotency_keys. Inside a UnitOfWork the
// reservation commits or rolls back together with the update row.
type IdempotencyStore struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

func NewIdempotencyStore(db *DB, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}
}

func (s *IdempotencyStore) Reserve(ctx context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, bool, error) {
	now := s.now().UTC()
	var expiresAt *time.Time
	if s.ttl > 0 {
		t := now.Add(s.ttl)
		expiresAt = &t
	}
	// an expired row is taken over; a live one is left untouched
	const ins = `
        INSERT INTO idempotency_keys(key, pair, update_id, created_at, expires_at)
        VALUES ($1, $2, $3::uuid, $4, $5)
        ON CONFLICT (key) DO UPDATE
          SET pair=EXCLUDED.pair, update_id=EXCLUDED.update_id,
              created_at=EXCLUDED.created_at, expires_at=EXCLUDED.expires_at
          WHERE idempotency_keys.expires_at IS NOT NULL AND idempotency_keys.expires_at <= $6
        RETURNING key`
	q := s.db.conn(ctx)
	var key string
	err := q.QueryRow(ctx, ins, rec.Key, string(rec.Pair), rec.UpdateID, rec.CreatedAt, expiresAt, now).Scan(&key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("insert idempotency key: %w", err)
	}

	const sel = `SELECT key, pair, update_id::text, created_at FROM idempotency_keys WHERE key=$1`
	var stored domain.IdempotencyRecord
	if err := q.QueryRow(ctx, sel, rec.Key).Scan(&stored.Key, &stored.Pair, &stored.UpdateID, &stored.CreatedAt); err != nil {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("load idempotency key: %w", err)
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	return stored, false, nil
}

// Commit is a no-op: the row becomes visible to other requests only when the
// surrounding transaction commits, together with its update.
func (s *IdempotencyStore) Commit(context.Context, domain.IdempotencyRecord) error { return nil }

func (s *IdempotencyStore) Release(ctx context.Context, rec domain.IdempotencyRecord) error {
	_, err := s.db.conn(ctx).Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1 AND update_id=$2::uuid`, rec.Key, rec.UpdateID)
	return err
}
