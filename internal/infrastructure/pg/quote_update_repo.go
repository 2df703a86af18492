package pg

import (
	"context"
	"errors"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"
	"quotes-service/internal/infrastructure/logx"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ application.QuoteUpdateRepo = (*QuoteUpdateRepo)(nil)

const updateColumns = `id::text, pair, idempotency_key, status, price::float8, error, quoted_at, created_at, updated_at`

type QuoteUpdateRepo struct{ db *DB }

func NewQuoteUpdateRepo(db *DB) *QuoteUpdateRepo { return &QuoteUpdateRepo{db: db} }

func (r *QuoteUpdateRepo) logger(op, sql string) *zap.Logger {
	return logx.L().With(
		zap.String("repo", "quote_update"),
		zap.String("operation", op),
		zap.String("sql", sql),
	)
}

func scanUpdate(row pgx.Row) (domain.QuoteUpdate, error) {
	var (
		out    domain.QuoteUpdate
		status string
	)
	err := row.Scan(&out.ID, &out.Pair, &out.IdempotencyKey, &status, &out.Price, &out.Error, &out.QuotedAt, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return domain.QuoteUpdate{}, err
	}
	if out.Status, err = domain.ParseQuoteUpdateStatus(status); err != nil {
		logx.L().Error("quote_update.bad_row", zap.String("id", out.ID), zap.Error(err))
		return domain.QuoteUpdate{}, err
	}
	out.CreatedAt, out.UpdatedAt = out.CreatedAt.UTC(), out.UpdatedAt.UTC()
	if out.QuotedAt != nil {
		t := out.QuotedAt.UTC()
		out.QuotedAt = &t
	}
	return out, nil
}

func (r *QuoteUpdateRepo) Create(ctx context.Context, u domain.QuoteUpdate) error {
	const ins = `
        INSERT INTO quote_updates(id, pair, idempotency_key, status, created_at, updated_at)
        VALUES ($1::uuid, $2, $3, $4, $5, $6)`
	log := r.logger("Create", ins).With(zap.String("id", u.ID), zap.String("pair", string(u.Pair)))
	log.Debug("sql.exec_start")
	tag, err := r.db.conn(ctx).Exec(ctx, ins, u.ID, string(u.Pair), u.IdempotencyKey, string(u.Status), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	log.Info("sql.exec_success", zap.Int64("rows_affected", tag.RowsAffected()))
	return nil
}

func (r *QuoteUpdateRepo) GetByID(ctx context.Context, pair domain.Pair, id string) (domain.QuoteUpdate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.QuoteUpdate{}, application.ErrNotFound
	}
	const q = `SELECT ` + updateColumns + ` FROM quote_updates WHERE id=$1::uuid AND pair=$2`
	out, err := scanUpdate(r.db.conn(ctx).QueryRow(ctx, q, id, string(pair)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuoteUpdate{}, application.ErrNotFound
	}
	if err != nil {
		r.logger("GetByID", q).Error("sql.query_failed", zap.String("id", id), zap.Error(err))
		return domain.QuoteUpdate{}, err
	}
	return out, nil
}

func (r *QuoteUpdateRepo) GetLatest(ctx context.Context, pair domain.Pair) (domain.QuoteUpdate, error) {
	const q = `
        SELECT ` + updateColumns + `
        FROM quote_updates
        WHERE pair=$1
        ORDER BY created_at DESC, seq DESC
        LIMIT 1`
	out, err := scanUpdate(r.db.conn(ctx).QueryRow(ctx, q, string(pair)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuoteUpdate{}, application.ErrNotFound
	}
	if err != nil {
		r.logger("GetLatest", q).Error("sql.query_failed", zap.String("pair", string(pair)), zap.Error(err))
		return domain.QuoteUpdate{}, err
	}
	return out, nil
}

func (r *QuoteUpdateRepo) ClaimQueued(ctx context.Context, limit int, at time.Time) ([]domain.QuoteUpdate, error) {
	if limit <= 0 {
		return nil, nil
	}
	const q = `
      WITH cte AS (
        SELECT id
        FROM quote_updates
        WHERE status = 'queued'
        ORDER BY created_at, seq
        LIMIT $1
        FOR UPDATE SKIP LOCKED
      )
      UPDATE quote_updates q
      SET status = 'processing', updated_at = $2
      FROM cte
      WHERE q.id = cte.id
      RETURNING q.id::text, q.pair, q.idempotency_key, q.status, q.price::float8, q.error, q.quoted_at, q.created_at, q.updated_at`
	rows, err := r.db.conn(ctx).Query(ctx, q, limit, at)
	if err != nil {
		r.logger("ClaimQueued", q).Error("sql.query_failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()
	var out []domain.QuoteUpdate
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *QuoteUpdateRepo) MarkDone(ctx context.Context, id string, price float64, quotedAt, at time.Time) error {
	const up = `
        UPDATE quote_updates
        SET status='done', price=$2, quoted_at=$3, error=NULL, updated_at=$4
        WHERE id=$1::uuid AND status NOT IN ('done', 'failed')`
	return r.finish(ctx, "MarkDone", up, id, price, quotedAt, at)
}

func (r *QuoteUpdateRepo) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	const up = `
        UPDATE quote_updates
        SET status='failed', error=$2, updated_at=$3
        WHERE id=$1::uuid AND status NOT IN ('done', 'failed')`
	return r.finish(ctx, "MarkFailed", up, id, reason, at)
}

// finish runs a terminal transition. Updates already terminal are left alone;
// an unknown id is ErrNotFound.
func (r *QuoteUpdateRepo) finish(ctx context.Context, op, sql, id string, args ...any) error {
	log := r.logger(op, sql).With(zap.String("id", id))
	tag, err := r.db.conn(ctx).Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	if tag.RowsAffected() > 0 {
		log.Info("sql.exec_success", zap.Int64("rows_affected", tag.RowsAffected()))
		return nil
	}
	var exists bool
	if err := r.db.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM quote_updates WHERE id=$1::uuid)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		log.Warn("sql.exec_no_rows")
		return application.ErrNotFound
	}
	return nil
}

func (r *QuoteUpdateRepo) RequeueStale(ctx context.Context, olderThan, at time.Time) (int, error) {
	const up = `
        UPDATE quote_updates
        SET status='queued', updated_at=$2
        WHERE status='processing' AND updated_at < $1`
	tag, err := r.db.conn(ctx).Exec(ctx, up, olderThan, at)
	if err != nil {
		r.logger("RequeueStale", up).Error("sql.exec_failed", zap.Error(err))
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
