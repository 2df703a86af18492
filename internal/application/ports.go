package application

import (
	"context"
	"time"

	"quotes-service/internal/domain"
)

// QuoteUpdateRepo stores quote updates. Lookups return ErrNotFound on a miss.
type QuoteUpdateRepo interface {
	Create(ctx context.Context, u domain.QuoteUpdate) error
	GetByID(ctx context.Context, pair domain.Pair, id string) (domain.QuoteUpdate, error)
	// GetLatest returns the most recently created update for pair.
	GetLatest(ctx context.Context, pair domain.Pair) (domain.QuoteUpdate, error)
	// ClaimQueued moves up to limit queued updates to processing, oldest first.
	ClaimQueued(ctx context.Context, limit int, at time.Time) ([]domain.QuoteUpdate, error)
	MarkDone(ctx context.Context, id string, price float64, quotedAt, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
	// RequeueStale moves processing updates last touched before olderThan back to queued.
	RequeueStale(ctx context.Context, olderThan, at time.Time) (int, error)
}

type RateProvider interface {
	Get(ctx context.Context, pair domain.Pair) (domain.Quote, error)
}

// UpdateCache holds updates that reached a terminal status.
type UpdateCache interface {
	Get(key string) (domain.QuoteUpdate, bool)
	Set(key string, u domain.QuoteUpdate)
}
