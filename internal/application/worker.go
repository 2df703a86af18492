package application

import (
	"context"
	"time"

	"quotes-service/internal/domain"
)

// Worker represents a background processor of jobs.
// Implementations must run until the context is canceled.
type Worker interface {
	Start(ctx context.Context)
}

// UpdateProcessor is the part of the service driven by background workers.
type UpdateProcessor interface {
	ClaimQueued(ctx context.Context, limit int) ([]domain.QuoteUpdate, error)
	ProcessUpdate(ctx context.Context, u domain.QuoteUpdate) error
	RequeueStale(ctx context.Context, staleAfter time.Duration) (int, error)
}

var _ UpdateProcessor = (*QuoteService)(nil)
