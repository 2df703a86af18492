package memory

import (
	"context"
	"sync"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"
)

var _ application.QuoteUpdateRepo = (*QuoteUpdateRepo)(nil)

// QuoteUpdateRepo keeps updates in process memory, for local runs and tests.
type QuoteUpdateRepo struct {
	mu      sync.RWMutex
	updates map[string]domain.QuoteUpdate
	latest  map[domain.Pair]string
	// seq keeps creation order; ClaimQueued walks it oldest first.
	seq []string
}

func NewQuoteUpdateRepo() *QuoteUpdateRepo {
	return &QuoteUpdateRepo{
		updates: map[string]domain.QuoteUpdate{},
		latest:  map[domain.Pair]string{},
	}
}

func (r *QuoteUpdateRepo) Create(_ context.Context, u domain.QuoteUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.updates[u.ID]; ok {
		return application.ErrConflict
	}
	r.updates[u.ID] = u
	r.latest[u.Pair] = u.ID
	r.seq = append(r.seq, u.ID)
	return nil
}

func (r *QuoteUpdateRepo) GetByID(_ context.Context, pair domain.Pair, id string) (domain.QuoteUpdate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.updates[id]
	if !ok || u.Pair != pair {
		return domain.QuoteUpdate{}, application.ErrNotFound
	}
	return u, nil
}

func (r *QuoteUpdateRepo) GetLatest(_ context.Context, pair domain.Pair) (domain.QuoteUpdate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.latest[pair]
	if !ok {
		return domain.QuoteUpdate{}, application.ErrNotFound
	}
	return r.updates[id], nil
}

func (r *QuoteUpdateRepo) ClaimQueued(_ context.Context, limit int, at time.Time) ([]domain.QuoteUpdate, error) {
	if limit <= 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.QuoteUpdate
	for _, id := range r.seq {
		u := r.updates[id]
		if u.Status != domain.QuoteUpdateStatusQueued {
			continue
		}
		u.Status = domain.QuoteUpdateStatusProcessing
		u.UpdatedAt = at
		r.updates[id] = u
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *QuoteUpdateRepo) MarkDone(_ context.Context, id string, price float64, quotedAt, at time.Time) error {
	return r.finish(id, func(u *domain.QuoteUpdate) {
		u.Status = domain.QuoteUpdateStatusDone
		u.Price = &price
		u.QuotedAt = &quotedAt
		u.Error = nil
		u.UpdatedAt = at
	})
}

func (r *QuoteUpdateRepo) MarkFailed(_ context.Context, id string, reason string, at time.Time) error {
	return r.finish(id, func(u *domain.QuoteUpdate) {
		u.Status = domain.QuoteUpdateStatusFailed
		u.Error = &reason
		u.UpdatedAt = at
	})
}

// finish applies a terminal transition. Terminal updates are left as they are.
func (r *QuoteUpdateRepo) finish(id string, apply func(u *domain.QuoteUpdate)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.updates[id]
	if !ok {
		return application.ErrNotFound
	}
	if u.Status.Terminal() {
		return nil
	}
	apply(&u)
	r.updates[id] = u
	return nil
}

func (r *QuoteUpdateRepo) RequeueStale(_ context.Context, olderThan, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, u := range r.updates {
		if u.Status != domain.QuoteUpdateStatusProcessing || !u.UpdatedAt.Before(olderThan) {
			continue
		}
		u.Status = domain.QuoteUpdateStatusQueued
		u.UpdatedAt = at
		r.updates[id] = u
		n++
	}
	return n, nil
}
