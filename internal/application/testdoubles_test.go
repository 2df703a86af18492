package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quotes-service/internal/domain"
)

var (
	ErrRepo = errors.New("repo error")
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("update-%d", g.n)
}

type fakeUpdateRepo struct {
	mu      sync.Mutex
	updates map[string]domain.QuoteUpdate
	order   []string
	err     error
	gets    int
}

func (f *fakeUpdateRepo) Create(_ context.Context, u domain.QuoteUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.updates == nil {
		f.updates = map[string]domain.QuoteUpdate{}
	}
	f.updates[u.ID] = u
	f.order = append(f.order, u.ID)
	return nil
}

func (f *fakeUpdateRepo) GetByID(_ context.Context, pair domain.Pair, id string) (domain.QuoteUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	u, ok := f.updates[id]
	if !ok || u.Pair != pair {
		return domain.QuoteUpdate{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeUpdateRepo) GetLatest(_ context.Context, pair domain.Pair) (domain.QuoteUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.order) - 1; i >= 0; i-- {
		if u := f.updates[f.order[i]]; u.Pair == pair {
			return u, nil
		}
	}
	return domain.QuoteUpdate{}, ErrNotFound
}

func (f *fakeUpdateRepo) ClaimQueued(_ context.Context, limit int, at time.Time) ([]domain.QuoteUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.QuoteUpdate
	for _, id := range f.order {
		u := f.updates[id]
		if u.Status != domain.QuoteUpdateStatusQueued {
			continue
		}
		u.Status, u.UpdatedAt = domain.QuoteUpdateStatusProcessing, at
		f.updates[id] = u
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeUpdateRepo) MarkDone(_ context.Context, id string, price float64, quotedAt, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u, ok := f.updates[id]
	if !ok {
		return ErrNotFound
	}
	u.Status, u.Price, u.QuotedAt, u.UpdatedAt = domain.QuoteUpdateStatusDone, &price, &quotedAt, at
	f.updates[id] = u
	return nil
}

func (f *fakeUpdateRepo) MarkFailed(_ context.Context, id string, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u, ok := f.updates[id]
	if !ok {
		return ErrNotFound
	}
	u.Status, u.Error, u.UpdatedAt = domain.QuoteUpdateStatusFailed, &reason, at
	f.updates[id] = u
	return nil
}

func (f *fakeUpdateRepo) RequeueStale(_ context.Context, olderThan, at time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, u := range f.updates {
		if u.Status == domain.QuoteUpdateStatusProcessing && u.UpdatedAt.Before(olderThan) {
			u.Status, u.UpdatedAt = domain.QuoteUpdateStatusQueued, at
			f.updates[id] = u
			n++
		}
	}
	return n, nil
}

func (f *fakeUpdateRepo) get(id string) domain.QuoteUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[id]
}

func (f *fakeUpdateRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type fakeIdem struct {
	mu        sync.Mutex
	seen      map[string]domain.IdempotencyRecord
	err       error
	commitErr error
	released  []string
}

func (f *fakeIdem) Reserve(_ context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.IdempotencyRecord{}, false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]domain.IdempotencyRecord{}
	}
	if got, ok := f.seen[rec.Key]; ok {
		return got, false, nil
	}
	f.seen[rec.Key] = rec
	return rec, true, nil
}

func (f *fakeIdem) Commit(_ context.Context, rec domain.IdempotencyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	got, ok := f.seen[rec.Key]
	if !ok || got.UpdateID != rec.UpdateID {
		return ErrReservationLost
	}
	got.Pending = false
	f.seen[rec.Key] = got
	return nil
}

func (f *fakeIdem) Release(_ context.Context, rec domain.IdempotencyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if got, ok := f.seen[rec.Key]; ok && got.UpdateID == rec.UpdateID {
		delete(f.seen, rec.Key)
	}
	f.released = append(f.released, rec.Key)
	return nil
}

type fakeRateProvider struct {
	out domain.Quote
	err error
}

func (f *fakeRateProvider) Get(_ context.Context, pair domain.Pair) (domain.Quote, error) {
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	q := f.out
	q.Pair = pair
	return q, nil
}

type mapCache struct {
	items map[string]domain.QuoteUpdate
}

func (c *mapCache) Get(key string) (domain.QuoteUpdate, bool) {
	u, ok := c.items[key]
	return u, ok
}

func (c *mapCache) Set(key string, u domain.QuoteUpdate) {
	if c.items == nil {
		c.items = map[string]domain.QuoteUpdate{}
	}
	c.items[key] = u
}

type countingUoW struct{ calls int }

func (u *countingUoW) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	u.calls++
	return fn(ctx)
}
