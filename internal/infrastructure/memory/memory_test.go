package memory

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func queued(id string, pair domain.Pair, at time.Time) domain.QuoteUpdate {
	return domain.QuoteUpdate{ID: id, Pair: pair, IdempotencyKey: "k-" + id, CreatedAt: at, Status: domain.QuoteUpdateStatusQueued, UpdatedAt: at}
}

// pairsOf lists pairs with at least one update, sorted.
func pairsOf(r *QuoteUpdateRepo) []domain.Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Pair, 0, len(r.latest))
	for p := range r.latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func countOf(r *QuoteUpdateRepo) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.updates)
}

func TestQuoteUpdateRepo_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewQuoteUpdateRepo()

	_, err := r.GetLatest(ctx, "EUR_USD")
	require.ErrorIs(t, err, application.ErrNotFound)

	require.NoError(t, r.Create(ctx, queued("a", "EUR_USD", t0)))
	require.NoError(t, r.Create(ctx, queued("b", "EUR_USD", t0.Add(time.Second))))
	require.NoError(t, r.Create(ctx, queued("c", "USD_MXN", t0)))
	require.ErrorIs(t, r.Create(ctx, queued("a", "EUR_USD", t0)), application.ErrConflict)

	latest, err := r.GetLatest(ctx, "EUR_USD")
	require.NoError(t, err)
	require.Equal(t, "b", latest.ID)

	got, err := r.GetByID(ctx, "EUR_USD", "a")
	require.NoError(t, err)
	require.Equal(t, "k-a", got.IdempotencyKey)

	_, err = r.GetByID(ctx, "USD_MXN", "a")
	require.ErrorIs(t, err, application.ErrNotFound)

	require.Equal(t, []domain.Pair{"EUR_USD", "USD_MXN"}, pairsOf(r))
	require.Equal(t, 3, countOf(r))
}

func TestQuoteUpdateRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewQuoteUpdateRepo()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Create(ctx, queued(id, "EUR_USD", t0)))
	}

	claimed, err := r.ClaimQueued(ctx, 2, t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	require.Equal(t, "a", claimed[0].ID)
	require.Equal(t, domain.QuoteUpdateStatusProcessing, claimed[0].Status)

	require.NoError(t, r.MarkDone(ctx, "a", 1.09, t0, t0.Add(2*time.Second)))
	require.NoError(t, r.MarkFailed(ctx, "b", "boom", t0.Add(2*time.Second)))
	require.ErrorIs(t, r.MarkDone(ctx, "zzz", 1, t0, t0), application.ErrNotFound)

	// terminal updates do not move again
	require.NoError(t, r.MarkFailed(ctx, "a", "late", t0.Add(3*time.Second)))
	a, _ := r.GetByID(ctx, "EUR_USD", "a")
	require.Equal(t, domain.QuoteUpdateStatusDone, a.Status)
	require.InDelta(t, 1.09, *a.Price, 1e-9)
	require.Nil(t, a.Error)

	b, _ := r.GetByID(ctx, "EUR_USD", "b")
	require.Equal(t, domain.QuoteUpdateStatusFailed, b.Status)
	require.Equal(t, "boom", *b.Error)

	claimed, err = r.ClaimQueued(ctx, 10, t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, "c", claimed[0].ID)

	n, err := r.RequeueStale(ctx, t0.Add(time.Second), t0.Add(time.Minute))
	require.NoError(t, err)
	require.Zero(t, n)
	n, err = r.RequeueStale(ctx, t0.Add(2*time.Second), t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	c, _ := r.GetByID(ctx, "EUR_USD", "c")
	require.Equal(t, domain.QuoteUpdateStatusQueued, c.Status)
}

func TestIdempotencyStore_ReserveRelease(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(0)
	rec := domain.IdempotencyRecord{Key: "k1", Pair: "EUR_USD", UpdateID: "u1", CreatedAt: t0}

	got, created, err := s.Reserve(ctx, rec)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, rec, got)

	other := domain.IdempotencyRecord{Key: "k1", Pair: "USD_MXN", UpdateID: "u2", CreatedAt: t0}
	got, created, err = s.Reserve(ctx, other)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, rec, got)

	// only the owner frees the key
	require.NoError(t, s.Release(ctx, other))
	_, created, _ = s.Reserve(ctx, other)
	require.False(t, created)

	require.NoError(t, s.Release(ctx, rec))
	got, created, err = s.Reserve(ctx, other)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, other, got)
}

func TestIdempotencyStore_Commit(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(0)
	rec := domain.IdempotencyRecord{Key: "k1", Pair: "EUR_USD", UpdateID: "u1", CreatedAt: t0, Pending: true}

	_, created, err := s.Reserve(ctx, rec)
	require.NoError(t, err)
	require.True(t, created)

	got, _, _ := s.Reserve(ctx, domain.IdempotencyRecord{Key: "k1", Pair: "EUR_USD", UpdateID: "u2"})
	require.True(t, got.Pending)

	require.ErrorIs(t, s.Commit(ctx, domain.IdempotencyRecord{Key: "k1", UpdateID: "u2"}), application.ErrReservationLost)
	require.ErrorIs(t, s.Commit(ctx, domain.IdempotencyRecord{Key: "nope", UpdateID: "u1"}), application.ErrReservationLost)
	require.NoError(t, s.Commit(ctx, rec))

	got, created, _ = s.Reserve(ctx, domain.IdempotencyRecord{Key: "k1", Pair: "EUR_USD", UpdateID: "u2"})
	require.False(t, created)
	require.False(t, got.Pending)
	require.Equal(t, "u1", got.UpdateID)
}

func TestIdempotencyStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := t0
	s := NewIdempotencyStore(time.Minute)
	s.now = func() time.Time { return now }

	rec := domain.IdempotencyRecord{Key: "k1", Pair: "EUR_USD", UpdateID: "u1", CreatedAt: t0}
	_, created, _ := s.Reserve(ctx, rec)
	require.True(t, created)

	now = now.Add(59 * time.Second)
	_, created, _ = s.Reserve(ctx, rec)
	require.False(t, created)

	now = now.Add(time.Second)
	_, created, _ = s.Reserve(ctx, domain.IdempotencyRecord{Key: "k1", Pair: "USD_MXN", UpdateID: "u2"})
	require.True(t, created)
}

func TestIdempotencyStore_ConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(0)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.Reserve(ctx, domain.IdempotencyRecord{Key: "same", Pair: "EUR_USD", UpdateID: "u"})
			require.NoError(t, err)
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, winners)
}
