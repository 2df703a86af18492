package memory

import (
	"context"
	"sync"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"
)

var _ application.IdempotencyStore = (*IdempotencyStore)(nil)

type entry struct {
	rec       domain.IdempotencyRecord
	expiresAt time.Time
}

// IdempotencyStore is a map guarded by one mutex. A zero TTL keeps keys forever.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]entry
	ttl  time.Duration
	now  func() time.Time
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{keys: map[string]entry{}, ttl: ttl, now: time.Now}
}

func (s *IdempotencyStore) Reserve(_ context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.keys[rec.Key]; ok && (e.expiresAt.IsZero() || now.Before(e.expiresAt)) {
		return e.rec, false, nil
	}
	e := entry{rec: rec}
	if s.ttl > 0 {
		e.expiresAt = now.Add(s.ttl)
	}
	s.keys[rec.Key] = e
	return rec, true, nil
}

func (s *IdempotencyStore) Commit(_ context.Context, rec domain.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.keys[rec.Key]
	if !ok || e.rec.UpdateID != rec.UpdateID {
		return application.ErrReservationLost
	}
	e.rec.Pending = false
	s.keys[rec.Key] = e
	return nil
}

func (s *IdempotencyStore) Release(_ context.Context, rec domain.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.keys[rec.Key]; ok && e.rec.UpdateID == rec.UpdateID {
		delete(s.keys, rec.Key)
	}
	return nil
}
