package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quotes-service/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	MaxIdempotencyKeyLen = 255
	defaultFetchTimeout  = 3 * time.Second
	defaultPendingWait   = 5 * time.Second
)

// UpdateReceipt is the answer to an update request. It is built from the
// idempotency record only, so a replay renders exactly the same receipt.
type UpdateReceipt struct {
	ID             string
	Pair           domain.Pair
	IdempotencyKey string
	CreatedAt      time.Time
}

func receiptOf(rec domain.IdempotencyRecord) UpdateReceipt {
	return UpdateReceipt{
		ID:             rec.UpdateID,
		Pair:           rec.Pair,
		IdempotencyKey: rec.Key,
		CreatedAt:      rec.CreatedAt,
	}
}

type QuoteService struct {
	updates      QuoteUpdateRepo
	idem         IdempotencyStore
	rateProvider RateProvider
	uow          UnitOfWork
	cache        UpdateCache
	currencies   domain.Currencies
	clock        Clock
	idgen        IDGen
	fetchTimeout time.Duration
	pendingWait  time.Duration
	log          *zap.Logger
}

type Option func(*QuoteService)

func WithClock(c Clock) Option                  { return func(s *QuoteService) { s.clock = c } }
func WithIDGen(g IDGen) Option                  { return func(s *QuoteService) { s.idgen = g } }
func WithUnitOfWork(u UnitOfWork) Option        { return func(s *QuoteService) { s.uow = u } }
func WithCache(c UpdateCache) Option            { return func(s *QuoteService) { s.cache = c } }
func WithCurrencies(c domain.Currencies) Option { return func(s *QuoteService) { s.currencies = c } }
func WithLogger(l *zap.Logger) Option           { return func(s *QuoteService) { s.log = l } }

func WithFetchTimeout(d time.Duration) Option {
	return func(s *QuoteService) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithPendingWait bounds how long a request waits for another request
// holding the same key.
func WithPendingWait(d time.Duration) Option {
	return func(s *QuoteService) {
		if d > 0 {
			s.pendingWait = d
		}
	}
}

func NewQuoteService(updates QuoteUpdateRepo, idem IdempotencyStore, rateProvider RateProvider, opts ...Option) *QuoteService {
	s := &QuoteService{
		updates:      updates,
		idem:         idem,
		rateProvider: rateProvider,
		fetchTimeout: defaultFetchTimeout,
		pendingWait:  defaultPendingWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.idgen == nil {
		s.idgen = defaultIDGen{}
	}
	if s.uow == nil {
		s.uow = NoopUoW{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// now is truncated to microseconds so values survive a Postgres round trip unchanged.
func (s *QuoteService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *QuoteService) parsePair(raw string) (domain.Pair, error) {
	pair, err := domain.ParsePair(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := s.currencies.Check(pair); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return pair, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: idempotency_key is required", ErrBadRequest)
	}
	if len(key) > MaxIdempotencyKeyLen {
		return fmt.Errorf("%w: idempotency_key is longer than %d bytes", ErrBadRequest, MaxIdempotencyKeyLen)
	}
	return nil
}

// RequestUpdate creates a queued update for pair unless key was seen before.
// A key seen for the same pair replays the original receipt (replayed=true);
// a key seen for another pair fails with ErrConflict and changes nothing.
// While another request holds the key without having stored its update,
// RequestUpdate waits for it; if that request fails the key is reserved again.
func (s *QuoteService) RequestUpdate(ctx context.Context, rawPair, key string) (receipt UpdateReceipt, replayed bool, err error) {
	pair, err := s.parsePair(rawPair)
	if err != nil {
		return UpdateReceipt{}, false, err
	}
	if err := validateKey(key); err != nil {
		return UpdateReceipt{}, false, err
	}

	candidate := domain.IdempotencyRecord{
		Key:       key,
		Pair:      pair,
		UpdateID:  s.idgen.NewID(),
		CreatedAt: s.now(),
		Pending:   true,
	}
	log := s.log.With(zap.String("pair", string(pair)), zap.String("idempotency_key", key))

	wait := s.pendingBackOff()
	for {
		stored, reserved, err := s.reserveAndCreate(ctx, candidate, log)
		if err != nil {
			return UpdateReceipt{}, false, err
		}
		switch {
		case reserved:
			log.Info("update_requested", zap.String("update_id", stored.UpdateID))
			return receiptOf(stored), false, nil
		case stored.Pair != pair:
			log.Info("idempotency_conflict", zap.String("bound_pair", string(stored.Pair)))
			return UpdateReceipt{}, false, fmt.Errorf("%w: idempotency key already used for %s", ErrConflict, stored.Pair)
		case !stored.Pending:
			log.Debug("idempotency_replay", zap.String("update_id", stored.UpdateID))
			return receiptOf(stored), true, nil
		}

		next := wait.NextBackOff()
		if next == backoff.Stop {
			log.Warn("idempotency_pending_timeout", zap.String("update_id", stored.UpdateID))
			return UpdateReceipt{}, false, fmt.Errorf("%w: idempotency key is still being processed", ErrConflict)
		}
		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return UpdateReceipt{}, false, ctx.Err()
		case <-timer.C:
		}
	}
}

// reserveAndCreate reserves candidate and, when the key was free, stores the
// update and then commits the reservation. On failure a held reservation is
// released.
func (s *QuoteService) reserveAndCreate(ctx context.Context, candidate domain.IdempotencyRecord, log *zap.Logger) (stored domain.IdempotencyRecord, reserved bool, err error) {
	err = s.uow.Do(ctx, func(ctx context.Context) error {
		rec, created, err := s.idem.Reserve(ctx, candidate)
		if err != nil {
			return fmt.Errorf("reserve idempotency key: %w", err)
		}
		stored, reserved = rec, created
		if !created {
			return nil
		}
		err = s.updates.Create(ctx, domain.QuoteUpdate{
			ID:             candidate.UpdateID,
			Pair:           candidate.Pair,
			IdempotencyKey: candidate.Key,
			CreatedAt:      candidate.CreatedAt,
			Status:         domain.QuoteUpdateStatusQueued,
			UpdatedAt:      candidate.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("create quote update: %w", err)
		}
		return nil
	})
	// commit only once the update is durable, so a replay never points at a missing row
	if err == nil && reserved {
		if err = s.idem.Commit(context.WithoutCancel(ctx), candidate); err != nil {
			err = fmt.Errorf("commit idempotency key: %w", err)
		} else {
			stored.Pending = false
		}
	}
	if err != nil {
		if reserved {
			// the store may live outside the transaction
			if relErr := s.idem.Release(context.WithoutCancel(ctx), candidate); relErr != nil {
				log.Error("idempotency_release_failed", zap.Error(relErr))
			}
		}
		return domain.IdempotencyRecord{}, false, err
	}
	return stored, reserved, nil
}

func (s *QuoteService) pendingBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = s.pendingWait
	b.Reset()
	return b
}

func (s *QuoteService) GetLatest(ctx context.Context, rawPair string) (domain.QuoteUpdate, error) {
	pair, err := s.parsePair(rawPair)
	if err != nil {
		return domain.QuoteUpdate{}, err
	}
	return s.updates.GetLatest(ctx, pair)
}

func (s *QuoteService) GetUpdate(ctx context.Context, rawPair, id string) (domain.QuoteUpdate, error) {
	pair, err := s.parsePair(rawPair)
	if err != nil {
		return domain.QuoteUpdate{}, err
	}
	cacheKey := string(pair) + "/" + id
	if s.cache != nil {
		if u, ok := s.cache.Get(cacheKey); ok {
			return u, nil
		}
	}
	u, err := s.updates.GetByID(ctx, pair, id)
	if err != nil {
		return domain.QuoteUpdate{}, err
	}
	if s.cache != nil && u.Status.Terminal() {
		s.cache.Set(cacheKey, u)
	}
	return u, nil
}

func (s *QuoteService) ClaimQueued(ctx context.Context, limit int) ([]domain.QuoteUpdate, error) {
	return s.updates.ClaimQueued(ctx, limit, s.now())
}

// ProcessUpdate fetches a price for u and records the outcome. A provider
// failure is recorded on the update and is not returned as an error.
func (s *QuoteService) ProcessUpdate(ctx context.Context, u domain.QuoteUpdate) error {
	log := s.log.With(zap.String("update_id", u.ID), zap.String("pair", string(u.Pair)))

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	q, err := s.rateProvider.Get(fetchCtx, u.Pair)
	cancel()
	if err != nil {
		log.Warn("update_failed", zap.Error(err))
		if markErr := s.updates.MarkFailed(ctx, u.ID, failureReason(err), s.now()); markErr != nil {
			return fmt.Errorf("mark update %s failed: %w", u.ID, markErr)
		}
		return nil
	}
	quotedAt := q.QuotedAt
	if quotedAt.IsZero() {
		quotedAt = s.now()
	}
	if err := s.updates.MarkDone(ctx, u.ID, q.Price, quotedAt.UTC().Truncate(time.Microsecond), s.now()); err != nil {
		return fmt.Errorf("mark update %s done: %w", u.ID, err)
	}
	log.Info("update_done", zap.Float64("price", q.Price))
	return nil
}

func (s *QuoteService) RequeueStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	now := s.now()
	return s.updates.RequeueStale(ctx, now.Add(-staleAfter), now)
}

// failureReason is the message stored on a failed update and served to
// clients. Error chains may hold upstream URLs, so only ProviderError
// reasons are passed through.
func failureReason(err error) string {
	var pe *ProviderError
	switch {
	case errors.As(err, &pe):
		return pe.Reason
	case errors.Is(err, context.DeadlineExceeded):
		return "rate provider timed out"
	default:
		return "rate provider unavailable"
	}
}
