package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

var _ application.IdempotencyStore = (*Store)(nil)

const keyPrefix = "idem:"

// releaseScript deletes the key only while it still holds the caller's
// record, pending (ARGV[1]) or committed (ARGV[2]).
var releaseScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == ARGV[1] or cur == ARGV[2] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// commitScript swaps the pending record for the committed one and keeps the TTL.
var commitScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// Store keeps idempotency records as JSON strings. A zero TTL keeps them forever.
type Store struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{Client: client, TTL: ttl}
}

func (s *Store) Reserve(ctx context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return domain.IdempotencyRecord{}, false, err
	}
	key := keyPrefix + rec.Key
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := s.Client.SetNX(ctx, key, payload, s.TTL).Result()
		if err != nil {
			return domain.IdempotencyRecord{}, false, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			return rec, true, nil
		}
		raw, err := s.Client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// expired or released between SETNX and GET
			continue
		}
		if err != nil {
			return domain.IdempotencyRecord{}, false, fmt.Errorf("redis get: %w", err)
		}
		var stored domain.IdempotencyRecord
		if err := json.Unmarshal(raw, &stored); err != nil {
			return domain.IdempotencyRecord{}, false, fmt.Errorf("decode idempotency record %q: %w", rec.Key, err)
		}
		return stored, false, nil
	}
	return domain.IdempotencyRecord{}, false, fmt.Errorf("reserve %q: key kept vanishing", rec.Key)
}

// payloads renders rec as it is stored while pending and once committed.
func payloads(rec domain.IdempotencyRecord) (pending, committed string, err error) {
	rec.Pending = true
	p, err := json.Marshal(rec)
	if err != nil {
		return "", "", err
	}
	rec.Pending = false
	c, err := json.Marshal(rec)
	if err != nil {
		return "", "", err
	}
	return string(p), string(c), nil
}

func (s *Store) Commit(ctx context.Context, rec domain.IdempotencyRecord) error {
	pending, committed, err := payloads(rec)
	if err != nil {
		return err
	}
	n, err := commitScript.Run(ctx, s.Client, []string{keyPrefix + rec.Key}, pending, committed).Int()
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	if n == 0 {
		return application.ErrReservationLost
	}
	return nil
}

func (s *Store) Release(ctx context.Context, rec domain.IdempotencyRecord) error {
	pending, committed, err := payloads(rec)
	if err != nil {
		return err
	}
	if err := releaseScript.Run(ctx, s.Client, []string{keyPrefix + rec.Key}, pending, committed).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}
