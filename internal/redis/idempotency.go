package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// pendingMarker is stored while the request that claimed a key is running.
const pendingMarker = "pending"

// IdempotencyStore maps client idempotency keys to the appointment they produced.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		ttl:    ttl,
	}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:booking:%s", key)
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string) (uuid.UUID, bool, error) {
	k := idempotencyKey(key)

	// a completed key can expire between SETNX and GET, so try twice
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("claim idempotency key: %w", err)
		}
		if ok {
			return uuid.Nil, true, nil
		}

		val, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("read idempotency key: %w", err)
		}
		if val == pendingMarker {
			return uuid.Nil, false, nil
		}

		id, err := uuid.Parse(val)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("corrupt idempotency key %s: %w", k, err)
		}
		return id, false, nil
	}
	return uuid.Nil, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, appointmentID uuid.UUID) error {
	if err := s.client.Set(ctx, idempotencyKey(key), appointmentID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// releaseScript deletes the key only while it still holds the pending marker,
// so a completed key is never dropped.
var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := releaseScript.Run(ctx, s.client, []string{idempotencyKey(key)}, pendingMarker).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
