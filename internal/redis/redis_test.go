package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-appointment-scheduling/internal/config"
)

// These tests need a disposable Redis, e.g. REDIS_TEST_ADDR=127.0.0.1:6379.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client, err := Connect(context.Background(), config.Config{RedisAddr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIdempotencyStore_ClaimCompleteReplay(t *testing.T) {
	client := newTestClient(t)
	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()
	key := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, idempotencyKey(key)) })

	existing, claimed, err := store.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, uuid.Nil, existing)

	// second caller while the first is running
	existing, claimed, err = store.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, uuid.Nil, existing)

	apptID := uuid.New()
	require.NoError(t, store.Complete(ctx, key, apptID))

	existing, claimed, err = store.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, apptID, existing)

	// release must not drop a completed key
	require.NoError(t, store.Release(ctx, key))
	existing, _, err = store.Claim(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, apptID, existing)
}

func TestIdempotencyStore_ReleaseAllowsRetry(t *testing.T) {
	client := newTestClient(t)
	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()
	key := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, idempotencyKey(key)) })

	_, claimed, err := store.Claim(ctx, key)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.Release(ctx, key))

	_, claimed, err = store.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestReminderLedger_MarksOnce(t *testing.T) {
	client := newTestClient(t)
	ledger := NewReminderLedger(client, time.Minute)
	ctx := context.Background()
	id := uuid.New()
	t.Cleanup(func() { client.Del(ctx, "reminder:sent:"+id.String()) })

	first, err := ledger.MarkReminded(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := ledger.MarkReminded(ctx, id)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, ledger.Forget(ctx, id))
	retry, err := ledger.MarkReminded(ctx, id)
	require.NoError(t, err)
	assert.True(t, retry)
}
