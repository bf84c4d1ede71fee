package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReminderLedger remembers which appointments were already reminded so that
// several reminder workers, or repeated runs, send each reminder once.
type ReminderLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReminderLedger(client *redis.Client, ttl time.Duration) *ReminderLedger {
	return &ReminderLedger{client: client, ttl: ttl}
}

func reminderKey(id uuid.UUID) string {
	return fmt.Sprintf("reminder:sent:%s", id.String())
}

func (l *ReminderLedger) MarkReminded(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := l.client.SetNX(ctx, reminderKey(id), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark reminder: %w", err)
	}
	return ok, nil
}

func (l *ReminderLedger) Forget(ctx context.Context, id uuid.UUID) error {
	if err := l.client.Del(ctx, reminderKey(id)).Err(); err != nil {
		return fmt.Errorf("forget reminder: %w", err)
	}
	return nil
}
