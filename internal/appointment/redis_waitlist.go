package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWaitlist keeps each slot's queue in a Redis list, so waitlists
// survive a process restart and can be shared by multiple instances.
// RPUSH appends, LPOP takes the head, LPUSH restores a failed promotion.
type RedisWaitlist struct {
	client *redis.Client
}

func NewRedisWaitlist(client *redis.Client) *RedisWaitlist {
	return &RedisWaitlist{client: client}
}

func (w *RedisWaitlist) Enqueue(ctx context.Context, key SlotKey, patientID uuid.UUID) (int, error) {
	n, err := w.client.RPush(ctx, key.waitlistKey(), patientID.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("enqueue waitlist: %w", err)
	}
	return int(n), nil
}

func (w *RedisWaitlist) DequeueHead(ctx context.Context, key SlotKey) (uuid.UUID, bool, error) {
	val, err := w.client.LPop(ctx, key.waitlistKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("dequeue waitlist head: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt waitlist entry %q: %w", val, err)
	}
	return id, true, nil
}

func (w *RedisWaitlist) RequeueFront(ctx context.Context, key SlotKey, patientID uuid.UUID) error {
	if err := w.client.LPush(ctx, key.waitlistKey(), patientID.String()).Err(); err != nil {
		return fmt.Errorf("requeue waitlist front: %w", err)
	}
	return nil
}

func (w *RedisWaitlist) Len(ctx context.Context, key SlotKey) (int, error) {
	n, err := w.client.LLen(ctx, key.waitlistKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("waitlist length: %w", err)
	}
	return int(n), nil
}
