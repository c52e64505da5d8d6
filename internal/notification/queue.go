// Package notification evaluates balance transitions and enqueues events
// to an external queue. Everything here is best-effort: a failed enqueue
// must never fail or roll back the credit operation that triggered it.
package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// EventKind classifies notification events.
type EventKind string

const (
	EventLowCredits       EventKind = "low_credits"
	EventExpiringCredits  EventKind = "expiring_credits"
	EventTransactionError EventKind = "transaction_error"
)

// Event is the enqueue payload; delivery is somebody else's job.
type Event struct {
	UserID    string         `json:"user_id"`
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Queue is the producer side of the notification pipeline.
type Queue interface {
	Enqueue(ctx context.Context, event Event) error
}

// MemoryQueue collects events in process; used for tests and as the
// reference implementation.
type MemoryQueue struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.events = append(q.events, event)
	q.mu.Unlock()
	return nil
}

// Events returns a snapshot of everything enqueued so far.
func (q *MemoryQueue) Events() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Event, len(q.events))
	copy(out, q.events)
	return out
}

const redisQueueKey = "credit:notifications"

// RedisQueue pushes events onto a redis list for external consumers.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, redisQueueKey, payload).Err()
}
