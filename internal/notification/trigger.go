package notification

import (
	"context"

	"github.com/smallbiznis/credits/internal/clock"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	"go.uber.org/zap"
)

// Trigger observes balance transitions and enqueues events when
// thresholds are crossed.
type Trigger struct {
	queue     Queue
	log       *zap.Logger
	clock     clock.Clock
	threshold int64
}

func NewTrigger(queue Queue, log *zap.Logger, clk clock.Clock, lowCreditThreshold int64) *Trigger {
	return &Trigger{
		queue:     queue,
		log:       log.Named("notification.trigger"),
		clock:     clk,
		threshold: lowCreditThreshold,
	}
}

// EvaluateLowBalance enqueues a low-credits event when available has
// dropped to or below the configured threshold.
func (t *Trigger) EvaluateLowBalance(ctx context.Context, info creditdomain.UserCreditInfo) {
	if info.Available > t.threshold {
		return
	}
	t.enqueue(ctx, Event{
		UserID: info.UserID,
		Kind:   EventLowCredits,
		Payload: map[string]any{
			"available": info.Available,
			"reserved":  info.Reserved,
			"threshold": t.threshold,
		},
		CreatedAt: t.clock.Now(),
	})
}

// NotifyExpiringCredits reports credits that will expire within the
// given number of days.
func (t *Trigger) NotifyExpiringCredits(ctx context.Context, userID string, total int64, withinDays int) {
	if total <= 0 {
		return
	}
	t.enqueue(ctx, Event{
		UserID: userID,
		Kind:   EventExpiringCredits,
		Payload: map[string]any{
			"expiring_credits": total,
			"within_days":      withinDays,
		},
		CreatedAt: t.clock.Now(),
	})
}

// NotifyTransactionError reports a failed credit operation.
func (t *Trigger) NotifyTransactionError(ctx context.Context, userID, operation string, opErr error) {
	t.enqueue(ctx, Event{
		UserID: userID,
		Kind:   EventTransactionError,
		Payload: map[string]any{
			"operation": operation,
			"error":     opErr.Error(),
		},
		CreatedAt: t.clock.Now(),
	})
}

func (t *Trigger) enqueue(ctx context.Context, event Event) {
	if t.queue == nil {
		return
	}
	if err := t.queue.Enqueue(ctx, event); err != nil {
		// Best-effort side channel; swallow after logging.
		t.log.Warn("notification enqueue failed",
			zap.String("user_id", event.UserID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}
