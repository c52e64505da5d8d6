package notification

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewQueue picks the redis queue when a client is configured.
func NewQueue(client *redis.Client) Queue {
	if client != nil {
		return NewRedisQueue(client)
	}
	return NewMemoryQueue()
}

func newTriggerFromConfig(queue Queue, log *zap.Logger, clk clock.Clock, cfg config.Config) *Trigger {
	return NewTrigger(queue, log, clk, cfg.LowCreditThreshold)
}

// Module provides the notification queue and trigger.
var Module = fx.Module("notification",
	fx.Provide(
		NewQueue,
		newTriggerFromConfig,
	),
)
