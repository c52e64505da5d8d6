package scheduler

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/expiration"
	"github.com/smallbiznis/credits/internal/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newRunnerFromConfig(cfg config.Config, allocator *subscription.Allocator, sweep *expiration.Service, client *redis.Client, log *zap.Logger) *Runner {
	return NewRunner(Config{
		Interval: cfg.SchedulerInterval,
		LockTTL:  cfg.SchedulerLockTTL,
	}, allocator, sweep, NewLocker(client), log)
}

func registerHooks(lc fx.Lifecycle, runner *Runner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runner.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			runner.Stop()
			return nil
		},
	})
}

// Module wires the periodic runner into the application lifecycle.
var Module = fx.Module("scheduler",
	fx.Provide(newRunnerFromConfig),
	fx.Invoke(registerHooks),
)
