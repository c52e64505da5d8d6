// Package scheduler drives the periodic allocation and expiration runs.
package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/credits/internal/expiration"
	"github.com/smallbiznis/credits/internal/subscription"
	"go.uber.org/zap"
)

const lockKey = "credit:scheduler:lock"

type Config struct {
	Interval time.Duration
	LockTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	return c
}

// Runner ticks the allocator and the expiration sweep. With a redis
// locker only one instance runs a given tick; without one every tick
// runs locally.
type Runner struct {
	cfg       Config
	allocator *subscription.Allocator
	sweep     *expiration.Service
	locker    *Locker
	log       *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(cfg Config, allocator *subscription.Allocator, sweep *expiration.Service, locker *Locker, log *zap.Logger) *Runner {
	return &Runner{
		cfg:       cfg.withDefaults(),
		allocator: allocator,
		sweep:     sweep,
		locker:    locker,
		log:       log.Named("scheduler"),
	}
}

// RunOnce executes a single tick. Returns false when another instance
// holds the lock.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	token, acquired, err := r.locker.TryLock(ctx, lockKey, r.cfg.LockTTL)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if err := r.locker.Release(ctx, lockKey, token); err != nil {
			r.log.Warn("scheduler lock release failed", zap.Error(err))
		}
	}()

	allocated, err := r.allocator.RunOnce(ctx)
	if err != nil {
		r.log.Error("allocation run failed", zap.Error(err))
	} else {
		r.log.Info("allocation run finished",
			zap.Int("processed", allocated.Processed),
			zap.Int("allocated", allocated.Allocated),
			zap.Int("failed", allocated.Failed),
		)
	}

	swept, err := r.sweep.ExpireAll(ctx)
	if err != nil {
		r.log.Error("expiration sweep failed", zap.Error(err))
		return true, err
	}
	r.log.Info("expiration sweep finished",
		zap.Int("users_processed", swept.UsersProcessed),
		zap.Int("users_failed", swept.UsersFailed),
		zap.Int("reservations_released", swept.ReservationsReleased),
		zap.Int64("credits_expired", swept.CreditsExpired),
	)
	return true, nil
}

// Start launches the tick loop.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil {
					r.log.Warn("scheduler tick failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight tick.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
