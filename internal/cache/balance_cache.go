package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	"go.uber.org/zap"
)

const balanceSnapshotTTL = 5 * time.Minute

// BalanceCache stores derived balance snapshots in front of the storage
// port. Writers must invalidate synchronously before returning so reads
// after a completed write never observe a staler value.
type BalanceCache interface {
	Get(ctx context.Context, userID string) (creditdomain.UserCreditInfo, bool)
	Set(ctx context.Context, userID string, info creditdomain.UserCreditInfo)
	Invalidate(ctx context.Context, userID string)
}

func balanceKey(userID string) string {
	return fmt.Sprintf("credit:user:%s:info", userID)
}

type memoryBalanceCache struct {
	snapshots *TTLCache[string, creditdomain.UserCreditInfo]
}

// NewMemoryBalanceCache returns an in-process balance cache.
func NewMemoryBalanceCache() BalanceCache {
	return &memoryBalanceCache{snapshots: NewTTLCache[string, creditdomain.UserCreditInfo]()}
}

func (c *memoryBalanceCache) Get(ctx context.Context, userID string) (creditdomain.UserCreditInfo, bool) {
	return c.snapshots.Get(balanceKey(userID))
}

func (c *memoryBalanceCache) Set(ctx context.Context, userID string, info creditdomain.UserCreditInfo) {
	c.snapshots.Set(balanceKey(userID), info, balanceSnapshotTTL)
}

func (c *memoryBalanceCache) Invalidate(ctx context.Context, userID string) {
	c.snapshots.Delete(balanceKey(userID))
}

type redisBalanceCache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisBalanceCache returns a balance cache shared across process
// instances. Cache failures degrade to storage reads, never to errors.
func NewRedisBalanceCache(client *redis.Client, log *zap.Logger) BalanceCache {
	return &redisBalanceCache{client: client, log: log.Named("cache.balance")}
}

func (c *redisBalanceCache) Get(ctx context.Context, userID string) (creditdomain.UserCreditInfo, bool) {
	raw, err := c.client.Get(ctx, balanceKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("balance cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
		return creditdomain.UserCreditInfo{}, false
	}
	var info creditdomain.UserCreditInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		// Corrupted entry: drop it and fall back to storage.
		c.Invalidate(ctx, userID)
		return creditdomain.UserCreditInfo{}, false
	}
	return info, true
}

func (c *redisBalanceCache) Set(ctx context.Context, userID string, info creditdomain.UserCreditInfo) {
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, balanceKey(userID), raw, balanceSnapshotTTL).Err(); err != nil {
		c.log.Warn("balance cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (c *redisBalanceCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, balanceKey(userID)).Err(); err != nil {
		c.log.Warn("balance cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
