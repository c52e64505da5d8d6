package cache

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go.uber.org/fx"
)

// NewBalanceCache picks the redis-backed cache when a client is
// configured, the in-process cache otherwise.
func NewBalanceCache(client *redis.Client, log *zap.Logger) BalanceCache {
	if client != nil {
		return NewRedisBalanceCache(client, log)
	}
	return NewMemoryBalanceCache()
}

// Module provides the balance snapshot cache.
var Module = fx.Module("cache",
	fx.Provide(NewBalanceCache),
)
