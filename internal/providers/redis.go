// Package providers constructs shared external clients.
package providers

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/credits/internal/config"
	"go.uber.org/fx"
)

// NewRedisClient returns a client when REDIS_ADDR is configured, nil
// otherwise. Consumers treat a nil client as "feature runs in-process".
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// Module provides the optional redis client.
var Module = fx.Module("providers",
	fx.Provide(NewRedisClient),
)
