package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/cache"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/credit"
	"github.com/smallbiznis/credits/internal/expiration"
	"github.com/smallbiznis/credits/internal/ledger"
	"github.com/smallbiznis/credits/internal/logger"
	"github.com/smallbiznis/credits/internal/migration"
	"github.com/smallbiznis/credits/internal/notification"
	"github.com/smallbiznis/credits/internal/observability"
	"github.com/smallbiznis/credits/internal/providers"
	"github.com/smallbiznis/credits/internal/scheduler"
	"github.com/smallbiznis/credits/internal/server"
	"github.com/smallbiznis/credits/internal/storage"
	"github.com/smallbiznis/credits/internal/subscription"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		providers.Module,
		storage.Module,
		migration.Module,
		cache.Module,

		// Credit engine and its satellites
		ledger.Module,
		notification.Module,
		credit.Module,
		expiration.Module,
		subscription.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
