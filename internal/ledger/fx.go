package ledger

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Backend storage.Backend
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Config  config.Config
}

func newWriterFromConfig(lc fx.Lifecycle, p Params) (*Writer, error) {
	writer, err := NewWriter(p.Backend, p.Log, p.Clock, p.GenID, p.Config.LedgerFilePath)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return writer.Close()
		},
	})
	return writer, nil
}

// Module provides the ledger writer.
var Module = fx.Module("ledger",
	fx.Provide(newWriterFromConfig),
)
