package migration

import (
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/storage"
	"go.uber.org/fx"
)

// Module applies schema migrations on postgres. The sqlite and memory
// backends manage their own schema.
var Module = fx.Module("migrations",
	fx.Invoke(func(backend storage.Backend, cfg config.Config) error {
		if cfg.BackendKind != config.BackendPostgres {
			return nil
		}
		gormBackend, ok := backend.(*storage.GormBackend)
		if !ok {
			return nil
		}
		sqlDB, err := gormBackend.DB().DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
