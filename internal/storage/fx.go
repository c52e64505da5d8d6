package storage

import (
	"fmt"

	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// New selects a backend from configuration. This is the only place a
// concrete backend type is named; everything else depends on Backend.
func New(cfg config.Config, log *zap.Logger) (Backend, error) {
	switch cfg.BackendKind {
	case config.BackendMemory:
		log.Info("storage backend ready", zap.String("kind", cfg.BackendKind))
		return NewMemoryBackend(), nil
	case config.BackendSQLite, config.BackendPostgres:
		handle, err := db.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", cfg.BackendKind, err)
		}
		backend := NewGormBackend(handle)
		if cfg.BackendKind == config.BackendSQLite {
			if err := backend.AutoMigrate(); err != nil {
				return nil, fmt.Errorf("migrate sqlite backend: %w", err)
			}
		}
		log.Info("storage backend ready", zap.String("kind", cfg.BackendKind))
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.BackendKind)
	}
}

// Module provides the configured storage backend.
var Module = fx.Module("storage",
	fx.Provide(New),
)
