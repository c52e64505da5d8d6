package subscription

import (
	"github.com/smallbiznis/credits/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newCatalogFromConfig(cfg config.Config, log *zap.Logger) (*PlanCatalogHolder, error) {
	return NewPlanCatalogHolder(cfg.PlanCatalogPath, log)
}

// Module wires the plan catalog and the allocator.
var Module = fx.Module("subscription",
	fx.Provide(
		newCatalogFromConfig,
		NewAllocator,
	),
)
