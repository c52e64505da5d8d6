package credit

import (
	"github.com/smallbiznis/credits/internal/credit/service"
	"go.uber.org/fx"
)

// Module wires the credit engine.
var Module = fx.Module("credit",
	fx.Provide(
		service.NewService,
	),
)
