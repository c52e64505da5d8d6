package expiration

import "go.uber.org/fx"

// Module wires the expiration sweep service.
var Module = fx.Module("expiration",
	fx.Provide(NewService),
)
