package deadletter

import "go.uber.org/fx"

var Module = fx.Module("deadletter.service",
	fx.Provide(NewService),
)
