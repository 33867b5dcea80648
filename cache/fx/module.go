package fx

import (
	"go.uber.org/fx"

	"joinpounce/cache"
)

var Module = fx.Module(
	"redis",
	fx.Provide(cache.NewRedis),
)
