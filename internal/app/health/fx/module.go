package fx

import (
	"go.uber.org/fx"

	"joinpounce/internal/app/health"
	"joinpounce/internal/router"
)

var Module = fx.Options(
	fx.Provide(router.AsRoute(health.NewHandler)),
)
