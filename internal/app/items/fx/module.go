package fx

import (
	"go.uber.org/fx"

	"joinpounce/internal/app/items"
	"joinpounce/internal/router"
)

var Module = fx.Options(
	fx.Provide(
		router.AsRoute(items.NewPreviewHandler),
		router.AsRoute(items.NewCreateHandler),
		router.AsRoute(items.NewGetHandler),
		router.AsRoute(items.NewDeadHandler),
	),
)
