package fx

import (
	"go.uber.org/fx"

	"joinpounce/internal/app/notifications"
	"joinpounce/internal/router"
)

var Module = fx.Options(
	fx.Provide(
		router.AsRoute(notifications.NewGetHandler),
		router.AsRoute(notifications.NewOpenedHandler),
		router.AsRoute(notifications.NewConvertedHandler),
	),
)
