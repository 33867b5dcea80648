package fx

import (
	"go.uber.org/fx"

	"joinpounce/internal/app/clicks"
	"joinpounce/internal/router"
)

var Module = fx.Options(
	fx.Provide(
		router.AsRoute(clicks.NewLinkHandler),
		router.AsRoute(clicks.NewRedirectHandler),
		router.AsRoute(clicks.NewClickHandler),
	),
)
