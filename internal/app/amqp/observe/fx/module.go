package fx

import (
	"go.uber.org/fx"

	"joinpounce/internal/app/amqp/observe"
	"joinpounce/internal/pkg/amqpclient"
	"joinpounce/internal/router"
)

var Module = fx.Options(
	fx.Provide(
		amqpclient.NewAMQP,
		router.AsRoute(observe.NewHandler),
	),
)
