package fx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/internal/app/amqp/pricecheck"
	"joinpounce/internal/pkg/amqpclient"
)

var Module = fx.Module(
	"amqp-pricecheck",
	fx.Provide(
		amqpclient.NewAMQP,
		fx.Annotate(
			pricecheck.NewPriceCheckHandler,
			fx.As(new(pricecheck.Handler)),
		),
		pricecheck.NewConsumer,
	),
	fx.Invoke(registerLifecycleHooks),
)

type hooksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Consumer  *pricecheck.Consumer
	Logger    *zap.SugaredLogger
}

func registerLifecycleHooks(p hooksParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Infow("pricecheck_starting")
			return p.Consumer.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Infow("pricecheck_stopping")
			return p.Consumer.Stop(ctx)
		},
	})
}
