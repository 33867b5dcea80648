package fx

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/app/notify"
)

// Module provides the alert queue and the logging pusher. Binaries that
// deliver alerts add DispatcherModule.
var Module = fx.Module(
	"notify",
	fx.Provide(
		notify.NewQueue,
		newLimiter,
		fx.Annotate(notify.NewLogPusher, fx.As(new(notify.Pusher))),
	),
)

var DispatcherModule = fx.Module(
	"notify-dispatcher",
	fx.Provide(notify.NewDispatcher),
	fx.Invoke(registerLifecycleHooks),
)

func newLimiter(rdb *redis.Client, cfg *config.Config) *notify.Limiter {
	return notify.NewLimiter(rdb, cfg.Alerts.MaxPerUserPerDay)
}

type hooksParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Dispatcher *notify.Dispatcher
	Logger     *zap.SugaredLogger
}

func registerLifecycleHooks(p hooksParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return p.Dispatcher.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Infow("alert_dispatcher_stopping")
			return p.Dispatcher.Stop(ctx)
		},
	})
}
