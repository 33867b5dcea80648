package fx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/internal/app/deadlinks"
)

var Module = fx.Module(
	"deadlinks",
	fx.Provide(deadlinks.NewScanner),
	fx.Invoke(registerLifecycleHooks),
)

type hooksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Scanner   *deadlinks.Scanner
	Logger    *zap.SugaredLogger
}

func registerLifecycleHooks(p hooksParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return p.Scanner.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Infow("dead_link_scanner_stopping")
			return p.Scanner.Stop(ctx)
		},
	})
}
