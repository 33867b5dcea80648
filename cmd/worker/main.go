package main

import (
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	cachefx "joinpounce/cache/fx"
	dbfx "joinpounce/db/fx"
	pricecheckfx "joinpounce/internal/app/amqp/pricecheck/fx"
	deadlinksfx "joinpounce/internal/app/deadlinks/fx"
	appfx "joinpounce/internal/app/fx"
	inngestfx "joinpounce/internal/app/inngest/fx"
	notifyfx "joinpounce/internal/app/notify/fx"
)

// The worker consumes price observations, delivers confirmed alerts and
// scans for dead links. The dead-link function itself runs in the server.
func main() {
	_ = godotenv.Load()

	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.CoreAppOptions,
		appfx.Module,
		dbfx.Module,
		cachefx.Module,
		notifyfx.Module,
		notifyfx.DispatcherModule,
		inngestfx.ClientModule,
		pricecheckfx.Module,
		deadlinksfx.Module,
	)

	app.Run()
}
