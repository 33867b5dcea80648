package main

import (
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	cachefx "joinpounce/cache/fx"
	dbfx "joinpounce/db/fx"
	observefx "joinpounce/internal/app/amqp/observe/fx"
	clicksfx "joinpounce/internal/app/clicks/fx"
	appfx "joinpounce/internal/app/fx"
	healthfx "joinpounce/internal/app/health/fx"
	inngestfx "joinpounce/internal/app/inngest/fx"
	itemsfx "joinpounce/internal/app/items/fx"
	notificationsfx "joinpounce/internal/app/notifications/fx"
	notifyfx "joinpounce/internal/app/notify/fx"
	routerfx "joinpounce/internal/router/fx"
	serverfx "joinpounce/internal/server/fx"
)

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
		routerfx.CoreRouterOptions,
		serverfx.Module,
		healthfx.Module,
		itemsfx.Module,
		clicksfx.Module,
		notificationsfx.Module,
		inngestfx.Module,
		observefx.Module,
	)

	app.Run()
}
