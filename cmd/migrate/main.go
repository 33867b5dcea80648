package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"joinpounce/db"
	dbfx "joinpounce/db/fx"
	appfx "joinpounce/internal/app/fx"
)

type MigrateCmd string

func main() {
	_ = godotenv.Load()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.CoreAppOptions,
		dbfx.Module,
		fx.Supply(MigrateCmd(cmd)),
		fx.Invoke(registerMigrateHook),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type migrateHookParams struct {
	fx.In

	Lc      fx.Lifecycle
	DB      *sqlx.DB
	Backend db.Backend
	Logger  *zap.SugaredLogger

	Cmd MigrateCmd
}

// registerMigrateHook appends after the database hook, so it runs once the
// connection has been pinged.
func registerMigrateHook(p migrateHookParams) {
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if p.Backend == db.BackendDisabled {
				return db.ErrDisabled
			}

			p.Logger.Infow("goose_run_start", "cmd", string(p.Cmd), "backend", p.Backend)
			lines, err := db.Migrate(ctx, p.DB, p.Backend, string(p.Cmd))
			if err != nil {
				return err
			}
			for _, l := range lines {
				p.Logger.Infow("goose_migration", "version", l.Version, "path", l.Path, "state", l.State)
			}
			p.Logger.Infow("goose_run_done", "cmd", string(p.Cmd), "migrations", len(lines))
			return nil
		},
	})
}
