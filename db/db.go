package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrDisabled = errors.New("database disabled: set DB_HOST/DB_NAME or TURSO_DATABASE_URL")

// Backend names the engine behind the shared *sqlx.DB.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendLibSQL   Backend = "libsql"
	BackendSQLite   Backend = "sqlite"
	BackendDisabled Backend = "disabled"
)

type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger
}

type Out struct {
	fx.Out

	DB      *sqlx.DB
	Backend Backend
}

// NewDB picks one backend from config: Postgres when DB_HOST and DB_NAME are
// set, otherwise the Turso/SQLite DSN. With neither, every call on the
// returned DB fails with ErrDisabled so the app still boots.
func NewDB(p Params) (Out, error) {
	db, backend, err := Open(p.Cfg)
	if err != nil {
		return Out{}, err
	}
	if backend == BackendDisabled {
		p.Logger.Infow("database_disabled")
		return Out{DB: db, Backend: backend}, nil
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := db.PingContext(pingCtx); err != nil {
				_ = db.Close()
				return fmt.Errorf("%s ping failed: %w", backend, err)
			}
			p.Logger.Infow("database_connected", "backend", backend)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				p.Logger.Warnw("database_close_failed", "backend", backend, "err", err)
			}
			return nil
		},
	})

	return Out{DB: db, Backend: backend}, nil
}

func Open(cfg *config.Config) (*sqlx.DB, Backend, error) {
	if strings.TrimSpace(cfg.DBHost) != "" && strings.TrimSpace(cfg.DBName) != "" {
		db, err := sqlx.Open("pgx", postgresDSN(cfg))
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		return db, BackendPostgres, nil
	}

	dsn := tursoDSN(cfg)
	if dsn == "" {
		return newDisabledDB(), BackendDisabled, nil
	}
	if isFileDSN(dsn) {
		db, err := openSQLiteFile(dsn)
		return db, BackendSQLite, err
	}
	db, err := openLibSQL(dsn)
	return db, BackendLibSQL, err
}

// GooseDialect maps a backend to the goose dialect name.
func (b Backend) GooseDialect() string {
	if b == BackendPostgres {
		return "postgres"
	}
	return "sqlite3"
}

func postgresDSN(cfg *config.Config) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort),
		Path:   cfg.DBName,
	}
	if strings.TrimSpace(cfg.DBUser) != "" {
		if cfg.DBPassword == "" {
			u.User = url.User(cfg.DBUser)
		} else {
			u.User = url.UserPassword(cfg.DBUser, cfg.DBPassword)
		}
	}
	return u.String()
}
