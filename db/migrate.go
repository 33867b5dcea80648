package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"joinpounce/db/migrations"
)

var ErrUnknownMigrateCommand = errors.New("unknown migrate command")

// NewMigrator returns a goose Provider over the embedded migrations. A
// Provider keeps its own state, so concurrent callers (tests) are safe.
func NewMigrator(db *sqlx.DB, backend Backend) (*goose.Provider, error) {
	dialect := goose.DialectSQLite3
	if backend == BackendPostgres {
		dialect = goose.DialectPostgres
	}
	provider, err := goose.NewProvider(dialect, db.DB, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// MigrateUp applies every pending migration.
func MigrateUp(ctx context.Context, db *sqlx.DB, backend Backend) error {
	provider, err := NewMigrator(db, backend)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// MigrationLine is one row of migrate output.
type MigrationLine struct {
	Version int64
	Path    string
	State   string
}

// Migrate runs "up", "down" (one step) or "status" and reports the
// migrations it touched.
func Migrate(ctx context.Context, db *sqlx.DB, backend Backend, cmd string) ([]MigrationLine, error) {
	provider, err := NewMigrator(db, backend)
	if err != nil {
		return nil, err
	}

	switch cmd {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose up: %w", err)
		}
		out := make([]MigrationLine, 0, len(results))
		for _, r := range results {
			out = append(out, MigrationLine{Version: r.Source.Version, Path: r.Source.Path, State: "applied"})
		}
		return out, nil
	case "down":
		r, err := provider.Down(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("goose down: %w", err)
		}
		return []MigrationLine{{Version: r.Source.Version, Path: r.Source.Path, State: "rolled_back"}}, nil
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose status: %w", err)
		}
		out := make([]MigrationLine, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, MigrationLine{Version: s.Source.Version, Path: s.Source.Path, State: string(s.State)})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w %q (want up, down or status)", ErrUnknownMigrateCommand, cmd)
	}
}
