// Package migrate applies the embedded Postgres schema for the job store.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey serialises migration transactions across replicas that start together.
const lockKey int64 = 0x6a6f6270697065 // "jobpipe"

// Migration is one embedded SQL file.
type Migration struct {
	Version string
	File    string
}

// List returns the embedded migrations in apply order.
func List() ([]Migration, error) {
	return list(migrationsFS)
}

func list(fsys fs.ReadDirFS) ([]Migration, error) {
	entries, err := fsys.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), File: e.Name()})
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// Run applies every embedded migration not yet recorded in schema_migrations and
// returns the versions it applied. Calling it again is a no-op.
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrate")

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}

	migrations, err := List()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range migrations {
		ok, applyErr := apply(ctx, db, logger, m)
		if applyErr != nil {
			return applied, applyErr
		}
		if ok {
			applied = append(applied, m.Version)
		}
	}
	logger.InfoContext(ctx, "schema up to date", "applied", applied, "known", len(migrations))
	return applied, nil
}

// apply runs m inside a transaction holding the migration lock. It reports false
// when another process recorded m first.
func apply(ctx context.Context, db *sql.DB, logger *slog.Logger, m Migration) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "rollback failed", "version", m.Version, "error", rbErr)
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}

	var exists bool
	if err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.File, err)
	}
	if exists {
		return false, nil
	}

	body, err := migrationsFS.ReadFile("migrations/" + m.File)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", m.File, err)
	}

	logger.InfoContext(ctx, "applying migration", "version", m.Version)
	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return false, fmt.Errorf("exec migration %s: %w", m.File, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", m.File, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", m.File, err)
	}
	return true, nil
}
