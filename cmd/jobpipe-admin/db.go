package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/target/mmk-jobpipe/internal/bootstrap"
)

const defaultMigrationTimeout = 5 * time.Minute

type migrateOptions struct {
	Timeout time.Duration
}

type dbResetOptions struct {
	Timeout     time.Duration
	Yes         bool
	AllowRemote bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runDBReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBResetFlags(args)
	if err != nil {
		return err
	}

	pg := cmdCtx.Config.Postgres
	if isLikelyRemoteHost(pg.Host) {
		if !opts.AllowRemote {
			return fmt.Errorf(
				"refusing to reset potentially remote database host %q; re-run with --allow-remote if this is intentional",
				pg.Host,
			)
		}
		if confirmErr := confirm(fmt.Sprintf("Database host %q does not look local. Type the host to continue: ", pg.Host), pg.Host); confirmErr != nil {
			return confirmErr
		}
	}
	if !opts.Yes {
		target := fmt.Sprintf("database %q on %s:%d", pg.Name, pg.Host, pg.Port)
		if confirmErr := confirm("This will drop every table in "+target+". Type \"reset\" to continue: ", "reset"); confirmErr != nil {
			return confirmErr
		}
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("dropping public schema", "database", pg.Name)
		statements := []string{
			"DROP SCHEMA public CASCADE",
			"CREATE SCHEMA public",
			"GRANT ALL ON SCHEMA public TO public",
		}
		if user := strings.TrimSpace(pg.User); user != "" && !strings.EqualFold(user, "public") {
			statements = append(statements, "GRANT ALL ON SCHEMA public TO "+quoteIdentifier(user))
		}
		for _, stmt := range statements {
			if _, execErr := db.ExecContext(ctx, stmt); execErr != nil {
				return fmt.Errorf("exec %q: %w", stmt, execErr)
			}
		}

		cmdCtx.Logger.Info("re-running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}
		cmdCtx.Logger.Info("database reset completed successfully")
		return nil
	})
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseDBResetFlags(args []string) (dbResetOptions, error) {
	fs := flag.NewFlagSet("db-reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := dbResetOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration for the reset")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Allow resetting a non-local database host")

	if err := fs.Parse(args); err != nil {
		return dbResetOptions{}, err
	}
	if opts.Timeout <= 0 {
		return dbResetOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func confirm(prompt, want string) error {
	if err := writef(os.Stderr, "%s", prompt); err != nil {
		return fmt.Errorf("print prompt: %w", err)
	}
	resp, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(resp) != want {
		return errors.New("aborted by user")
	}
	return nil
}

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" || h == "localhost" || strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}
