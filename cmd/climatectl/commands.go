package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/scheaton/sqlalchemy-challenge/internal/config"
	"github.com/scheaton/sqlalchemy-challenge/internal/db"
	"github.com/scheaton/sqlalchemy-challenge/internal/modules/climate/repository"
	"github.com/scheaton/sqlalchemy-challenge/internal/schema"
	"github.com/scheaton/sqlalchemy-challenge/internal/store"
)

const defaultDBPath = "Resources/hawaii.sqlite"

type options struct {
	dbPath string
	cutoff string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "climatectl",
		Short:         "Inspect and query the Hawaii climate database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	def := os.Getenv("SQLITE_PATH")
	if def == "" {
		def = defaultDBPath
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", def, "path to the SQLite database")

	root.AddCommand(newSchemaCmd(opts), newQueryCmd(opts))
	return root
}

func newSchemaCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create or check the station and measurement tables",
	}

	apply := &cobra.Command{
		Use:   "apply",
		Short: "Apply pending schema migrations (creates the file if needed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := openWritable(opts.dbPath)
			if err != nil {
				return err
			}
			defer closeDB(conn)

			if err := schema.Apply(cmd.Context(), conn); err != nil {
				return fmt.Errorf("apply: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the database has every table and column the service reads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := db.Open(readOnlyConfig(opts.dbPath))
			if err != nil {
				return err
			}
			defer closeDB(conn)

			if err := store.New(conn).Verify(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ok")
			return nil
		},
	}

	cmd.AddCommand(apply, verify)
	return cmd
}

func newQueryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run one of the API queries and print JSON",
	}
	cmd.PersistentFlags().StringVar(&opts.cutoff, "cutoff", "", "series cutoff date (default: one year before the last measurement)")

	run := func(fn func(ctx context.Context, repo repository.ClimateRepository, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(readOnlyConfig(opts.dbPath))
			if err != nil {
				return err
			}
			defer closeDB(conn)

			st := store.New(conn)
			cutoff, err := repository.ResolveCutoff(cmd.Context(), st, opts.cutoff)
			if err != nil {
				return err
			}
			out, err := fn(cmd.Context(), repository.NewRepository(st, cutoff), args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "precipitation",
			Short: "Precipitation by date after the cutoff",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, repo repository.ClimateRepository, _ []string) (any, error) {
				return repo.Precipitation(ctx)
			}),
		},
		&cobra.Command{
			Use:   "stations",
			Short: "Station catalog",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, repo repository.ClimateRepository, _ []string) (any, error) {
				return repo.Stations(ctx)
			}),
		},
		&cobra.Command{
			Use:   "tobs",
			Short: "Temperature observations after the cutoff",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, repo repository.ClimateRepository, _ []string) (any, error) {
				return repo.Tobs(ctx)
			}),
		},
		&cobra.Command{
			Use:   "summary START [END]",
			Short: "Min, average and max temperature from START, or from START to END inclusive",
			Args:  cobra.RangeArgs(1, 2),
			RunE: run(func(ctx context.Context, repo repository.ClimateRepository, args []string) (any, error) {
				if len(args) == 2 {
					return repo.SummaryRange(ctx, args[0], args[1])
				}
				return repo.SummarySince(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "bounds",
			Short: "First and last measurement date",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, repo repository.ClimateRepository, _ []string) (any, error) {
				return repo.Bounds(ctx)
			}),
		},
	)
	return cmd
}

func readOnlyConfig(path string) config.Config {
	return config.Config{
		Driver:       "sqlite3",
		Path:         filepath.Clean(path),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// openWritable opens path for schema changes. The service itself only ever
// opens the file read-only.
func openWritable(path string) (*sqlx.DB, error) {
	path = filepath.Clean(path)
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	if strings.HasPrefix(path, "file:") {
		dsn = path
	}
	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return conn, nil
}

func closeDB(conn *sqlx.DB) {
	if err := conn.Close(); err != nil {
		slog.Error("db close", "err", err)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
