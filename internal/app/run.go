package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/scheaton/sqlalchemy-challenge/internal/config"
	"github.com/scheaton/sqlalchemy-challenge/internal/db"
	"github.com/scheaton/sqlalchemy-challenge/internal/httpapi"
	"github.com/scheaton/sqlalchemy-challenge/internal/modules/climate"
	"github.com/scheaton/sqlalchemy-challenge/internal/modules/climate/repository"
	climateviews "github.com/scheaton/sqlalchemy-challenge/internal/modules/climate/views"
	"github.com/scheaton/sqlalchemy-challenge/internal/store"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"dbDSNSet", cfg.DSN != "",
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"dbLogSQL", cfg.LogSQL,
		"cutoffOverride", cfg.CutoffDate,
	)

	dbConn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	mux, err := newMux(ctx, cfg, dbConn)
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

// newMux checks the opened database and mounts every route on a fresh mux.
func newMux(ctx context.Context, cfg config.Config, dbConn *sqlx.DB) (*http.ServeMux, error) {
	st := store.New(dbConn)
	if err := st.Ping(ctx); err != nil {
		return nil, err
	}
	if err := st.Verify(ctx); err != nil {
		return nil, err
	}
	slog.Info("database connection successful")

	cutoff, err := repository.ResolveCutoff(ctx, st, cfg.CutoffDate)
	if err != nil {
		return nil, err
	}
	bounds, err := repository.NewRepository(st, cutoff).Bounds(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("dataset ready",
		"firstDate", bounds.First,
		"lastDate", bounds.Last,
		"cutoff", cutoff,
		"cutoffOverridden", cfg.CutoffDate != "",
	)

	if err := climateviews.LoadTemplates(); err != nil {
		return nil, err
	}

	mux := httpapi.NewMux(st)
	climate.RegisterFeature(mux, st, cutoff)
	return mux, nil
}
