package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"encounter-tracker/internal/bridge"
	"encounter-tracker/internal/config"
	"encounter-tracker/internal/constants"
	fxmodules "encounter-tracker/internal/fx"
	"encounter-tracker/internal/middleware"
	"encounter-tracker/internal/server"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runTracker),
	).Run()
}

func runTracker(
	lc fx.Lifecycle,
	historyServer *server.HistoryServer,
	b *bridge.Bridge,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()
	historyServer.Register(mux)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: middleware.RequestID(logger)(c.Handler(mux)),
	}

	janitorDone := make(chan struct{})
	janitorStop := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			b.Initialize()

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("history server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("history server failed")
				}
			}()

			go runJanitor(b, cfg, logger, janitorStop, janitorDone)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down")

			close(janitorStop)
			<-janitorDone

			b.Shutdown()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("history server shutdown failed")
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database")
			}

			logger.Info().Msg("stopped gracefully")
			return nil
		},
	})
}

// runJanitor trims encounter history on a slow ticker. Cleanup failures
// are logged and retried on the next tick.
func runJanitor(b *bridge.Bridge, cfg *config.Config, logger zerolog.Logger, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(constants.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
			if _, err := b.CleanupOldEncounters(ctx, cfg.KeepCount); err != nil {
				logger.Warn().Err(err).Msg("scheduled cleanup failed")
			}
			cancel()
		}
	}
}
