// Command server runs the payment gateway: the HTTP API, the idempotency
// lock coordinator, the provider registry, and the background reconciliation
// sweeper, all sharing one SQLite-backed store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-payment-backend/internal/config"
	httpapi "github.com/tbourn/go-payment-backend/internal/http"
	"github.com/tbourn/go-payment-backend/internal/lock"
	"github.com/tbourn/go-payment-backend/internal/observability"
	"github.com/tbourn/go-payment-backend/internal/provider"
	"github.com/tbourn/go-payment-backend/internal/repo"
	"github.com/tbourn/go-payment-backend/internal/services"
	"github.com/tbourn/go-payment-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	locks := lock.NewStore(db)

	// Provider catalog. Every capability maps to the sandbox gateway until
	// real vendor integrations land.
	providers := provider.NewRegistry()
	sandbox := provider.NewSandbox()
	providers.Register("UPI", "COLLECT", sandbox)
	providers.Register("UPI", "INTENT", sandbox)
	providers.Register("CARD", "ONE_TIME", sandbox)
	providers.Register("WALLET", "ONE_TIME", sandbox)

	// Background reconciliation.
	sweeper := services.NewReconcileService(db, locks, providers, services.LogNotifier{})
	sweeper.Interval = cfg.SweepInterval
	sweeper.Workers = cfg.SweepWorkers
	sweeper.BatchSize = cfg.SweepBatchSize
	go sweeper.Run(ctx)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, locks, providers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("payment gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
