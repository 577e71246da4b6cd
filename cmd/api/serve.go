package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/yourusername/debt-tracer/internal/accounts"
	"github.com/yourusername/debt-tracer/internal/auth"
	"github.com/yourusername/debt-tracer/internal/blocking"
	"github.com/yourusername/debt-tracer/internal/config"
	"github.com/yourusername/debt-tracer/internal/database"
	"github.com/yourusername/debt-tracer/internal/ledger"
	"github.com/yourusername/debt-tracer/internal/logging"
	"github.com/yourusername/debt-tracer/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "API サーバーを起動します",
		RunE:  runServe,
	}
}

func hashParams(cfg *config.Config) auth.HashParams {
	params := auth.DefaultHashParams()
	params.Memory = uint32(cfg.HashMemoryKiB)
	params.Iterations = uint32(cfg.HashIterations)
	params.Parallelism = uint8(cfg.HashParallelism)
	return params
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup(serviceName, version, cfg.LogFormat, nil)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBAcquireTimeout())
	if err != nil {
		logging.LogError(ctx, logger, "failed to connect to database", err)
		return err
	}
	defer db.Close()

	rdb, err := setupRedis(ctx, cfg)
	if err != nil {
		logging.LogError(ctx, logger, "failed to connect to redis", err)
		return err
	}
	defer rdb.Close()

	pool := blocking.NewPool(cfg.HashWorkers)
	defer pool.Close()

	hasher := auth.NewHasher(hashParams(cfg))
	dummyHash, err := auth.NewDummyHash(hasher)
	if err != nil {
		return err
	}

	registry := observability.NewRegistry()
	metrics := observability.NewMetrics(registry)

	accountRepo := accounts.NewRepository(db)
	verifier, err := auth.NewVerifier(accountRepo, hasher, pool, dummyHash, metrics)
	if err != nil {
		return err
	}

	s := &server{
		logger:       logger,
		sessionStore: setupSessionStore(cfg, rdb, logger),
		authManager: auth.NewManager(verifier, resolveSession,
			auth.WithLogger(logger.With("component", "auth")),
			auth.WithRecorder(metrics),
		),
		signUp:  accounts.NewHandler(accountRepo, hasher, pool, logger),
		debts:   ledger.NewHandler(ledger.NewRepository(db), logger),
		metrics: observability.Handler(registry),
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(s, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "addr", httpServer.Addr, "mode", cfg.GinMode)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
