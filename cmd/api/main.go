package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"quotes-service/internal/bootstrap"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	logger := bootstrap.ProvideLogger()
	defer func() { _ = logger.Sync() }()
	cfg := bootstrap.ProvideConfig()
	addr := ":" + cfg.Port

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, cleanup, err := bootstrap.InitAPI(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap api", zap.Error(err))
	}
	defer cleanup()

	var wg sync.WaitGroup
	if api.Worker != nil {
		if err := api.Reaper.Start(ctx); err != nil {
			logger.Fatal("start reaper", zap.Error(err))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			api.Worker.Start(ctx)
		}()
	}

	server := &http.Server{
		Addr:    addr,
		Handler: api.Handler,
	}
	go func() {
		logger.Info("server started",
			zap.String("addr", addr),
			zap.String("env", cfg.Env),
			zap.String("storage", cfg.Storage),
			zap.String("idempotency", cfg.IdempotencyBackend),
			zap.Bool("embedded_worker", api.Worker != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	wg.Wait()
	logger.Info("server stopped")
}
