package main

import (
	"context"
	"os/signal"
	"syscall"

	"quotes-service/internal/bootstrap"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	log := bootstrap.ProvideLogger()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := bootstrap.InitWorker(ctx, bootstrap.ProvideConfig(), log)
	if err != nil {
		log.Fatal("init worker", zap.Error(err))
	}
	defer cleanup()

	if err := app.Run(ctx); err != nil {
		log.Error("worker exited", zap.Error(err))
	}
}
