package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"baccarat/internal/server"
)

func gracefulShutdown(srv *server.FiberServer, logger *zap.Logger, done chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("shutting down gracefully, press Ctrl+C again to force")
	stop()

	if err := srv.App.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := srv.Shutdown(); err != nil {
		logger.Error("table shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
	close(done)
}

func main() {
	logger, err := server.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := server.LoadConfig()
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to start table", zap.Error(err))
	}
	srv.RegisterFiberRoutes()

	done := make(chan struct{})
	go gracefulShutdown(srv, logger, done)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("listening", zap.String("addr", addr))
	if err := srv.Listen(addr); err != nil {
		logger.Fatal("http server error", zap.Error(err))
	}

	<-done
}
