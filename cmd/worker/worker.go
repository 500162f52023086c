package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"GuardTrack/config"
	"GuardTrack/internal/realtime"
	"GuardTrack/pkg/logger"
	"GuardTrack/pkg/snowflake"
	"GuardTrack/storage"
)

func main() {

	logger.Init()
	defer logger.Sync()

	config.MustValidate()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	logger.Logger.Info("Worker service starting",
		zap.String("service", "guardtrack-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// Consume 阻塞直到连接关闭，关停交给 storage.Close
	go func() {
		if err := realtime.StartWorker(); err != nil {
			logger.Logger.Error("Realtime worker stopped", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Logger.Info("Worker service shutting down gracefully")
}
