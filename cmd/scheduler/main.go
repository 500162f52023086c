package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"GuardTrack/config"
	"GuardTrack/internal/schedule"
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

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 与 server/worker 错开 machine ID 部署，避免 ID 冲突
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", "guardtrack-scheduler"),
		zap.String("environment", config.Cfg.Environment),
	)

	go runNoShowSweepLoop(ctx)

	<-ctx.Done()

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runNoShowSweepLoop 周期执行 no-show 扫描
func runNoShowSweepLoop(ctx context.Context) {
	s := schedule.GetScheduler()

	interval := time.Duration(config.Cfg.NoShowSweepIntervalS) * time.Second
	if config.Cfg.IsDevelopment() {
		// 本地调试不想等五分钟
		interval = time.Minute
		logger.Logger.Info("No-show sweep loop running in development mode with 1m interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			if err := s.SweepMissedShifts(runCtx); err != nil {
				logger.Logger.Error("No-show sweep run failed", zap.Error(err))
			}
			cancel()
		}
	}
}
