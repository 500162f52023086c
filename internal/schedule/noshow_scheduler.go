package schedule

// no-show 调度器：周期扫描超过宽限期仍未上岗的班次，标记为 NO_SHOW

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"GuardTrack/config"
	"GuardTrack/internal/cache"
	"GuardTrack/internal/service"
	"GuardTrack/pkg/logger"
)

const (
	noShowLockKey = "noshow:sweep"

	// 单轮最多处理的班次数，剩下的留给下一轮
	noShowBatchSize = 200
)

var (
	schedulerOnce sync.Once
	schedulerInst *NoShowScheduler
)

type NoShowScheduler struct {
	logger *zap.Logger

	sweepRunning  bool
	sweepMu       sync.Mutex
	lastSweepTime time.Time
}

func GetScheduler() *NoShowScheduler {
	schedulerOnce.Do(func() {
		schedulerInst = &NoShowScheduler{
			logger: logger.Logger,
		}
	})
	return schedulerInst
}

// SweepMissedShifts 执行一轮 no-show 扫描。
// 进程内用标志位防重入，实例间用 redis 锁互斥。
func (s *NoShowScheduler) SweepMissedShifts(ctx context.Context) error {
	s.sweepMu.Lock()
	if s.sweepRunning {
		s.sweepMu.Unlock()
		s.logger.Info("No-show sweep already running, skipping")
		return nil
	}
	s.sweepRunning = true
	s.sweepMu.Unlock()

	defer func() {
		s.sweepMu.Lock()
		s.sweepRunning = false
		s.sweepMu.Unlock()
	}()

	startTime := time.Now()
	s.lastSweepTime = startTime

	interval := time.Duration(config.Cfg.NoShowSweepIntervalS) * time.Second
	locked, err := cache.TryLock(ctx, noShowLockKey, interval)
	if err != nil {
		s.logger.Error("Failed to acquire sweep lock", zap.Error(err))
		return err
	}
	if !locked {
		s.logger.Info("Another instance is sweeping, skipping")
		return nil
	}
	defer func() {
		if err := cache.Unlock(context.Background(), noShowLockKey); err != nil {
			s.logger.Error("Failed to release sweep lock", zap.Error(err))
		}
	}()

	grace := time.Duration(config.Cfg.NoShowGraceMinutes) * time.Minute
	count, err := service.Shift().MarkMissedSweep(ctx, grace, noShowBatchSize)
	if err != nil {
		s.logger.Error("No-show sweep failed", zap.Error(err))
		return err
	}

	if count > 0 {
		s.logger.Info("No-show sweep completed",
			zap.Int("marked", count),
			zap.Duration("elapsed", time.Since(startTime)),
		)
	}
	return nil
}
