package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"GuardTrack/config"
	"GuardTrack/internal/agent"
	"GuardTrack/internal/location"
	"GuardTrack/internal/syncqueue"
	"GuardTrack/pkg/logger"
	"GuardTrack/pkg/token"
)

// 设备端守护进程。定位流从 stdin 读 JSON 行（gpsd 之类的采集器
// 用管道接进来），班次动作经离线队列投递到服务端。

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
		logger.Logger.Info("Agent received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	}

	guardID, _, err := token.ParseGuardToken(config.Cfg.AgentToken)
	if err != nil {
		logger.Logger.Fatal("AGENT_TOKEN is invalid", zap.Error(err))
	}

	timeout := time.Duration(config.Cfg.SyncRequestTimeoutMS) * time.Millisecond

	api, err := agent.NewAPI(config.Cfg.ServerBaseURL, config.Cfg.AgentToken, timeout)
	if err != nil {
		logger.Logger.Fatal("Failed to build API client", zap.Error(err))
	}
	trans, err := syncqueue.NewHTTPTransport(config.Cfg.ServerBaseURL, config.Cfg.AgentToken, timeout)
	if err != nil {
		logger.Logger.Fatal("Failed to build sync transport", zap.Error(err))
	}

	a, err := agent.New(
		&stdinProvider{},
		newQueueStore(ctx, guardID),
		trans,
		api,
		agent.Config{
			DwellThreshold:  time.Duration(config.Cfg.GeofenceDwellSeconds) * time.Second,
			EventLogCap:     config.Cfg.GeofenceEventLogSize,
			MaxAccuracyM:    config.Cfg.LocationMaxAccuracyM,
			Cooldown:        time.Duration(config.Cfg.AutomationCooldownSec) * time.Second,
			ConfirmFirst:    config.Cfg.AutomationConfirmFirst,
			LocationTimeout: time.Duration(config.Cfg.LocationTimeoutSeconds) * time.Second,
			HistoryCap:      config.Cfg.LocationHistorySize,
		},
		config.Cfg.SyncMaxRetries,
		nil,
	)
	if err != nil {
		logger.Logger.Fatal("Failed to build agent", zap.Error(err))
	}

	if err := a.Start(ctx); err != nil {
		logger.Logger.Fatal("Failed to start agent", zap.Error(err))
	}

	logger.Logger.Info("Agent service starting",
		zap.String("service", "guardtrack-agent"),
		zap.String("guard_id", guardID),
		zap.String("server", config.Cfg.ServerBaseURL),
	)

	<-ctx.Done()

	a.Stop()
	logger.Logger.Info("Agent service shutting down gracefully")
}

// newQueueStore 优先用设备本地 redis 做队列持久化，
// 连不上时退化为内存队列，重启会丢未投递动作
func newQueueStore(ctx context.Context, guardID string) syncqueue.Store {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Cfg.RedisAddr,
		Password: config.Cfg.RedisPassword,
		DB:       config.Cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Logger.Warn("Local redis unavailable, queue will not survive restarts", zap.Error(err))
		return syncqueue.NewMemoryStore()
	}

	return syncqueue.NewRedisStore(client, config.Cfg.RedisPrefix+":syncqueue:"+guardID)
}

// stdinProvider 每行一个 JSON 定位点
type stdinProvider struct{}

func (p *stdinProvider) Subscribe(ctx context.Context) (<-chan location.Fix, func(), error) {
	out := make(chan location.Fix, 16)
	stopCh := make(chan struct{})

	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			var fix location.Fix
			if err := json.Unmarshal(scanner.Bytes(), &fix); err != nil {
				logger.Logger.Warn("Malformed location line", zap.Error(err))
				continue
			}
			if fix.CapturedAt.IsZero() {
				fix.CapturedAt = time.Now()
			}

			select {
			case out <- fix:
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			}
		}
	}()

	stop := func() { close(stopCh) }
	return out, stop, nil
}
