package syncqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GuardTrack/internal/model/dto"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/logger"
	"GuardTrack/pkg/metrics"
	"GuardTrack/pkg/retry"
)

// Status 队列对外暴露的状态快照
type Status struct {
	Pending    int  `json:"pending"`
	Online     bool `json:"online"`
	InProgress bool `json:"in_progress"`
}

// Config 队列参数
type Config struct {
	// Policy 重试策略（尝试上限 + 轮间退避），零值取 retry.Default
	Policy retry.Policy
	// OnExhausted 重试耗尽或被永久拒绝时回调，用于告知用户数据已丢弃
	OnExhausted func(item dto.SyncActionRequest, err error)
}

// Queue 离线可恢复的变更队列。所有班次动作先入队，联网后按
// 入队顺序投递；服务端幂等，重复投递无害。
type Queue struct {
	mu    sync.Mutex
	store Store
	trans Transport

	items      []dto.SyncActionRequest
	online     bool
	inProgress bool

	// nextAttempt 退避门闩：队头可重试失败后，这个时间点之前不再开新一轮
	nextAttempt time.Time

	policy      retry.Policy
	onExhausted func(item dto.SyncActionRequest, err error)
}

// NewQueue 从 store 恢复未投递的条目
func NewQueue(store Store, trans Transport, cfg Config) (*Queue, error) {
	items, err := store.Load()
	if err != nil {
		return nil, err
	}

	policy := cfg.Policy
	if policy.MaxAttempts <= 0 {
		policy = retry.Default(0)
	}

	q := &Queue{
		store:       store,
		trans:       trans,
		items:       items,
		policy:      policy,
		onExhausted: cfg.OnExhausted,
	}
	if len(items) > 0 {
		logger.Logger.Info("Sync queue restored", zap.Int("pending", len(items)))
	}
	return q, nil
}

// Enqueue 序列化 payload 入队并立即落盘，返回条目 ID。
// 处理中的一轮不会看到新条目，下一轮自然带上。
func (q *Queue) Enqueue(action string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	item := dto.SyncActionRequest{
		ID:         uuid.NewString(),
		Action:     action,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	if err := q.store.Save(q.items); err != nil {
		q.items = q.items[:len(q.items)-1]
		return "", err
	}

	metrics.AddQueueLength(context.Background(), 1)
	logger.Logger.Info("Action queued",
		zap.String("id", item.ID),
		zap.String("action", item.Action),
		zap.Int("pending", len(q.items)),
	)

	// 已知在线时立即拉起一轮投递，离线时等连通性恢复
	if q.online {
		go func() {
			if err := q.Process(context.Background()); err != nil {
				logger.Logger.Warn("Drain after enqueue incomplete", zap.Error(err))
			}
		}()
	}
	return item.ID, nil
}

// Process 按 FIFO 顺序投递当前快照。并发调用只有一轮生效，
// 退避窗口内的调用直接返回。
// 可重试失败停止本轮保持顺序，按策略退避后等待下一次触发；
// 永久拒绝和重试耗尽的条目丢弃并回调 OnExhausted。
func (q *Queue) Process(ctx context.Context) error {
	q.mu.Lock()
	if q.inProgress || time.Now().Before(q.nextAttempt) {
		q.mu.Unlock()
		return nil
	}
	q.inProgress = true
	snapshot := make([]dto.SyncActionRequest, len(q.items))
	copy(snapshot, q.items)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.inProgress = false
		q.mu.Unlock()
	}()

	for _, item := range snapshot {
		del, err := q.trans.Deliver(ctx, item)
		metrics.RecordSyncAttempt(ctx, item.Action, err == nil)

		if err == nil {
			if del.Duplicate {
				logger.Logger.Info("Action absorbed as duplicate", zap.String("id", item.ID))
			}
			q.remove(item.ID)
			continue
		}

		if IsPermanent(err) {
			q.drop(item, err)
			continue
		}

		attempts := q.bumpRetry(item.ID)
		if q.policy.Exhausted(attempts) {
			q.drop(item, pkgerrors.SyncExhausted)
			continue
		}

		delay := q.policy.Delay(attempts)
		q.mu.Lock()
		q.nextAttempt = time.Now().Add(delay)
		q.mu.Unlock()

		logger.Logger.Warn("Delivery failed, will retry",
			zap.String("id", item.ID),
			zap.Int("attempts", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// SendImmediate 紧急动作绕过队列直接投递；失败时插到队头兜底
func (q *Queue) SendImmediate(ctx context.Context, action string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	item := dto.SyncActionRequest{
		ID:         uuid.NewString(),
		Action:     action,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}

	_, err = q.trans.Deliver(ctx, item)
	metrics.RecordSyncAttempt(ctx, action, err == nil)
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}

	q.mu.Lock()
	q.items = append([]dto.SyncActionRequest{item}, q.items...)
	saveErr := q.store.Save(q.items)
	q.mu.Unlock()

	if saveErr != nil {
		return saveErr
	}
	metrics.AddQueueLength(ctx, 1)
	logger.Logger.Warn("Immediate delivery failed, queued at head",
		zap.String("action", action),
		zap.Error(err),
	)
	return err
}

// SetOnline 连通性变化。转为在线时后台拉起一轮投递。
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	q.mu.Unlock()

	if online && !wasOnline {
		go func() {
			if err := q.Process(context.Background()); err != nil {
				logger.Logger.Warn("Drain after reconnect incomplete", zap.Error(err))
			}
		}()
	}
}

// Status 当前状态快照
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Pending:    len(q.items),
		Online:     q.online,
		InProgress: q.inProgress,
	}
}

// Items 未投递条目的副本，供设备端展示
func (q *Queue) Items() []dto.SyncActionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]dto.SyncActionRequest, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			if err := q.store.Save(q.items); err != nil {
				logger.Logger.Error("Queue persist failed", zap.Error(err))
			}
			metrics.AddQueueLength(context.Background(), -1)
			return
		}
	}
}

// bumpRetry 返回累计尝试次数（含首次）
func (q *Queue) bumpRetry(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].RetryCount++
			if err := q.store.Save(q.items); err != nil {
				logger.Logger.Error("Queue persist failed", zap.Error(err))
			}
			return q.items[i].RetryCount
		}
	}
	return 0
}

func (q *Queue) drop(item dto.SyncActionRequest, cause error) {
	q.remove(item.ID)
	metrics.RecordSyncExhausted(context.Background(), item.Action)
	logger.Logger.Error("Action dropped",
		zap.String("id", item.ID),
		zap.String("action", item.Action),
		zap.Error(cause),
	)
	if q.onExhausted != nil {
		q.onExhausted(item, cause)
	}
}
