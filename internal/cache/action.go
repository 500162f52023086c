package cache

import (
	"context"
	"time"

	"GuardTrack/storage/redis"
)

// 离线队列动作去重。客户端重试会带同一个 action ID 重复投递，
// 第一个写入成功的请求负责执行，其余直接按 duplicate 吸收。

const (
	actionPrefix = "sync:action"

	// 动作 ID 保留 7 天，覆盖设备长时间离线后的补投
	actionDedupTTL = 7 * 24 * time.Hour
)

// TryMarkActionProcessed 返回 true 表示首次见到该动作
func TryMarkActionProcessed(ctx context.Context, actionID string) (bool, error) {
	key := redis.Key(actionPrefix, actionID)
	return redis.Client().SetNX(ctx, key, 1, actionDedupTTL).Result()
}

// UnmarkAction 处理失败时回滚标记，让客户端重试有机会再执行
func UnmarkAction(ctx context.Context, actionID string) error {
	key := redis.Key(actionPrefix, actionID)
	return redis.Client().Del(ctx, key).Err()
}
