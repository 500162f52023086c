package cache

import (
	"context"
	"time"

	"GuardTrack/storage/redis"
)

// 实时消息去重。MQ 是 at-least-once，worker 重启或 nack 重投
// 都可能造成重复消费。

const (
	messagePrefix = "realtime:msg"

	messageDedupTTL = 48 * time.Hour
)

// TryMarkMessageProcessing 返回 true 表示该消息首次被消费
func TryMarkMessageProcessing(ctx context.Context, messageID string) (bool, error) {
	key := redis.Key(messagePrefix, messageID)
	return redis.Client().SetNX(ctx, key, 1, messageDedupTTL).Result()
}

// UnmarkMessage 处理失败回滚标记，nack 重投后可再次处理
func UnmarkMessage(ctx context.Context, messageID string) error {
	key := redis.Key(messagePrefix, messageID)
	return redis.Client().Del(ctx, key).Err()
}
