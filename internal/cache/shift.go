package cache

import (
	"context"
	"strconv"
	"time"

	"GuardTrack/storage/redis"
)

// 班次状态缓存。worker 推送实时消息前先比对缓存，
// 丢掉已经过时的状态更新。

const (
	shiftStatusPrefix = "shift:status"

	shiftStatusTTL = 24 * time.Hour
)

// SetShiftStatus 记录最近一次已提交的状态和时间戳
func SetShiftStatus(ctx context.Context, shiftID int64, status string, at time.Time) error {
	key := redis.Key(shiftStatusPrefix, strconv.FormatInt(shiftID, 10))
	return redis.Client().HSet(ctx, key, map[string]interface{}{
		"status":     status,
		"updated_at": at.UnixMilli(),
	}).Err()
}

// GetShiftStatus 返回缓存的状态与更新时间，缓存缺失时 ok 为 false
func GetShiftStatus(ctx context.Context, shiftID int64) (status string, updatedAt time.Time, ok bool, err error) {
	key := redis.Key(shiftStatusPrefix, strconv.FormatInt(shiftID, 10))
	vals, err := redis.Client().HGetAll(ctx, key).Result()
	if err != nil {
		return "", time.Time{}, false, err
	}
	if len(vals) == 0 {
		return "", time.Time{}, false, nil
	}

	ms, err := strconv.ParseInt(vals["updated_at"], 10, 64)
	if err != nil {
		return "", time.Time{}, false, nil
	}

	// 顺手续期
	_ = redis.Client().Expire(ctx, key, shiftStatusTTL).Err()

	return vals["status"], time.UnixMilli(ms), true, nil
}
