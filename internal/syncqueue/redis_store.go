package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"GuardTrack/internal/model/dto"
)

// RedisStore 把整个队列序列化到单个 key 下，
// 读写都是整体替换，天然保持 FIFO 顺序。
type RedisStore struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisStore key 建议带 guard 维度前缀，不同设备互不干扰
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{
		client:  client,
		key:     key,
		timeout: 3 * time.Second,
	}
}

// Load 读取并反序列化队列，key 不存在视作空队列
func (s *RedisStore) Load() ([]dto.SyncActionRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []dto.SyncActionRequest
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Save 整体写回，空队列直接删 key
func (s *RedisStore) Save(items []dto.SyncActionRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if len(items) == 0 {
		return s.client.Del(ctx, s.key).Err()
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, raw, 0).Err()
}
