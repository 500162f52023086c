package syncqueue

import (
	"sync"

	"GuardTrack/internal/model/dto"
)

// Store 队列持久化。每次变更整体落盘，重启后按原顺序恢复。
type Store interface {
	Load() ([]dto.SyncActionRequest, error)
	Save(items []dto.SyncActionRequest) error
}

// MemoryStore 进程内实现，测试和无持久化场景使用
type MemoryStore struct {
	mu    sync.Mutex
	items []dto.SyncActionRequest
}

// NewMemoryStore 构造空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load 返回已保存条目的副本
func (s *MemoryStore) Load() ([]dto.SyncActionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]dto.SyncActionRequest, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Save 整体替换
func (s *MemoryStore) Save(items []dto.SyncActionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]dto.SyncActionRequest, len(items))
	copy(s.items, items)
	return nil
}
