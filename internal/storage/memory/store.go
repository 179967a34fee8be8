package memory

import (
	"context"
	"sync"

	"smsrent/backend/internal/storage"
)

// Store 使用内存保存记录，主要用于开发验证和测试，进程退出后数据丢失。
type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
	closed  bool
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{records: make(map[string][]byte)}
}

// Load 读取记录副本。
func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrBackendClosed
	}
	value, ok := s.records[key]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Store 保存记录副本。
func (s *Store) Store(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrBackendClosed
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.records[key] = stored
	return nil
}

// Health 内存存储在关闭前始终可用。
func (s *Store) Health(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrBackendClosed
	}
	return nil
}

// Close 释放全部记录。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
