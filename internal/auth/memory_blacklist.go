package auth

import (
	"context"
	"sync"
	"time"
)

// memoryTokenBlacklist 是进程内的黑名单，用于单机部署与测试。
type memoryTokenBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryTokenBlacklist returns a TokenBlacklist that lives in this process only.
func NewMemoryTokenBlacklist() TokenBlacklist {
	return &memoryTokenBlacklist{entries: make(map[string]time.Time), now: time.Now}
}

func (m *memoryTokenBlacklist) Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !originalTokenExpTime.After(m.now()) {
		return nil // 已过期的 Token 无需加入
	}
	m.entries[jti] = originalTokenExpTime
	return nil
}

func (m *memoryTokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if !exp.After(m.now()) {
		delete(m.entries, jti)
		return false, nil
	}
	return true, nil
}
