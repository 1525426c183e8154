package session

import (
	"context"
	"sync"
	"time"

	xerrors "WealthPilot/internal/errors"
)

// ErrSessionNotFound 表示会话不存在或已过期。
var ErrSessionNotFound = xerrors.New(xerrors.CodeNotFound, "会话不存在")

// Store 抽象会话的持久化后端。
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore 以内存方式保存会话,用于测试与单机部署。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// NewMemoryStore 创建 MemoryStore。ttl 为零表示永不过期。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memoryEntry), ttl: ttl}
}

// Load 返回会话的深拷贝。
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.ttl > 0 && time.Now().After(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}
	return entry.session.Clone(), nil
}

// Save 保存会话的深拷贝并刷新过期时间。
func (m *MemoryStore) Save(_ context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = &memoryEntry{
		session:   sess.Clone(),
		expiresAt: time.Now().Add(m.ttl),
	}
	return nil
}

// Delete 删除会话。
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
