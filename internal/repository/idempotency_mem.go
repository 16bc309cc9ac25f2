package repository

import (
	"context"
	"sync"
	"time"

	"github.com/contractguard/contractguard/internal/model"
)

// MemIdempotencyStore 进程内幂等存储，测试与单实例部署用。
// 多实例部署请用 Postgres 或 Redis 实现：幂等性要求跨进程原子。
type MemIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*model.IdempotencyEntry
}

func NewMemIdempotencyStore() *MemIdempotencyStore {
	return &MemIdempotencyStore{entries: make(map[string]*model.IdempotencyEntry)}
}

func idemKey(tenantID, key string) string {
	return tenantID + ":" + key
}

func (s *MemIdempotencyStore) Reserve(ctx context.Context, entry *model.IdempotencyEntry) (*model.IdempotencyEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idemKey(entry.TenantID, entry.Key)
	now := time.Now().UTC()
	if existing, ok := s.entries[k]; ok && !existing.Expired(now) {
		cp := *existing
		return &cp, false, nil
	}
	cp := *entry
	s.entries[k] = &cp
	return nil, true, nil
}

func (s *MemIdempotencyStore) Complete(ctx context.Context, tenantID, key, auditID string, response []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idemKey(tenantID, key)
	entry, ok := s.entries[k]
	if !ok || entry.State != model.IdemReserved {
		return nil
	}
	entry.State = model.IdemCompleted
	entry.AuditID = auditID
	entry.Response = response
	entry.ExpiresAt = expiresAt
	return nil
}

func (s *MemIdempotencyStore) Get(ctx context.Context, tenantID, key string) (*model.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[idemKey(tenantID, key)]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (s *MemIdempotencyStore) Release(ctx context.Context, tenantID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, idemKey(tenantID, key))
	return nil
}

func (s *MemIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for k, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, k)
		}
	}
	return nil
}
