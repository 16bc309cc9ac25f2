package repository

import (
	"context"
	"sync"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/service"
)

// MemAuditStore 进程内审计存储。链尾 CAS 用每租户互斥保证。
type MemAuditStore struct {
	mu      sync.RWMutex
	byID    map[string]*model.AuditRecord
	chains  map[string][]*model.AuditRecord // tenantID → 按 seq 升序
}

func NewMemAuditStore() *MemAuditStore {
	return &MemAuditStore{
		byID:   make(map[string]*model.AuditRecord),
		chains: make(map[string][]*model.AuditRecord),
	}
}

func (s *MemAuditStore) Head(ctx context.Context, tenantID string) (string, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[tenantID]
	if len(chain) == 0 {
		return "", 0, nil
	}
	tail := chain[len(chain)-1]
	return tail.RecordHash, tail.Seq, nil
}

func (s *MemAuditStore) Append(ctx context.Context, rec *model.AuditRecord, expectPrev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[rec.TenantID]
	tail := model.GenesisHash
	if len(chain) > 0 {
		tail = chain[len(chain)-1].RecordHash
	}
	if expectPrev == "" {
		expectPrev = model.GenesisHash
	}
	if tail != expectPrev {
		return service.ErrChainConflict
	}

	stored := *rec
	s.byID[rec.AuditID] = &stored
	s.chains[rec.TenantID] = append(chain, &stored)
	return nil
}

func (s *MemAuditStore) Get(ctx context.Context, auditID string) (*model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[auditID]
	if !ok {
		return nil, service.ErrAuditNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemAuditStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[tenantID]
	if limit <= 0 || limit > len(chain) {
		limit = len(chain)
	}
	// 最近的记录在前
	out := make([]*model.AuditRecord, 0, limit)
	for i := len(chain) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *chain[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemAuditStore) Chain(ctx context.Context, tenantID string) ([]*model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[tenantID]
	out := make([]*model.AuditRecord, 0, len(chain))
	for _, rec := range chain {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// Tamper 测试钩子：原地篡改一条已提交记录的字段
func (s *MemAuditStore) Tamper(auditID string, mutate func(*model.AuditRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[auditID]
	if !ok {
		return false
	}
	mutate(rec)
	return true
}
