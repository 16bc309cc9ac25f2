package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/service"
)

// MemClauseStore 进程内条款库，测试与无数据库部署用
type MemClauseStore struct {
	mu        sync.RWMutex
	contracts map[string][]model.Clause
}

func NewMemClauseStore() *MemClauseStore {
	return &MemClauseStore{contracts: make(map[string][]model.Clause)}
}

func (s *MemClauseStore) GetClauses(ctx context.Context, contractID string) ([]model.Clause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clauses, ok := s.contracts[contractID]
	if !ok {
		return nil, service.ErrContractNotFound
	}
	out := make([]model.Clause, len(clauses))
	copy(out, clauses)
	return out, nil
}

func (s *MemClauseStore) Publish(ctx context.Context, clause model.Clause) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.contracts[clause.ContractID] {
		if existing.ClauseID == clause.ClauseID {
			return fmt.Errorf("clause %s already published in contract %s", clause.ClauseID, clause.ContractID)
		}
	}
	s.contracts[clause.ContractID] = append(s.contracts[clause.ContractID], clause)
	return nil
}

// Seed 预注册一个空合同，让没有条款的合同也能通过存在性检查
func (s *MemClauseStore) Seed(contractID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[contractID]; !ok {
		s.contracts[contractID] = []model.Clause{}
	}
}
