package service

import (
	"context"
	"errors"

	"github.com/contractguard/contractguard/internal/model"
)

// ErrContractNotFound 合同不存在，向上映射为客户端错误
var ErrContractNotFound = errors.New("contract not found")

// ClauseStore 按合同维度保存条款。发布是 append-only：
// 同一个 clause_id 永不被编辑，修订即新 clause_id。
type ClauseStore interface {
	// GetClauses 返回合同的全部条款（发布顺序）；合同未知时返回 ErrContractNotFound
	GetClauses(ctx context.Context, contractID string) ([]model.Clause, error)
	// Publish 追加一条新条款；clause_id 在合同内重复时报错
	Publish(ctx context.Context, clause model.Clause) error
}
