package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/service"
	"github.com/jmoiron/sqlx"
)

// PostgresClauseStore 条款的持久化存储。发布是 append-only，
// 不存在 UPDATE 路径：同一 clause_id 重复发布直接报错。
type PostgresClauseStore struct {
	db *sqlx.DB
}

func NewPostgresClauseStore(db *sqlx.DB) *PostgresClauseStore {
	store := &PostgresClauseStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresClauseStore) GetClauses(ctx context.Context, contractID string) ([]model.Clause, error) {
	var exists bool
	err := s.db.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM contracts WHERE contract_id = $1)`, contractID,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, service.ErrContractNotFound
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT clause_id, contract_id, text, severity, violation_type, trigger
		FROM clauses
		WHERE contract_id = $1
		ORDER BY published_at ASC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clauses := make([]model.Clause, 0)
	for rows.Next() {
		var (
			clause      model.Clause
			triggerJSON []byte
		)
		if err := rows.Scan(&clause.ClauseID, &clause.ContractID, &clause.Text,
			&clause.Severity, &clause.ViolationType, &triggerJSON); err != nil {
			return nil, err
		}
		if len(triggerJSON) > 0 {
			var trigger model.Predicate
			if err := json.Unmarshal(triggerJSON, &trigger); err != nil {
				return nil, fmt.Errorf("clause %s has malformed trigger: %w", clause.ClauseID, err)
			}
			clause.Trigger = &trigger
		}
		clauses = append(clauses, clause)
	}
	return clauses, rows.Err()
}

func (s *PostgresClauseStore) Publish(ctx context.Context, clause model.Clause) error {
	var triggerJSON []byte
	if clause.Trigger != nil {
		data, err := json.Marshal(clause.Trigger)
		if err != nil {
			return err
		}
		triggerJSON = data
	}

	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO contracts (contract_id, created_at) VALUES ($1, $2)
		ON CONFLICT (contract_id) DO NOTHING
	`, clause.ContractID, time.Now().UTC())

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO clauses (clause_id, contract_id, text, severity, violation_type, trigger, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (contract_id, clause_id) DO NOTHING
	`, clause.ClauseID, clause.ContractID, clause.Text, string(clause.Severity),
		clause.ViolationType, triggerJSON, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("clause %s already published in contract %s", clause.ClauseID, clause.ContractID)
	}
	return nil
}

func (s *PostgresClauseStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS contracts (
			contract_id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS clauses (
			clause_id TEXT NOT NULL,
			contract_id TEXT NOT NULL REFERENCES contracts(contract_id),
			text TEXT NOT NULL,
			severity TEXT NOT NULL,
			violation_type TEXT NOT NULL,
			trigger JSONB,
			published_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (contract_id, clause_id)
		)
	`)
	return err
}
