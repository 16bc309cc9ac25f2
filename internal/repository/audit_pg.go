package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/service"
	"github.com/jmoiron/sqlx"
)

// PostgresAuditStore 哈希链审计存储。链尾放在 ledger_heads 表，
// Append 在单事务里做 compare-and-swap：WHERE tail_hash = expectPrev
// 没更新到任何行就是并发冲突，整个事务回滚，什么都不落。
type PostgresAuditStore struct {
	db *sqlx.DB
}

func NewPostgresAuditStore(db *sqlx.DB) *PostgresAuditStore {
	store := &PostgresAuditStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresAuditStore) Head(ctx context.Context, tenantID string) (string, int64, error) {
	var (
		hash string
		seq  int64
	)
	err := s.db.QueryRowxContext(ctx, `
		SELECT tail_hash, tail_seq FROM ledger_heads WHERE tenant_id = $1
	`, tenantID).Scan(&hash, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return hash, seq, nil
}

func (s *PostgresAuditStore) Append(ctx context.Context, rec *model.AuditRecord, expectPrev string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if expectPrev == "" || expectPrev == model.GenesisHash {
		// 首条记录：链头行必须不存在
		result, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_heads (tenant_id, tail_hash, tail_seq)
			VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id) DO NOTHING
		`, rec.TenantID, rec.RecordHash, rec.Seq)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return service.ErrChainConflict
		}
	} else {
		result, err := tx.ExecContext(ctx, `
			UPDATE ledger_heads
			SET tail_hash = $1, tail_seq = $2
			WHERE tenant_id = $3 AND tail_hash = $4
		`, rec.RecordHash, rec.Seq, rec.TenantID, expectPrev)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return service.ErrChainConflict
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_records (
			audit_id, tenant_id, actor_id, contract_id, trace_id, source_ip,
			query_payload, response_payload, verdict, risk_level,
			created_at, prev_hash, record_hash, seq
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, rec.AuditID, rec.TenantID, rec.ActorID, rec.ContractID, rec.TraceID, rec.SourceIP,
		[]byte(rec.QueryPayload), []byte(rec.ResponsePayload), string(rec.Verdict), string(rec.RiskLevel),
		rec.CreatedAt, rec.PrevHash, rec.RecordHash, rec.Seq)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresAuditStore) Get(ctx context.Context, auditID string) (*model.AuditRecord, error) {
	rec, err := s.scanOne(s.db.QueryRowxContext(ctx, `
		SELECT audit_id, tenant_id, actor_id, contract_id, trace_id, source_ip,
		       query_payload, response_payload, verdict, risk_level,
		       created_at, prev_hash, record_hash, seq
		FROM audit_records WHERE audit_id = $1
	`, auditID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrAuditNotFound
	}
	return rec, err
}

func (s *PostgresAuditStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*model.AuditRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.queryRecords(ctx, `
		SELECT audit_id, tenant_id, actor_id, contract_id, trace_id, source_ip,
		       query_payload, response_payload, verdict, risk_level,
		       created_at, prev_hash, record_hash, seq
		FROM audit_records WHERE tenant_id = $1
		ORDER BY seq DESC LIMIT $2
	`, tenantID, limit)
}

func (s *PostgresAuditStore) Chain(ctx context.Context, tenantID string) ([]*model.AuditRecord, error) {
	return s.queryRecords(ctx, `
		SELECT audit_id, tenant_id, actor_id, contract_id, trace_id, source_ip,
		       query_payload, response_payload, verdict, risk_level,
		       created_at, prev_hash, record_hash, seq
		FROM audit_records WHERE tenant_id = $1
		ORDER BY seq ASC
	`, tenantID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresAuditStore) scanOne(row rowScanner) (*model.AuditRecord, error) {
	var (
		rec      model.AuditRecord
		sourceIP sql.NullString
		query    []byte
		response []byte
	)
	err := row.Scan(
		&rec.AuditID, &rec.TenantID, &rec.ActorID, &rec.ContractID, &rec.TraceID, &sourceIP,
		&query, &response, &rec.Verdict, &rec.RiskLevel,
		&rec.CreatedAt, &rec.PrevHash, &rec.RecordHash, &rec.Seq,
	)
	if err != nil {
		return nil, err
	}
	rec.SourceIP = sourceIP.String
	rec.QueryPayload = query
	rec.ResponsePayload = response
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (s *PostgresAuditStore) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*model.AuditRecord, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.AuditRecord, 0)
	for rows.Next() {
		rec, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresAuditStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_heads (
			tenant_id TEXT PRIMARY KEY,
			tail_hash TEXT NOT NULL,
			tail_seq BIGINT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_records (
			audit_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			actor_id TEXT,
			contract_id TEXT,
			trace_id TEXT,
			source_ip TEXT,
			query_payload BYTEA,
			response_payload BYTEA,
			verdict TEXT,
			risk_level TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			prev_hash TEXT NOT NULL,
			record_hash TEXT NOT NULL,
			seq BIGINT NOT NULL,
			UNIQUE (tenant_id, seq)
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_records_tenant ON audit_records(tenant_id, seq DESC)`)
	return nil
}
