package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresIdempotencyStore 跨进程幂等存储。
// Reserve 依赖 INSERT ... ON CONFLICT DO NOTHING 的原子性：
// 并发同 key 恰好一行插入成功。
type PostgresIdempotencyStore struct {
	db *sqlx.DB
}

func NewPostgresIdempotencyStore(db *sqlx.DB) *PostgresIdempotencyStore {
	store := &PostgresIdempotencyStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresIdempotencyStore) Reserve(ctx context.Context, entry *model.IdempotencyEntry) (*model.IdempotencyEntry, bool, error) {
	now := time.Now().UTC()

	// 过期条目等同不存在；先清掉本 key 的过期行再抢插入
	_, _ = s.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE tenant_id = $1 AND key = $2 AND expires_at < $3
	`, entry.TenantID, entry.Key, now)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (tenant_id, key, state, fingerprint, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, key) DO NOTHING
	`, entry.TenantID, entry.Key, string(entry.State), entry.Fingerprint, entry.CreatedAt, entry.ExpiresAt)
	if err != nil {
		return nil, false, err
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil, true, nil
	}

	existing, err := s.Get(ctx, entry.TenantID, entry.Key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// 竞争窗口里被别人删掉了，按占用失败处理让调用方重读
		return nil, false, errors.New("idempotency entry vanished during reserve")
	}
	return existing, false, nil
}

func (s *PostgresIdempotencyStore) Complete(ctx context.Context, tenantID, key, auditID string, response []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET state = 'completed', audit_id = $3, response = $4, expires_at = $5
		WHERE tenant_id = $1 AND key = $2 AND state = 'reserved'
	`, tenantID, key, auditID, response, expiresAt)
	return err
}

func (s *PostgresIdempotencyStore) Get(ctx context.Context, tenantID, key string) (*model.IdempotencyEntry, error) {
	var (
		entry   model.IdempotencyEntry
		state   string
		auditID sql.NullString
	)
	err := s.db.QueryRowxContext(ctx, `
		SELECT state, fingerprint, audit_id, response, created_at, expires_at
		FROM idempotency_keys
		WHERE tenant_id = $1 AND key = $2
	`, tenantID, key).Scan(&state, &entry.Fingerprint, &auditID, &entry.Response, &entry.CreatedAt, &entry.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.TenantID = tenantID
	entry.Key = key
	entry.State = model.IdempotencyState(state)
	entry.AuditID = auditID.String
	return &entry, nil
}

func (s *PostgresIdempotencyStore) Release(ctx context.Context, tenantID, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE tenant_id = $1 AND key = $2 AND state = 'reserved'
	`, tenantID, key)
	return err
}

func (s *PostgresIdempotencyStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			tenant_id TEXT NOT NULL,
			key TEXT NOT NULL,
			state TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			audit_id TEXT,
			response BYTEA,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (tenant_id, key)
		)
	`)
	return err
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().UTC()
	if olderThan > 0 {
		cutoff = cutoff.Add(-olderThan)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, cutoff)
	return err
}
