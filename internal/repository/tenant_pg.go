package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresTenantRepo 租户的持久化来源，TenantManager 内存未命中时回源
type PostgresTenantRepo struct {
	db *sqlx.DB
}

func NewPostgresTenantRepo(db *sqlx.DB) *PostgresTenantRepo {
	repo := &PostgresTenantRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresTenantRepo) GetByApiKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	var t model.Tenant
	err := r.db.QueryRowxContext(ctx, `
		SELECT id, name, api_key, qps, burst FROM tenants WHERE api_key = $1
	`, apiKey).Scan(&t.ID, &t.Name, &t.ApiKey, &t.Rate.QPS, &t.Rate.Burst)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresTenantRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT,
			api_key TEXT UNIQUE NOT NULL,
			qps DOUBLE PRECISION NOT NULL DEFAULT 10,
			burst INTEGER NOT NULL DEFAULT 20
		)
	`)
	return err
}
