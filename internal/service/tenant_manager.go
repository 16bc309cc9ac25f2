package service

import (
	"context"
	"sync"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/model"
	"golang.org/x/time/rate"
)

// TenantManager 管理租户信息与限流器
type TenantManager struct {
	mu            sync.RWMutex
	tenants       map[string]*model.Tenant // Key: ApiKey
	limiters      map[string]*rate.Limiter // Key: TenantID
	config        *config.Config
	defaultTenant *model.Tenant
	repo          TenantRepo
}

type TenantRepo interface {
	GetByApiKey(ctx context.Context, apiKey string) (*model.Tenant, error)
}

func NewTenantManager(cfg *config.Config, repo TenantRepo) *TenantManager {
	tm := &TenantManager{
		tenants:  make(map[string]*model.Tenant),
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
		repo:     repo,
	}

	// 配置化租户 (优先)
	if len(cfg.Tenants) > 0 {
		for _, tenantCfg := range cfg.Tenants {
			tm.RegisterTenant(&model.Tenant{
				ID:     tenantCfg.ID,
				Name:   tenantCfg.Name,
				ApiKey: tenantCfg.APIKey,
				Rate: model.RateLimitConfig{
					QPS:   tenantCfg.QPS,
					Burst: tenantCfg.Burst,
				},
			})
		}
		return tm
	}

	// 单租户兼容模式
	defaultTenant := &model.Tenant{
		ID:     "default-tenant",
		Name:   "Default Tenant",
		ApiKey: cfg.Auth.APIKey,
		Rate: model.RateLimitConfig{
			QPS:   10,
			Burst: 20,
		},
	}
	if defaultTenant.ApiKey == "" {
		defaultTenant.ApiKey = "sk-default-12345"
	}
	tm.RegisterTenant(defaultTenant)
	tm.defaultTenant = defaultTenant

	return tm
}

func (tm *TenantManager) RegisterTenant(t *model.Tenant) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if t == nil {
		return
	}
	tm.tenants[t.ApiKey] = t

	// 配置为 0 时给予宽松默认值
	limit := rate.Limit(t.Rate.QPS)
	if limit == 0 {
		limit = rate.Inf
	}
	burst := t.Rate.Burst
	if burst == 0 {
		burst = 1
	}
	tm.limiters[t.ID] = rate.NewLimiter(limit, burst)
}

func (tm *TenantManager) GetTenantByApiKey(apiKey string) (*model.Tenant, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.tenants[apiKey]
	return t, ok
}

// GetTenantByApiKeyWithFallback 内存未命中时回源到持久化存储
func (tm *TenantManager) GetTenantByApiKeyWithFallback(ctx context.Context, apiKey string) (*model.Tenant, bool) {
	if t, ok := tm.GetTenantByApiKey(apiKey); ok {
		return t, true
	}
	if tm.repo == nil {
		return nil, false
	}
	t, err := tm.repo.GetByApiKey(ctx, apiKey)
	if err != nil || t == nil {
		return nil, false
	}
	tm.RegisterTenant(t)
	return t, true
}

func (tm *TenantManager) DefaultTenant() *model.Tenant {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.defaultTenant
}

func (tm *TenantManager) GetLimiterForTenant(tenantID string) *rate.Limiter {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.limiters[tenantID]
}
