package service

import (
	"context"
	"fmt"
	"time"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/pkg/metrics"
)

// IdempotencyStore 幂等存储原语。Reserve 必须是原子的 insert-if-absent：
// 多进程并发同 key 时恰好一个插入成功。过期条目视作不存在。
type IdempotencyStore interface {
	Reserve(ctx context.Context, entry *model.IdempotencyEntry) (existing *model.IdempotencyEntry, inserted bool, err error)
	Complete(ctx context.Context, tenantID, key, auditID string, response []byte, expiresAt time.Time) error
	Get(ctx context.Context, tenantID, key string) (*model.IdempotencyEntry, error)
	Release(ctx context.Context, tenantID, key string) error
}

// BeginOutcome Begin 的三种结果
type BeginOutcome int

const (
	// Proceed 调用方获得执行权，必须以 Finish 或 Release 收尾
	Proceed BeginOutcome = iota
	// Replay 同 key 同 payload 的重复请求，直接用缓存响应
	Replay
	// Conflict 同 key 不同 payload，客户端错误
	Conflict
)

type BeginResult struct {
	Outcome  BeginOutcome
	AuditID  string
	Response []byte
}

// IdempotencyGuard 保证每个 (tenant_id, idempotency_key) 至多执行一次分析。
// reserved 条目用独立于 completed 保留期的短 TTL，持有者崩溃后
// 同 key 请求不会永久死锁。
type IdempotencyGuard struct {
	store          IdempotencyStore
	reservationTTL time.Duration
	retention      time.Duration
	pollInterval   time.Duration
}

func NewIdempotencyGuard(store IdempotencyStore, cfg config.IdempotencyConfig) *IdempotencyGuard {
	return &IdempotencyGuard{
		store:          store,
		reservationTTL: cfg.ReservationTTL(),
		retention:      cfg.Retention(),
		pollInterval:   cfg.PollInterval(),
	}
}

// Begin 检查/预占。并发同 key 的相同请求中恰好一个得到 Proceed，
// 其余阻塞等待其完成然后拿到 Replay，或在 context 取消时返回错误。
func (g *IdempotencyGuard) Begin(ctx context.Context, tenantID, key, fingerprint string) (BeginResult, error) {
	for {
		now := time.Now().UTC()
		entry := &model.IdempotencyEntry{
			TenantID:    tenantID,
			Key:         key,
			State:       model.IdemReserved,
			Fingerprint: fingerprint,
			CreatedAt:   now,
			ExpiresAt:   now.Add(g.reservationTTL),
		}
		existing, inserted, err := g.store.Reserve(ctx, entry)
		if err != nil {
			return BeginResult{}, fmt.Errorf("idempotency reserve failed: %w", err)
		}
		if inserted {
			return BeginResult{Outcome: Proceed}, nil
		}

		// key 已被占用：同 key 不同 payload 永远是冲突，不会被静默接受
		if existing.Fingerprint != fingerprint {
			metrics.IdempotencyConflicts.Inc()
			return BeginResult{Outcome: Conflict}, nil
		}
		if existing.State == model.IdemCompleted {
			metrics.IdempotencyReplays.Inc()
			return BeginResult{Outcome: Replay, AuditID: existing.AuditID, Response: existing.Response}, nil
		}

		// reserved：同样的请求正在处理中，等它完成或预占过期
		result, done, err := g.waitForCompletion(ctx, tenantID, key, fingerprint)
		if err != nil {
			return BeginResult{}, err
		}
		if done {
			return result, nil
		}
		// 预占过期（持有者崩溃），回到循环重新抢占
	}
}

func (g *IdempotencyGuard) waitForCompletion(ctx context.Context, tenantID, key, fingerprint string) (BeginResult, bool, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return BeginResult{}, false, ctx.Err()
		case <-ticker.C:
		}

		entry, err := g.store.Get(ctx, tenantID, key)
		if err != nil {
			return BeginResult{}, false, err
		}
		if entry == nil || entry.Expired(time.Now().UTC()) {
			return BeginResult{}, false, nil
		}
		if entry.Fingerprint != fingerprint {
			metrics.IdempotencyConflicts.Inc()
			return BeginResult{Outcome: Conflict}, true, nil
		}
		if entry.State == model.IdemCompleted {
			metrics.IdempotencyReplays.Inc()
			return BeginResult{Outcome: Replay, AuditID: entry.AuditID, Response: entry.Response}, true, nil
		}
	}
}

// Finish 把预占迁移为 completed 并缓存响应，状态机只允许这一个方向
func (g *IdempotencyGuard) Finish(ctx context.Context, tenantID, key, auditID string, response []byte) error {
	expiresAt := time.Now().UTC().Add(g.retention)
	return g.store.Complete(ctx, tenantID, key, auditID, response, expiresAt)
}

// Release 放弃预占（分析失败或审计写入失败时），让后续重试可以重新执行
func (g *IdempotencyGuard) Release(ctx context.Context, tenantID, key string) error {
	return g.store.Release(ctx, tenantID, key)
}
