package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/pkg/logger"
	"github.com/contractguard/contractguard/internal/pkg/metrics"
	"github.com/google/uuid"
)

var (
	// ErrAuditNotFound 审计记录不存在
	ErrAuditNotFound = errors.New("audit record not found")
	// ErrChainConflict 链尾 CAS 失败：并发写者抢先推进了链尾
	ErrChainConflict = errors.New("audit chain tail moved")
)

// AuditStore 审计持久化原语。Append 对租户链尾做 compare-and-append：
// expectPrev 不等于当前链尾时必须返回 ErrChainConflict 且不落任何数据。
type AuditStore interface {
	Head(ctx context.Context, tenantID string) (hash string, seq int64, err error)
	Append(ctx context.Context, rec *model.AuditRecord, expectPrev string) error
	Get(ctx context.Context, auditID string) (*model.AuditRecord, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*model.AuditRecord, error)
	Chain(ctx context.Context, tenantID string) ([]*model.AuditRecord, error)
}

// AuditLedger 哈希链审计账本。每租户一条链，单逻辑写者通过
// 乐观 CAS + 有界重试保证；跨租户完全并行。
type AuditLedger struct {
	store   AuditStore
	retries int

	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
	buffer int
}

type subscriber struct {
	tenantID string
	ch       chan *model.AuditRecord
}

func NewAuditLedger(store AuditStore, cfg config.AuditConfig) *AuditLedger {
	retries := cfg.AppendRetries
	if retries <= 0 {
		retries = 5
	}
	buffer := cfg.StreamBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &AuditLedger{
		store:   store,
		retries: retries,
		subs:    make(map[int]subscriber),
		buffer:  buffer,
	}
}

// Append 计算哈希并提交记录，返回 audit_id。
// 字段在这里最终定型：audit_id、seq、prev_hash、record_hash 均由账本分配。
func (l *AuditLedger) Append(ctx context.Context, rec *model.AuditRecord) (string, error) {
	if rec.AuditID == "" {
		rec.AuditID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var lastErr error
	for attempt := 0; attempt < l.retries; attempt++ {
		prev, seq, err := l.store.Head(ctx, rec.TenantID)
		if err != nil {
			lastErr = err
			continue
		}
		if prev == "" {
			prev = model.GenesisHash
		}
		rec.PrevHash = prev
		rec.Seq = seq + 1
		rec.RecordHash = rec.ComputeHash()

		err = l.store.Append(ctx, rec, prev)
		if err == nil {
			metrics.AuditAppends.WithLabelValues("ok").Inc()
			l.publish(rec)
			return rec.AuditID, nil
		}
		lastErr = err
		if !errors.Is(err, ErrChainConflict) {
			// 瞬态存储错误也值得再试一次，但不重算 seq 之外别无副作用
			continue
		}
	}
	metrics.AuditAppends.WithLabelValues("failed").Inc()
	return "", fmt.Errorf("audit append failed after %d attempts: %w", l.retries, lastErr)
}

func (l *AuditLedger) Get(ctx context.Context, auditID string) (*model.AuditRecord, error) {
	return l.store.Get(ctx, auditID)
}

func (l *AuditLedger) List(ctx context.Context, tenantID string, limit int) ([]*model.AuditRecord, error) {
	return l.store.ListByTenant(ctx, tenantID, limit)
}

// VerifyChain 重放租户全链并重算哈希。发现篡改只报告不修复：
// 这是运维告警，不是请求级错误。
func (l *AuditLedger) VerifyChain(ctx context.Context, tenantID string) (bool, error) {
	records, err := l.store.Chain(ctx, tenantID)
	if err != nil {
		return false, err
	}
	prev := model.GenesisHash
	for _, rec := range records {
		if rec.PrevHash != prev {
			l.reportCorruption(tenantID, rec)
			return false, nil
		}
		if rec.ComputeHash() != rec.RecordHash {
			l.reportCorruption(tenantID, rec)
			return false, nil
		}
		prev = rec.RecordHash
	}
	return true, nil
}

func (l *AuditLedger) reportCorruption(tenantID string, rec *model.AuditRecord) {
	metrics.ChainVerifyFailures.Inc()
	logger.Error("audit chain corruption detected",
		"tenant_id", tenantID,
		"audit_id", rec.AuditID,
		"seq", rec.Seq,
	)
}

// Subscribe 订阅租户新提交的审计记录（websocket 推送用）。
// 返回取消函数；慢消费者会丢消息而不是阻塞提交路径。
func (l *AuditLedger) Subscribe(tenantID string) (<-chan *model.AuditRecord, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	ch := make(chan *model.AuditRecord, l.buffer)
	l.subs[id] = subscriber{tenantID: tenantID, ch: ch}
	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub.ch)
		}
	}
}

func (l *AuditLedger) publish(rec *model.AuditRecord) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, sub := range l.subs {
		if sub.tenantID != "" && sub.tenantID != rec.TenantID {
			continue
		}
		select {
		case sub.ch <- rec:
		default:
			// 缓冲区满，丢弃推送以保护提交路径
		}
	}
}
