package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// GenesisHash 每个租户链上第一条记录的 prev_hash
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditRecord 代表一次合规查询的不可变审计记录。
// 提交后任何字段都不再修改；RecordHash 把记录链接到租户分区内的前驱。
type AuditRecord struct {
	AuditID    string `json:"audit_id"`
	TenantID   string `json:"tenant_id"`
	ActorID    string `json:"actor_id"`
	ContractID string `json:"contract_id"`
	TraceID    string `json:"trace_id"`
	SourceIP   string `json:"source_ip,omitempty"`

	// 提交时的请求/响应原文，字节级保真
	QueryPayload    json.RawMessage `json:"query_payload"`
	ResponsePayload json.RawMessage `json:"response_payload"`

	Verdict   VerdictCode `json:"verdict"`
	RiskLevel RiskLevel   `json:"risk_level"`
	CreatedAt time.Time   `json:"created_at"`

	PrevHash   string `json:"prev_hash"`
	RecordHash string `json:"record_hash"`

	// 租户分区内的链序号，由存储层分配
	Seq int64 `json:"seq"`
}

// auditRecordCanon 是哈希输入的规范形式。全部强类型字段、固定声明顺序，
// 保证 json.Marshal 输出可复现；不含 RecordHash 本身。
type auditRecordCanon struct {
	AuditID         string          `json:"audit_id"`
	TenantID        string          `json:"tenant_id"`
	ActorID         string          `json:"actor_id"`
	ContractID      string          `json:"contract_id"`
	TraceID         string          `json:"trace_id"`
	SourceIP        string          `json:"source_ip"`
	QueryPayload    json.RawMessage `json:"query_payload"`
	ResponsePayload json.RawMessage `json:"response_payload"`
	Verdict         VerdictCode     `json:"verdict"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	CreatedAt       string          `json:"created_at"`
	Seq             int64           `json:"seq"`
}

// CanonicalBytes 返回参与哈希的规范序列化
func (r *AuditRecord) CanonicalBytes() []byte {
	canon := auditRecordCanon{
		AuditID:         r.AuditID,
		TenantID:        r.TenantID,
		ActorID:         r.ActorID,
		ContractID:      r.ContractID,
		TraceID:         r.TraceID,
		SourceIP:        r.SourceIP,
		QueryPayload:    r.QueryPayload,
		ResponsePayload: r.ResponsePayload,
		Verdict:         r.Verdict,
		RiskLevel:       r.RiskLevel,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339Nano),
		Seq:             r.Seq,
	}
	data, _ := json.Marshal(canon)
	return data
}

// ComputeHash 计算 record_hash = hex(sha256(prev_hash ‖ canonical))
func (r *AuditRecord) ComputeHash() string {
	h := sha256.New()
	h.Write([]byte(r.PrevHash))
	h.Write(r.CanonicalBytes())
	return hex.EncodeToString(h.Sum(nil))
}

// IdempotencyState 幂等条目状态，只允许 reserved → completed 单向迁移
type IdempotencyState string

const (
	IdemReserved  IdempotencyState = "reserved"
	IdemCompleted IdempotencyState = "completed"
)

// IdempotencyEntry 是 (tenant_id, idempotency_key) 维度的去重条目
type IdempotencyEntry struct {
	TenantID    string           `json:"tenant_id"`
	Key         string           `json:"key"`
	State       IdempotencyState `json:"state"`
	Fingerprint string           `json:"fingerprint"` // 请求体哈希，检测同 key 不同 payload
	AuditID     string           `json:"audit_id,omitempty"`
	Response    []byte           `json:"response,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

// Expired 判断条目在 now 时刻是否已过期，过期的 key 可以当作全新请求复用
func (e *IdempotencyEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
