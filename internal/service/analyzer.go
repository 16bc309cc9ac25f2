package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/contractguard/contractguard/internal/pkg/apperrors"
	"github.com/contractguard/contractguard/internal/pkg/logger"
	"github.com/contractguard/contractguard/internal/pkg/metrics"
)

// Analyzer 把一次合规查询串成完整流水线：
// IdempotencyGuard → RuleEngine ∥ SemanticRetriever → RiskAssessor → AuditLedger。
// 顺序契约：审计提交成功之前不向调用方返回裁决。
type Analyzer struct {
	clauses   ClauseStore
	engine    *RuleEngine
	retriever *SemanticRetriever
	assessor  *RiskAssessor
	guard     *IdempotencyGuard
	ledger    *AuditLedger
}

func NewAnalyzer(clauses ClauseStore, engine *RuleEngine, retriever *SemanticRetriever, assessor *RiskAssessor, guard *IdempotencyGuard, ledger *AuditLedger) *Analyzer {
	return &Analyzer{
		clauses:   clauses,
		engine:    engine,
		retriever: retriever,
		assessor:  assessor,
		guard:     guard,
		ledger:    ledger,
	}
}

// AnalyzeInput 一次查询的全部输入。RawRequest 是请求体原文，
// 用于幂等指纹和审计留痕的字节级保真。
type AnalyzeInput struct {
	TenantID       string
	ActorID        string
	ContractID     string
	TraceID        string
	SourceIP       string
	IdempotencyKey string
	Activity       model.ProposedActivity
	RawRequest     json.RawMessage
}

// AnalyzeResult 裁决 + 审计 ID + 是否幂等回放
type AnalyzeResult struct {
	Response *model.CheckResponse
	AuditID  string
	Replay   bool
}

// Fingerprint 请求体的 sha256 十六进制指纹
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (a *Analyzer) Analyze(ctx context.Context, in AnalyzeInput) (*AnalyzeResult, error) {
	// 1. 幂等检查/预占。没有 key 的请求按新请求处理，不做去重。
	guarded := in.IdempotencyKey != ""
	if guarded {
		fingerprint := Fingerprint(in.RawRequest)
		begin, err := a.guard.Begin(ctx, in.TenantID, in.IdempotencyKey, fingerprint)
		if err != nil {
			return nil, apperrors.Wrap(err)
		}
		switch begin.Outcome {
		case Conflict:
			return nil, apperrors.NewConflict("idempotency key reused with a different payload")
		case Replay:
			var cached model.CheckResponse
			if err := json.Unmarshal(begin.Response, &cached); err != nil {
				return nil, apperrors.New(apperrors.ErrInternal, "cached response corrupted", err)
			}
			return &AnalyzeResult{Response: &cached, AuditID: begin.AuditID, Replay: true}, nil
		}
	}

	result, err := a.execute(ctx, in, guarded)
	if err != nil && guarded {
		// 预占必须释放，否则同 key 重试会卡到预占 TTL 过期
		if relErr := a.guard.Release(context.WithoutCancel(ctx), in.TenantID, in.IdempotencyKey); relErr != nil {
			logger.Error("failed to release idempotency reservation",
				"tenant_id", in.TenantID, "error", relErr.Error())
		}
	}
	return result, err
}

func (a *Analyzer) execute(ctx context.Context, in AnalyzeInput, guarded bool) (*AnalyzeResult, error) {
	// 2. 取条款
	clauses, err := a.clauses.GetClauses(ctx, in.ContractID)
	if err != nil {
		if errors.Is(err, ErrContractNotFound) {
			return nil, apperrors.New(apperrors.ErrContractNotFound,
				fmt.Sprintf("contract %s not found", in.ContractID), err)
		}
		return nil, apperrors.Wrap(err)
	}

	// 3. 结构化规则与语义检索并发执行
	var (
		wg        sync.WaitGroup
		semantic  []model.TriggeredClause
		cases     []model.PrecedentCase
		degraded  bool
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		semantic, cases, degraded = a.retriever.Retrieve(ctx, in.Activity.Description, in.ContractID)
	}()
	structural := a.engine.Evaluate(clauses, &in.Activity)
	wg.Wait()

	// 4. 合成裁决
	verdict := a.assessor.Assess(structural, semantic)

	now := time.Now().UTC()
	resp := &model.CheckResponse{
		Verdict:          verdict.Verdict,
		RiskLevel:        verdict.RiskLevel,
		TriggeredClauses: verdict.TriggeredClauses,
		RequiredActions:  verdict.RequiredActions,
		ApprovalWorkflow: verdict.ApprovalWorkflow,
		PrecedentCases:   cases,
		Timestamp:        now.Format(time.RFC3339),
		Degraded:         degraded,
	}

	// 5. 提交审计。合规裁决必须可审计：写入失败则整个请求失败，
	// 调用方带同一个 idempotency key 退避重试是安全的。
	responseJSON, err := json.Marshal(resp)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	auditID, err := a.ledger.Append(ctx, &model.AuditRecord{
		TenantID:        in.TenantID,
		ActorID:         in.ActorID,
		ContractID:      in.ContractID,
		TraceID:         in.TraceID,
		SourceIP:        in.SourceIP,
		QueryPayload:    in.RawRequest,
		ResponsePayload: responseJSON,
		Verdict:         verdict.Verdict,
		RiskLevel:       verdict.RiskLevel,
		CreatedAt:       now,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrAuditPersistFailure,
			"compliance verdict could not be audited", err)
	}
	resp.AuditID = auditID

	// 6. 幂等条目定稿。失败不回滚审计——记录已经存在，重放只是拿不到缓存。
	if guarded {
		finalJSON, _ := json.Marshal(resp)
		if err := a.guard.Finish(context.WithoutCancel(ctx), in.TenantID, in.IdempotencyKey, auditID, finalJSON); err != nil {
			logger.Error("failed to finalize idempotency entry",
				"tenant_id", in.TenantID, "audit_id", auditID, "error", err.Error())
		}
	}

	metrics.ChecksTotal.WithLabelValues(string(verdict.Verdict)).Inc()
	return &AnalyzeResult{Response: resp, AuditID: auditID}, nil
}
