package model

import "time"

// VerdictCode 合规结论
type VerdictCode string

const (
	VerdictApproved       VerdictCode = "approved"
	VerdictDenied         VerdictCode = "denied"
	VerdictReviewRequired VerdictCode = "review_required"
)

// MatchKind 标记条款是结构化规则命中还是语义检索命中
type MatchKind string

const (
	MatchStructural MatchKind = "structural"
	MatchSemantic   MatchKind = "semantic"
)

// TriggeredClause 一条被触发的条款
type TriggeredClause struct {
	ClauseID      string    `json:"clause_id"`
	ClauseText    string    `json:"clause_text"`
	ViolationType string    `json:"violation_type"`
	Severity      Severity  `json:"severity"`
	MatchKind     MatchKind `json:"match_kind,omitempty"`
	// 语义命中的余弦相似度；结构化命中为 0
	Confidence float64 `json:"confidence,omitempty"`
}

// ApprovalWorkflow 人工审批流程：审批人角色 + SLA 截止时间
type ApprovalWorkflow struct {
	Approvers []string  `json:"approvers"`
	SLAHours  int       `json:"sla_hours"`
	Deadline  time.Time `json:"deadline"`
}

// PrecedentCase 语义检索返回的相似先例，用于解释性展示，不参与裁决
type PrecedentCase struct {
	CaseID     string  `json:"case_id"`
	Similarity float64 `json:"similarity"`
	Summary    string  `json:"summary,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// ComplianceVerdict 完整裁决。RiskLevel 恒等于 TriggeredClauses 的最高
// Severity（为空时 none），与 Verdict 独立计算，二者可以分叉。
type ComplianceVerdict struct {
	Verdict          VerdictCode       `json:"verdict"`
	RiskLevel        RiskLevel         `json:"risk_level"`
	TriggeredClauses []TriggeredClause `json:"triggered_clauses"`
	RequiredActions  []string          `json:"required_actions"`
	ApprovalWorkflow *ApprovalWorkflow `json:"approval_workflow,omitempty"`
}

// MaxSeverity 计算触发条款集合的风险等级
func MaxSeverity(clauses []TriggeredClause) RiskLevel {
	best := RiskNone
	rank := 0
	for _, tc := range clauses {
		if r := tc.Severity.Rank(); r > rank {
			rank = r
			best = tc.Severity.RiskLevel()
		}
	}
	return best
}
