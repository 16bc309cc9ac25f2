package model

// CheckRequest represents the incoming JSON body
type CheckRequest struct {
	ContractID       string           `json:"contract_id" binding:"required"`
	ProposedActivity ProposedActivity `json:"proposed_activity" binding:"required"`
}

// CheckResponse 对外响应。字段名是兼容性契约，不可改动。
// approval_workflow 无审批流程时序列化为 null。
type CheckResponse struct {
	Verdict          VerdictCode       `json:"verdict"`
	RiskLevel        RiskLevel         `json:"risk_level"`
	TriggeredClauses []TriggeredClause `json:"triggered_clauses"`
	RequiredActions  []string          `json:"required_actions"`
	ApprovalWorkflow *ApprovalWorkflow `json:"approval_workflow"`
	PrecedentCases   []PrecedentCase   `json:"precedent_cases"`
	AuditID          string            `json:"audit_id"`
	Timestamp        string            `json:"timestamp"` // ISO-8601, UTC
	Degraded         bool              `json:"degraded,omitempty"`
}

// PublishPrecedentRequest 管理端录入先例的请求体。
// 先例跨合同共享，contract_id 仅作来源标注。
type PublishPrecedentRequest struct {
	CaseID     string `json:"case_id" binding:"required"`
	Summary    string `json:"summary" binding:"required"`
	ContractID string `json:"contract_id,omitempty"`
}

// PublishClauseRequest 管理端发布条款的请求体
type PublishClauseRequest struct {
	ClauseID      string     `json:"clause_id" binding:"required"`
	Text          string     `json:"text" binding:"required"`
	Severity      Severity   `json:"severity" binding:"required,oneof=low medium high critical"`
	ViolationType string     `json:"violation_type" binding:"required"`
	Trigger       *Predicate `json:"trigger,omitempty"`
}
