package service

import (
	"sort"
	"time"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/model"
)

// RiskAssessor 把结构化命中与语义命中合成最终裁决。
// 审批人、SLA 和 required_actions 按 violation_type 从配置取，带内置兜底。
type RiskAssessor struct {
	approvers      []string
	slaHours       map[string]int
	defaultSLA     int
	actions        map[string][]string
	defaultActions []string
	now            func() time.Time
}

var builtinActions = map[string][]string{
	"exclusivity":          {"notify legal team"},
	"disclosure":           {"log disclosure", "notify legal team"},
	"compensation":         {"record compensation disclosure"},
	"conflict_of_interest": {"notify legal team", "schedule compliance review"},
}

var builtinSLAHours = map[string]int{
	"exclusivity":          24,
	"conflict_of_interest": 48,
}

func NewRiskAssessor(cfg config.WorkflowConfig) *RiskAssessor {
	a := &RiskAssessor{
		approvers:      cfg.Approvers,
		slaHours:       map[string]int{},
		defaultSLA:     cfg.DefaultSLAHours,
		actions:        map[string][]string{},
		defaultActions: cfg.DefaultActions,
		now:            time.Now,
	}
	if len(a.approvers) == 0 {
		a.approvers = []string{"legal_counsel", "compliance_officer"}
	}
	if a.defaultSLA <= 0 {
		a.defaultSLA = 72
	}
	if len(a.defaultActions) == 0 {
		a.defaultActions = []string{"notify compliance team"}
	}
	for k, v := range builtinSLAHours {
		a.slaHours[k] = v
	}
	for k, v := range cfg.SLAHours {
		a.slaHours[k] = v
	}
	for k, v := range builtinActions {
		a.actions[k] = v
	}
	for k, v := range cfg.Actions {
		a.actions[k] = v
	}
	return a
}

// Assess 决策表自上而下，首个命中生效：
//
//	critical   ⇒ denied
//	high       ⇒ review_required + 审批流
//	medium/low ⇒ approved + required_actions
//	无命中      ⇒ approved, risk none
//
// risk_level 独立于决策路径，恒为最终触发条款的最高严重度。
func (a *RiskAssessor) Assess(structural, semantic []model.TriggeredClause) model.ComplianceVerdict {
	triggered := mergeHits(structural, semantic)

	verdict := model.ComplianceVerdict{
		Verdict:          model.VerdictApproved,
		RiskLevel:        model.MaxSeverity(triggered),
		TriggeredClauses: triggered,
		RequiredActions:  []string{},
	}

	switch {
	case hasSeverity(triggered, model.SeverityCritical):
		verdict.Verdict = model.VerdictDenied
	case hasSeverity(triggered, model.SeverityHigh):
		verdict.Verdict = model.VerdictReviewRequired
		verdict.ApprovalWorkflow = a.workflowFor(worstViolationType(triggered))
	case len(triggered) > 0:
		verdict.RequiredActions = a.actionsFor(triggered)
	}

	return verdict
}

// mergeHits 按 clause_id 去重，结构化命中优先于语义命中（置信度更高）。
// 结果按严重度降序、同级按 clause_id 排序，保证输出可复现。
func mergeHits(structural, semantic []model.TriggeredClause) []model.TriggeredClause {
	merged := make([]model.TriggeredClause, 0, len(structural)+len(semantic))
	seen := make(map[string]bool, len(structural))
	for _, tc := range structural {
		if seen[tc.ClauseID] {
			continue
		}
		seen[tc.ClauseID] = true
		merged = append(merged, tc)
	}
	for _, tc := range semantic {
		if seen[tc.ClauseID] {
			continue
		}
		seen[tc.ClauseID] = true
		merged = append(merged, tc)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		ri, rj := merged[i].Severity.Rank(), merged[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return merged[i].ClauseID < merged[j].ClauseID
	})
	return merged
}

func hasSeverity(clauses []model.TriggeredClause, sev model.Severity) bool {
	for _, tc := range clauses {
		if tc.Severity == sev {
			return true
		}
	}
	return false
}

// worstViolationType 取最严重条款的 violation_type（列表已按严重度排序）
func worstViolationType(clauses []model.TriggeredClause) string {
	if len(clauses) == 0 {
		return ""
	}
	return clauses[0].ViolationType
}

func (a *RiskAssessor) workflowFor(violationType string) *model.ApprovalWorkflow {
	sla := a.defaultSLA
	if h, ok := a.slaHours[violationType]; ok {
		sla = h
	}
	approvers := make([]string, len(a.approvers))
	copy(approvers, a.approvers)
	return &model.ApprovalWorkflow{
		Approvers: approvers,
		SLAHours:  sla,
		Deadline:  a.now().UTC().Add(time.Duration(sla) * time.Hour),
	}
}

func (a *RiskAssessor) actionsFor(clauses []model.TriggeredClause) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]bool)
	for _, tc := range clauses {
		actions, ok := a.actions[tc.ViolationType]
		if !ok {
			actions = a.defaultActions
		}
		for _, action := range actions {
			if seen[action] {
				continue
			}
			seen[action] = true
			out = append(out, action)
		}
	}
	return out
}
