package model

import (
	"github.com/shopspring/decimal"
)

// Severity 条款严重等级
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank 用于比较严重等级，数值越大越严重
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// RiskLevel 是 verdict 层面的风险摘要，等于触发条款的最高 Severity
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (s Severity) RiskLevel() RiskLevel {
	switch s {
	case SeverityLow:
		return RiskLow
	case SeverityMedium:
		return RiskMedium
	case SeverityHigh:
		return RiskHigh
	case SeverityCritical:
		return RiskCritical
	default:
		return RiskNone
	}
}

// PredicateKind 是触发谓词的类型标签
type PredicateKind string

const (
	// 布尔组合子
	PredAll PredicateKind = "all"
	PredAny PredicateKind = "any"
	PredNot PredicateKind = "not"

	// 叶子谓词
	PredActivityTypeIn    PredicateKind = "activity_type_in"
	PredDateOverlap       PredicateKind = "date_overlap"
	PredLocationIs        PredicateKind = "location_is"
	PredCompensationAbove PredicateKind = "compensation_above"
	PredSponsorMatch      PredicateKind = "sponsor_match"
	PredMarketingAsIn     PredicateKind = "marketing_as_in"
)

// Predicate 是条款触发条件的表达式树。
// 叶子谓词引用活动字段；字段缺失时求值结果是 unknown（弃权），不是 false。
type Predicate struct {
	Kind PredicateKind `json:"kind"`

	// all / any 组合子的子节点
	Children []Predicate `json:"children,omitempty"`
	// not 组合子的子节点
	Child *Predicate `json:"child,omitempty"`

	// activity_type_in / location_is / marketing_as_in / sponsor_match 的候选集合
	Values []string `json:"values,omitempty"`
	// sponsor_match 可以引用一个命名排除清单而不是内联 Values
	List string `json:"list,omitempty"`

	// date_overlap 的检查窗口
	Window *DateSpan `json:"window,omitempty"`

	// compensation_above 的阈值
	Threshold *decimal.Decimal `json:"threshold,omitempty"`
}

// Clause 是合同中的一条规则：机器可评估的触发条件 + 人类可读文本。
// 发布后不可变；修订即新的 clause_id。
type Clause struct {
	ClauseID      string     `json:"clause_id"`
	ContractID    string     `json:"contract_id"`
	Text          string     `json:"text"`
	Severity      Severity   `json:"severity"`
	ViolationType string     `json:"violation_type"`
	Trigger       *Predicate `json:"trigger,omitempty"` // nil 表示纯语义条款，不做结构化匹配
}
