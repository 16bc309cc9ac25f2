package service

import (
	"strings"

	"github.com/contractguard/contractguard/internal/model"
)

// 三值逻辑求值结果。引用了活动缺失字段的谓词返回 condUnknown（弃权）：
// 未知信息绝不能产生违规，也绝不能产生放行。
type triState int

const (
	condFalse triState = iota
	condTrue
	condUnknown
)

// RuleEngine 对条款的结构化触发谓词做纯内存求值。
// 无共享可变状态，可以跨请求并发调用。
type RuleEngine struct {
	lists map[string][]string // 命名排除清单
}

func NewRuleEngine(lists map[string][]string) *RuleEngine {
	if lists == nil {
		lists = map[string][]string{}
	}
	return &RuleEngine{lists: lists}
}

// Evaluate 返回所有结构化命中的条款，不止最严重的一条。
// 求值是全函数：任何谓词树都会终止，绝不触达外部服务。
func (e *RuleEngine) Evaluate(clauses []model.Clause, act *model.ProposedActivity) []model.TriggeredClause {
	hits := make([]model.TriggeredClause, 0)
	if act == nil {
		return hits
	}
	for _, clause := range clauses {
		if clause.Trigger == nil {
			continue
		}
		if e.eval(clause.Trigger, act) == condTrue {
			hits = append(hits, model.TriggeredClause{
				ClauseID:      clause.ClauseID,
				ClauseText:    clause.Text,
				ViolationType: clause.ViolationType,
				Severity:      clause.Severity,
				MatchKind:     model.MatchStructural,
			})
		}
	}
	return hits
}

func (e *RuleEngine) eval(p *model.Predicate, act *model.ProposedActivity) triState {
	switch p.Kind {
	case model.PredAll:
		return e.evalAll(p.Children, act)
	case model.PredAny:
		return e.evalAny(p.Children, act)
	case model.PredNot:
		if p.Child == nil {
			return condUnknown
		}
		switch e.eval(p.Child, act) {
		case condTrue:
			return condFalse
		case condFalse:
			return condTrue
		default:
			return condUnknown
		}
	case model.PredActivityTypeIn:
		// type 是唯一的必填字段，不存在 unknown 分支
		return boolState(containsFold(p.Values, act.Type))
	case model.PredDateOverlap:
		if act.Dates == nil {
			return condUnknown
		}
		if p.Window == nil {
			return condFalse
		}
		for _, span := range act.Dates {
			if span.Overlaps(*p.Window) {
				return condTrue
			}
		}
		return condFalse
	case model.PredLocationIs:
		if act.Location == "" {
			return condUnknown
		}
		return boolState(locationMatch(p.Values, act.Location))
	case model.PredCompensationAbove:
		if act.Compensation == nil {
			return condUnknown
		}
		if p.Threshold == nil {
			return condFalse
		}
		return boolState(act.Compensation.GreaterThan(*p.Threshold))
	case model.PredSponsorMatch:
		if act.Sponsors == nil {
			return condUnknown
		}
		excluded := p.Values
		if p.List != "" {
			excluded = e.lists[p.List]
		}
		for _, sponsor := range act.Sponsors {
			if containsFold(excluded, sponsor) {
				return condTrue
			}
		}
		return condFalse
	case model.PredMarketingAsIn:
		if act.MarketingAs == "" {
			return condUnknown
		}
		return boolState(containsFold(p.Values, act.MarketingAs))
	default:
		// 未知谓词种类当作弃权处理，而不是让条款误触发
		return condUnknown
	}
}

// Kleene 合取：一个 false 即 false；否则有 unknown 即 unknown
func (e *RuleEngine) evalAll(children []model.Predicate, act *model.ProposedActivity) triState {
	if len(children) == 0 {
		return condUnknown
	}
	result := condTrue
	for i := range children {
		switch e.eval(&children[i], act) {
		case condFalse:
			return condFalse
		case condUnknown:
			result = condUnknown
		}
	}
	return result
}

// Kleene 析取：一个 true 即 true；否则有 unknown 即 unknown
func (e *RuleEngine) evalAny(children []model.Predicate, act *model.ProposedActivity) triState {
	if len(children) == 0 {
		return condUnknown
	}
	result := condFalse
	for i := range children {
		switch e.eval(&children[i], act) {
		case condTrue:
			return condTrue
		case condUnknown:
			result = condUnknown
		}
	}
	return result
}

func boolState(b bool) triState {
	if b {
		return condTrue
	}
	return condFalse
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}

// locationMatch 精确相等或包含匹配，如 "Los Angeles, CA" 命中 "Los Angeles"
func locationMatch(values []string, location string) bool {
	loc := strings.ToLower(strings.TrimSpace(location))
	for _, v := range values {
		want := strings.ToLower(strings.TrimSpace(v))
		if want == "" {
			continue
		}
		if loc == want || strings.Contains(loc, want) {
			return true
		}
	}
	return false
}
