package service

import (
	"testing"
	"time"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/shopspring/decimal"
)

func span(start, end string) model.DateSpan {
	s, _ := time.ParseInLocation("2006-01-02", start, time.UTC)
	e, _ := time.ParseInLocation("2006-01-02", end, time.UTC)
	return model.DateSpan{Start: s, End: e}
}

func clauseWith(id string, sev model.Severity, trigger *model.Predicate) model.Clause {
	return model.Clause{
		ClauseID:      id,
		ContractID:    "c-1",
		Text:          "clause " + id,
		Severity:      sev,
		ViolationType: "exclusivity",
		Trigger:       trigger,
	}
}

func TestEvaluateSponsorMatch(t *testing.T) {
	engine := NewRuleEngine(nil)
	clauses := []model.Clause{
		clauseWith("cl-1", model.SeverityCritical, &model.Predicate{
			Kind:   model.PredSponsorMatch,
			Values: []string{"CompetitorX"},
		}),
	}

	hits := engine.Evaluate(clauses, &model.ProposedActivity{
		Type:     "endorsement",
		Sponsors: []string{"competitorx"}, // 大小写不敏感
	})
	if len(hits) != 1 || hits[0].ClauseID != "cl-1" {
		t.Fatalf("expected cl-1 hit, got %+v", hits)
	}
	if hits[0].MatchKind != model.MatchStructural {
		t.Fatalf("structural hit mislabeled: %s", hits[0].MatchKind)
	}

	hits = engine.Evaluate(clauses, &model.ProposedActivity{
		Type:     "endorsement",
		Sponsors: []string{"FriendlyBrand"},
	})
	if len(hits) != 0 {
		t.Fatalf("non-matching sponsor triggered: %+v", hits)
	}
}

func TestEvaluateAbstainsOnAbsentFields(t *testing.T) {
	engine := NewRuleEngine(nil)
	threshold := decimal.NewFromInt(10000)
	window := span("2026-05-01", "2026-05-31")
	clauses := []model.Clause{
		clauseWith("sponsors", model.SeverityCritical, &model.Predicate{Kind: model.PredSponsorMatch, Values: []string{"CompetitorX"}}),
		clauseWith("location", model.SeverityHigh, &model.Predicate{Kind: model.PredLocationIs, Values: []string{"Las Vegas"}}),
		clauseWith("dates", model.SeverityHigh, &model.Predicate{Kind: model.PredDateOverlap, Window: &window}),
		clauseWith("comp", model.SeverityMedium, &model.Predicate{Kind: model.PredCompensationAbove, Threshold: &threshold}),
		clauseWith("marketing", model.SeverityMedium, &model.Predicate{Kind: model.PredMarketingAsIn, Values: []string{"official partner"}}),
	}

	// 只有 type：所有引用缺失字段的条款都必须弃权
	hits := engine.Evaluate(clauses, &model.ProposedActivity{Type: "appearance"})
	if len(hits) != 0 {
		t.Fatalf("absent fields must abstain, got %+v", hits)
	}
}

func TestEvaluateEmptySponsorsIsKnown(t *testing.T) {
	engine := NewRuleEngine(nil)
	clauses := []model.Clause{
		clauseWith("cl-1", model.SeverityCritical, &model.Predicate{Kind: model.PredSponsorMatch, Values: []string{"CompetitorX"}}),
	}
	// 空数组是确定信息（没有赞助商），谓词求值为 false，不是弃权
	hits := engine.Evaluate(clauses, &model.ProposedActivity{Type: "endorsement", Sponsors: []string{}})
	if len(hits) != 0 {
		t.Fatalf("empty sponsors should evaluate false, got %+v", hits)
	}
}

func TestEvaluateNamedExclusionList(t *testing.T) {
	engine := NewRuleEngine(map[string][]string{
		"competitor_brands": {"CompetitorX", "CompetitorY"},
	})
	clauses := []model.Clause{
		clauseWith("cl-1", model.SeverityCritical, &model.Predicate{Kind: model.PredSponsorMatch, List: "competitor_brands"}),
	}
	hits := engine.Evaluate(clauses, &model.ProposedActivity{Type: "endorsement", Sponsors: []string{"CompetitorY"}})
	if len(hits) != 1 {
		t.Fatalf("named list lookup failed: %+v", hits)
	}
}

func TestEvaluateDateOverlap(t *testing.T) {
	engine := NewRuleEngine(nil)
	window := span("2026-05-10", "2026-05-20")
	clauses := []model.Clause{
		clauseWith("cl-1", model.SeverityHigh, &model.Predicate{Kind: model.PredDateOverlap, Window: &window}),
	}

	hits := engine.Evaluate(clauses, &model.ProposedActivity{
		Type:  "appearance",
		Dates: []model.DateSpan{span("2026-05-20", "2026-05-25")},
	})
	if len(hits) != 1 {
		t.Fatalf("touching window should trigger, got %+v", hits)
	}

	hits = engine.Evaluate(clauses, &model.ProposedActivity{
		Type:  "appearance",
		Dates: []model.DateSpan{span("2026-06-01", "2026-06-05")},
	})
	if len(hits) != 0 {
		t.Fatalf("disjoint dates triggered: %+v", hits)
	}
}

func TestEvaluateLocationContainment(t *testing.T) {
	engine := NewRuleEngine(nil)
	clauses := []model.Clause{
		clauseWith("cl-1", model.SeverityHigh, &model.Predicate{Kind: model.PredLocationIs, Values: []string{"Las Vegas"}}),
	}
	hits := engine.Evaluate(clauses, &model.ProposedActivity{Type: "appearance", Location: "Las Vegas, NV"})
	if len(hits) != 1 {
		t.Fatalf("containment match failed: %+v", hits)
	}
}

func TestEvaluateCompensationAbove(t *testing.T) {
	engine := NewRuleEngine(nil)
	threshold := decimal.NewFromInt(10000)
	clauses := []model.Clause{
		clauseWith("cl-1", model.SeverityMedium, &model.Predicate{Kind: model.PredCompensationAbove, Threshold: &threshold}),
	}

	exactly := decimal.NewFromInt(10000)
	hits := engine.Evaluate(clauses, &model.ProposedActivity{Type: "endorsement", Compensation: &exactly})
	if len(hits) != 0 {
		t.Fatalf("threshold is strict greater-than, got %+v", hits)
	}

	above := decimal.NewFromInt(10001)
	hits = engine.Evaluate(clauses, &model.ProposedActivity{Type: "endorsement", Compensation: &above})
	if len(hits) != 1 {
		t.Fatalf("above threshold should trigger, got %+v", hits)
	}
}

func TestEvaluateKleeneCombinators(t *testing.T) {
	engine := NewRuleEngine(nil)

	all := &model.Predicate{Kind: model.PredAll, Children: []model.Predicate{
		{Kind: model.PredActivityTypeIn, Values: []string{"endorsement"}},
		{Kind: model.PredLocationIs, Values: []string{"Las Vegas"}}, // location 缺失 → unknown
	}}
	anyOf := &model.Predicate{Kind: model.PredAny, Children: []model.Predicate{
		{Kind: model.PredActivityTypeIn, Values: []string{"endorsement"}}, // true
		{Kind: model.PredLocationIs, Values: []string{"Las Vegas"}},       // unknown
	}}
	clauses := []model.Clause{
		clauseWith("all", model.SeverityHigh, all),
		clauseWith("any", model.SeverityHigh, anyOf),
	}

	act := &model.ProposedActivity{Type: "endorsement"}
	hits := engine.Evaluate(clauses, act)
	// all: true ∧ unknown = unknown → 不触发；any: true ∨ unknown = true → 触发
	if len(hits) != 1 || hits[0].ClauseID != "any" {
		t.Fatalf("Kleene combinator semantics broken: %+v", hits)
	}
}

func TestEvaluateNotPropagatesUnknown(t *testing.T) {
	engine := NewRuleEngine(nil)
	not := &model.Predicate{Kind: model.PredNot, Child: &model.Predicate{
		Kind: model.PredLocationIs, Values: []string{"Las Vegas"},
	}}
	clauses := []model.Clause{clauseWith("cl-1", model.SeverityHigh, not)}

	// ¬unknown = unknown，不能因为"不知道地点"就认定不在拉斯维加斯
	hits := engine.Evaluate(clauses, &model.ProposedActivity{Type: "appearance"})
	if len(hits) != 0 {
		t.Fatalf("not(unknown) must abstain, got %+v", hits)
	}

	hits = engine.Evaluate(clauses, &model.ProposedActivity{Type: "appearance", Location: "Miami"})
	if len(hits) != 1 {
		t.Fatalf("not(false) should be true, got %+v", hits)
	}
}

func TestEvaluateSkipsNilTriggers(t *testing.T) {
	engine := NewRuleEngine(nil)
	clauses := []model.Clause{clauseWith("semantic-only", model.SeverityCritical, nil)}
	hits := engine.Evaluate(clauses, &model.ProposedActivity{Type: "endorsement"})
	if len(hits) != 0 {
		t.Fatalf("clause without trigger must never structurally match: %+v", hits)
	}
}

func TestEvaluateUnknownPredicateKind(t *testing.T) {
	engine := NewRuleEngine(nil)
	clauses := []model.Clause{
		clauseWith("cl-1", model.SeverityCritical, &model.Predicate{Kind: "teleport_check"}),
	}
	hits := engine.Evaluate(clauses, &model.ProposedActivity{Type: "endorsement"})
	if len(hits) != 0 {
		t.Fatalf("unknown predicate kind must abstain, got %+v", hits)
	}
}
