package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// DateSpan 是一个日期点或闭区间。JSON 接受三种写法:
//
//	"2026-05-01"                     单日
//	"2026-05-01/2026-05-08"          区间
//	{"start":"...","end":"..."}      对象形式
type DateSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (d *DateSpan) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		parts := strings.SplitN(raw, "/", 2)
		start, err := time.ParseInLocation(dateLayout, parts[0], time.UTC)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", parts[0], err)
		}
		end := start
		if len(parts) == 2 {
			end, err = time.ParseInLocation(dateLayout, parts[1], time.UTC)
			if err != nil {
				return fmt.Errorf("invalid date %q: %w", parts[1], err)
			}
		}
		if end.Before(start) {
			return fmt.Errorf("date range %q ends before it starts", raw)
		}
		d.Start, d.End = start, end
		return nil
	}

	type alias DateSpan
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.End.IsZero() {
		obj.End = obj.Start
	}
	if obj.End.Before(obj.Start) {
		return fmt.Errorf("date range ends before it starts")
	}
	*d = DateSpan(obj)
	return nil
}

// Overlaps 判断两个闭区间是否相交
func (d DateSpan) Overlaps(o DateSpan) bool {
	return !d.Start.After(o.End) && !o.Start.After(d.End)
}

// ProposedActivity 是待评估的现实活动。除 Type 外所有字段可选，
// 缺失的字段语义是"未知"而非"空"：零值 nil/"" 表示调用方没有提供该信息。
type ProposedActivity struct {
	Type         string           `json:"type" binding:"required"`
	Location     string           `json:"location,omitempty"`
	Dates        []DateSpan       `json:"dates,omitempty"`
	MarketingAs  string           `json:"marketing_as,omitempty"`
	Sponsors     []string         `json:"sponsors,omitempty"`
	Compensation *decimal.Decimal `json:"compensation,omitempty"`
	Description  string           `json:"description,omitempty"`
}
