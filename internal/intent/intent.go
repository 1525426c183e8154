package intent

import (
	"strings"

	"WealthPilot/internal/errors"
)

// Label 是封闭集合中的一个意图标签。复合意图用 '+' 连接基础标签。
type Label string

const (
	// 只读意图。
	LabelPerformance    Label = "performance"
	LabelActivity       Label = "activity"
	LabelCategorize     Label = "categorize"
	LabelCompliance     Label = "compliance"
	LabelTax            Label = "tax"
	LabelMarket         Label = "market"
	LabelMarketOverview Label = "market_overview"
	LabelCity           Label = "city"
	LabelFollowup       Label = "context_followup"

	// 写意图,进入两阶段确认。
	LabelBuy      Label = "buy"
	LabelSell     Label = "sell"
	LabelDividend Label = "dividend"
	LabelCash     Label = "cash"

	// 确认回合与拒绝。
	LabelConfirm Label = "confirm"
	LabelCancel  Label = "cancel"
	LabelRefuse  Label = "refuse_destructive"

	// 复合意图是一等标签,不是事后拼接。
	LabelPerformanceMarket  Label = "performance+market"
	LabelActivityMarket     Label = "activity+market"
	LabelActivityCompliance Label = "activity+compliance"
	LabelComplianceTax      Label = "compliance+tax"
	LabelFullPosition       Label = "performance+compliance+activity"
)

// DefaultLabel 是分类失败时的安全缺省:只读、低风险。
const DefaultLabel = LabelPerformance

// CodeClassificationFallback 记录规则未命中、使用了模型兜底的情况。
const CodeClassificationFallback errors.Code = "CLASSIFICATION_FALLBACK"

func init() {
	errors.Register(CodeClassificationFallback, errors.Attributes{
		Message:   "rule table missed, model fallback used",
		Severity:  errors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// closedSet 是模型兜底允许返回的全部标签。
var closedSet = map[Label]struct{}{
	LabelPerformance: {}, LabelActivity: {}, LabelCategorize: {},
	LabelCompliance: {}, LabelTax: {}, LabelMarket: {},
	LabelMarketOverview: {}, LabelCity: {}, LabelFollowup: {},
	LabelBuy: {}, LabelSell: {}, LabelDividend: {}, LabelCash: {},
	LabelConfirm: {}, LabelCancel: {}, LabelRefuse: {},
	LabelPerformanceMarket: {}, LabelActivityMarket: {},
	LabelActivityCompliance: {}, LabelComplianceTax: {}, LabelFullPosition: {},
}

// Valid 判断标签是否属于封闭集合。
func Valid(label Label) bool {
	_, ok := closedSet[label]
	return ok
}

// Parts 拆出复合意图的基础标签,顺序保持声明顺序。
func (l Label) Parts() []Label {
	pieces := strings.Split(string(l), "+")
	parts := make([]Label, 0, len(pieces))
	for _, p := range pieces {
		parts = append(parts, Label(p))
	}
	return parts
}

// IsWrite 判断是否写意图。
func (l Label) IsWrite() bool {
	switch l {
	case LabelBuy, LabelSell, LabelDividend, LabelCash:
		return true
	}
	return false
}

// Classification 是一次分类的结果。FallbackUsed 表示走了模型兜底。
type Classification struct {
	Label        Label
	FallbackUsed bool
}
