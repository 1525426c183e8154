package router

import (
	"WealthPilot/internal/intent"
	"WealthPilot/internal/session"
)

// PendingWritePolicy 决定写操作待确认期间如何处理无关查询。
type PendingWritePolicy string

const (
	// PolicyRemind 对无关查询只回复提醒,保留待确认写操作。
	PolicyRemind PendingWritePolicy = "remind"
	// PolicyAnswer 正常回答无关查询,同时保留待确认写操作。
	PolicyAnswer PendingWritePolicy = "answer"
)

// Kind 标识路由结果的分支。
type Kind string

const (
	KindCapabilities Kind = "capabilities"
	KindPrepareWrite Kind = "prepare_write"
	KindConfirm      Kind = "confirm"
	KindCancel       Kind = "cancel"
	KindRefuse       Kind = "refuse"
	KindFollowup     Kind = "followup"
	KindRemind       Kind = "remind"
)

// Decision 是路由器对一个意图的处置结论。
type Decision struct {
	Kind                 Kind
	Label                intent.Label
	Capabilities         []string
	RequiresConfirmation bool
	// RemindAfter 在 answer 策略下为真:先回答本次查询,回复末尾附带待确认提醒。
	RemindAfter bool
}

// Config 是路由器的显式策略配置。
type Config struct {
	PendingWritePolicy PendingWritePolicy
}

// Router 把意图标签与会话确认状态映射为处置决定。
// 容量表静态构建,路由本身不做任何外部调用。
type Router struct {
	policy PendingWritePolicy
	table  map[intent.Label][]string
}

// New 创建路由器。未知策略按 remind 处理。
func New(cfg Config) *Router {
	policy := cfg.PendingWritePolicy
	if policy != PolicyAnswer {
		policy = PolicyRemind
	}
	return &Router{policy: policy, table: buildTable()}
}

func buildTable() map[intent.Label][]string {
	table := map[intent.Label][]string{
		intent.LabelPerformance:    {"portfolio_analysis"},
		intent.LabelActivity:       {"transaction_query"},
		intent.LabelCategorize:     {"transaction_categorize"},
		intent.LabelCompliance:     {"compliance_check"},
		intent.LabelTax:            {"tax_estimate"},
		intent.LabelMarket:         {"market_data"},
		intent.LabelMarketOverview: {"market_overview"},
		intent.LabelCity:           {"city_snapshot"},
	}
	// 复合意图的能力按成员标签的声明顺序拼接。
	for _, compound := range []intent.Label{
		intent.LabelPerformanceMarket,
		intent.LabelActivityMarket,
		intent.LabelActivityCompliance,
		intent.LabelComplianceTax,
		intent.LabelFullPosition,
	} {
		var caps []string
		for _, part := range compound.Parts() {
			caps = append(caps, table[part]...)
		}
		table[compound] = caps
	}
	return table
}

// Route 计算处置决定。
// 有未决写操作时 confirm/cancel 优先;新的写意图直接替换旧的未决写操作之前,
// 必须先走 remind 或 answer 策略,绝不静默叠加。
func (r *Router) Route(label intent.Label, sess *session.Session) Decision {
	if sess != nil && sess.AwaitingConfirmation {
		switch label {
		case intent.LabelConfirm:
			return Decision{Kind: KindConfirm, Label: label}
		case intent.LabelCancel:
			return Decision{Kind: KindCancel, Label: label}
		}
		if r.policy == PolicyRemind {
			return Decision{Kind: KindRemind, Label: label}
		}
		decision := r.resolve(label)
		decision.RemindAfter = true
		return decision
	}

	switch label {
	case intent.LabelConfirm:
		return Decision{Kind: KindConfirm, Label: label}
	case intent.LabelCancel:
		return Decision{Kind: KindCancel, Label: label}
	}
	return r.resolve(label)
}

func (r *Router) resolve(label intent.Label) Decision {
	switch {
	case label == intent.LabelRefuse:
		return Decision{Kind: KindRefuse, Label: label}
	case label == intent.LabelFollowup:
		return Decision{Kind: KindFollowup, Label: label}
	case label.IsWrite():
		return Decision{Kind: KindPrepareWrite, Label: label, RequiresConfirmation: true}
	}

	caps, ok := r.table[label]
	if !ok {
		caps = r.table[intent.DefaultLabel]
		label = intent.DefaultLabel
	}
	return Decision{Kind: KindCapabilities, Label: label, Capabilities: caps}
}
