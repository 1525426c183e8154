package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"WealthPilot/internal/llm"
	"WealthPilot/internal/session"
)

// 确认与取消回合的固定口令,仅在存在未决写操作时生效。
var confirmReplies = map[string]struct{}{
	"yes": {}, "y": {}, "confirm": {}, "ok": {}, "yes please": {},
	"sure": {}, "proceed": {},
}

var cancelReplies = map[string]struct{}{
	"no": {}, "n": {}, "cancel": {}, "abort": {}, "stop": {},
	"never mind": {}, "nevermind": {},
}

// 越狱与格式注入的特征短语,命中后走安全缺省路径由模型温和处理。
var adversarialPhrases = []string{
	"ignore your rules", "ignore your instructions", "pretend you have no rules",
	"you are now", "act as if", "forget your guidelines", "disregard your",
	"override your", "bypass your", "tell me to buy", "tell me to sell",
	"force you to", "make you", "new persona", "unrestricted ai",
	"json please", "respond in json", "output json", "in json format",
	"return json", "format json", "as json", "reply in json",
	"respond as", "reply as", "answer as", "output as",
	"speak as", "talk as", "act as", "mode:", "\"mode\":",
}

// 破坏性动词按词边界匹配,避免命中 dropped/removed 这类派生词。
var destructivePattern = regexp.MustCompile(`\b(delete|remove|wipe|erase|drop)\b`)

var (
	buyWritePattern  = regexp.MustCompile(`(?i)\b(buy|purchase|bought)\b.{0,40}\b[a-zA-Z]{1,5}\b`)
	sellWritePattern = regexp.MustCompile(`(?i)\b(sell|sold)\b.{0,40}\b[a-zA-Z]{1,5}\b`)
	shouldPattern    = regexp.MustCompile(`(?i)\bshould\b`)
	readHistPattern  = regexp.MustCompile(`(?i)\b(show|history|my|how|past|previous)\b`)

	dividendWritePattern = regexp.MustCompile(`(?i)\b(record|add|log)\b.{0,60}\b(dividend|interest)\b`)
	dividendAmtPattern   = regexp.MustCompile(`(?i)\bdividend\s+of\s+\$?\d+`)
	cashWritePattern     = regexp.MustCompile(`(?i)\b(add|deposit)\b.{0,30}\b(cash|dollar|usd|\$\d)`)
)

// 假设句与纠错句不是指令,不应触发写路径。
var nonCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat\s+if\b`),
	regexp.MustCompile(`(?i)\bif\s+i\b`),
	regexp.MustCompile(`(?i)\bif\s+only\b`),
	regexp.MustCompile(`(?i)\bi\s+think\s+you\b`),
	regexp.MustCompile(`(?i)\byou\s+are\s+wrong\b`),
	regexp.MustCompile(`(?i)\byou'?re\s+wrong\b`),
	regexp.MustCompile(`(?i)\bwrong\b`),
	regexp.MustCompile(`(?i)\bactually\b`),
	regexp.MustCompile(`(?i)\bi\s+was\b`),
	regexp.MustCompile(`(?i)\bthat'?s\s+not\b`),
	regexp.MustCompile(`(?i)\bthat\s+is\s+not\b`),
}

// "该不该买卖"是投资建议类问题,展示数据而不触发写路径。
var advicePhrases = []string{
	"should i sell", "should i buy", "should i invest",
	"should i trade", "should i rebalance", "should i hold",
}

// 指代型追问短语,有历史时直接基于历史作答。
var followupPhrases = []string{
	"how much of my portfolio is that",
	"what percentage is that",
	"what percent is that",
	"how much is that",
	"what is that as a",
	"show me more about it",
	"tell me more about that",
	"and what about that",
	"how does that compare",
}

var fullPositionPhrases = []string{
	"everything about", "full analysis", "full position", "tell me everything",
}

// Classifier 执行两段式分类:规则表优先,模型兜底。
type Classifier struct {
	rules    *RuleTable
	fallback llm.Client
	timeout  time.Duration
}

// NewClassifier 创建分类器。fallback 可以为 nil,此时规则未命中直接取安全缺省。
func NewClassifier(rules *RuleTable, fallback llm.Client, timeout time.Duration) *Classifier {
	if rules == nil {
		rules = DefaultRuleTable()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Classifier{rules: rules, fallback: fallback, timeout: timeout}
}

// Classify 纯函数式地把 (查询, 历史) 映射到意图标签。
func (c *Classifier) Classify(ctx context.Context, query string, history []session.Turn) Classification {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return Classification{Label: DefaultLabel}
	}

	// 确认口令优先于一切其他判断。没有未决写操作时出现口令,
	// 由路由层报 CONFIRMATION_MISMATCH,这里只负责识别。
	if _, ok := confirmReplies[normalized]; ok {
		return Classification{Label: LabelConfirm}
	}
	if _, ok := cancelReplies[normalized]; ok {
		return Classification{Label: LabelCancel}
	}

	for _, phrase := range adversarialPhrases {
		if strings.Contains(normalized, phrase) {
			return Classification{Label: DefaultLabel}
		}
	}
	// JSON 形态的消息一律视为格式注入。
	if strings.HasPrefix(strings.TrimSpace(normalized), "{") ||
		strings.HasPrefix(strings.TrimSpace(normalized), "[") {
		return Classification{Label: DefaultLabel}
	}

	if destructivePattern.MatchString(normalized) || strings.Contains(normalized, "clear all") {
		return Classification{Label: LabelRefuse}
	}

	if label, ok := c.classifyWrite(query, normalized); ok {
		return Classification{Label: label}
	}

	for _, phrase := range advicePhrases {
		if strings.Contains(normalized, phrase) {
			return Classification{Label: LabelCompliance}
		}
	}

	if len(history) > 0 {
		for _, phrase := range followupPhrases {
			if strings.Contains(normalized, phrase) {
				return Classification{Label: LabelFollowup}
			}
		}
	}

	for _, phrase := range fullPositionPhrases {
		if strings.Contains(normalized, phrase) && ExtractTicker(query) != "" {
			return Classification{Label: LabelFullPosition}
		}
	}

	if label, ok := c.classifyRead(query); ok {
		return Classification{Label: label}
	}

	if label, ok := c.classifyWithModel(ctx, query, history); ok {
		return Classification{Label: label, FallbackUsed: true}
	}
	return Classification{Label: DefaultLabel, FallbackUsed: true}
}

// classifyWrite 识别写意图。buy/sell 同时出现在只读词表里,
// 需要靠"动词 + 标的"的形态和排除词区分记录交易与查询历史。
func (c *Classifier) classifyWrite(query, normalized string) (Label, bool) {
	buyWrite := buyWritePattern.MatchString(query)
	sellWrite := sellWritePattern.MatchString(query)

	if shouldPattern.MatchString(query) {
		buyWrite = false
		sellWrite = false
	}
	for _, re := range nonCommandPatterns {
		if re.MatchString(query) {
			buyWrite = false
			sellWrite = false
			break
		}
	}

	dividendWrite := dividendWritePattern.MatchString(query) || dividendAmtPattern.MatchString(query)
	cashWrite := cashWritePattern.MatchString(query)

	readContext := readHistPattern.MatchString(query)
	switch {
	case buyWrite && !readContext:
		return LabelBuy, true
	case sellWrite && !readContext:
		return LabelSell, true
	case dividendWrite:
		return LabelDividend, true
	case cashWrite:
		return LabelCash, true
	}
	return "", false
}

// classifyRead 用规则表命中基础标签,并按固定优先级合成复合意图。
func (c *Classifier) classifyRead(query string) (Label, bool) {
	labels := c.rules.Match(query)
	if len(labels) == 0 {
		return "", false
	}

	matched := make(map[Label]bool, len(labels))
	for _, l := range labels {
		matched[l] = true
	}

	if matched[LabelCategorize] {
		return LabelCategorize, true
	}
	if matched[LabelTax] {
		if matched[LabelCompliance] {
			return LabelComplianceTax, true
		}
		return LabelTax, true
	}
	if matched[LabelMarketOverview] {
		return LabelMarketOverview, true
	}
	if matched[LabelCity] && ExtractCity(query) != "" {
		return LabelCity, true
	}

	base := 0
	for _, l := range []Label{LabelPerformance, LabelActivity, LabelCompliance, LabelMarket} {
		if matched[l] {
			base++
		}
	}

	switch {
	case base >= 3, matched[LabelPerformance] && matched[LabelCompliance] && matched[LabelActivity]:
		return LabelFullPosition, true
	case matched[LabelPerformance] && matched[LabelMarket]:
		return LabelPerformanceMarket, true
	case matched[LabelActivity] && matched[LabelMarket]:
		return LabelActivityMarket, true
	case matched[LabelActivity] && matched[LabelCompliance]:
		return LabelActivityCompliance, true
	case matched[LabelCompliance]:
		return LabelCompliance, true
	case matched[LabelMarket]:
		return LabelMarket, true
	case matched[LabelActivity]:
		return LabelActivity, true
	case matched[LabelPerformance]:
		return LabelPerformance, true
	}
	return "", false
}

// classifyWithModel 把封闭标签集交给模型选择,任何异常都放弃兜底。
func (c *Classifier) classifyWithModel(ctx context.Context, query string, history []session.Turn) (Label, bool) {
	if c.fallback == nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	labels := make([]string, 0, len(closedSet))
	for l := range closedSet {
		labels = append(labels, string(l))
	}

	var recent strings.Builder
	for i := len(history) - 1; i >= 0 && len(history)-i <= 4; i-- {
		fmt.Fprintf(&recent, "%s: %s\n", history[i].Role, truncate(history[i].Content, 120))
	}

	resp, err := c.fallback.Complete(ctx, llm.Request{
		System: "You are an intent classifier for a portfolio assistant. " +
			"Reply with exactly one label from the provided list and nothing else.",
		Prompt: fmt.Sprintf("Labels: %s\n\nRecent turns:\n%s\nQuery: %s",
			strings.Join(labels, ", "), recent.String(), query),
		MaxTokens: 16,
	})
	if err != nil {
		return "", false
	}

	label := Label(strings.TrimSpace(strings.ToLower(resp.Text)))
	if !Valid(label) {
		return "", false
	}
	return label, true
}

func truncate(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return string(runes)
}
