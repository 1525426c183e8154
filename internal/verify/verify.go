package verify

import (
	"regexp"
	"strings"

	"WealthPilot/internal/capability"
)

// 置信度公式的各项常量。
const (
	baseConfidence      = 0.85
	failurePenalty      = 0.20
	degradedPenalty     = 0.10
	citationBonus       = 0.10
	reliabilityBonus    = 0.05
	minConfidence       = 0.40
	maxConfidence       = 0.99
	noToolBaseline      = 0.40
	passThreshold       = 0.70
	escalateThreshold   = 0.40
	disclaimerProximity = 200
)

// Status 是校验结论的分级。
type Status string

const (
	StatusPass     Status = "pass"
	StatusFlag     Status = "flag"
	StatusEscalate Status = "escalate"
)

// Report 是一次回复校验的完整结论。
type Report struct {
	Confidence float64  `json:"confidence"`
	Verified   bool     `json:"verified"`
	Status     Status   `json:"status"`
	Flags      []string `json:"flags,omitempty"`
}

// Verifier 对渲染后的回复执行三项独立检查:
// 置信度打分、数字声明的引用核对、违禁措辞扫描。
type Verifier struct {
	highReliability func(capName string) bool
	blocklist       []string
	disclaimers     []string
}

// New 创建校验器。highReliability 报告能力是否属于高可靠集合。
func New(highReliability func(capName string) bool) *Verifier {
	return &Verifier{
		highReliability: highReliability,
		blocklist:       defaultBlocklist,
		disclaimers:     defaultDisclaimers,
	}
}

// 绝对交易指令与保证性措辞。命中且附近无免责声明时强制 verified=false。
var defaultBlocklist = []string{
	"guaranteed return",
	"guaranteed profit",
	"risk-free",
	"cannot lose",
	"can't lose",
	"will definitely",
	"you must buy",
	"you must sell",
	"you should definitely buy",
	"you should definitely sell",
	"sure thing",
	"双倍保证",
}

var defaultDisclaimers = []string{
	"not financial advice",
	"not investment advice",
	"consult a",
	"estimate only",
	"past performance",
	"educational purposes",
}

// numberPattern 匹配正文中的数字声明。引用括号内的数字与 ISO 日期不算。
var (
	numberPattern   = regexp.MustCompile(`\$?\d[\d,]*\.?\d*%?`)
	bracketPattern  = regexp.MustCompile(`\[[^\]]*\]`)
	isoDatePattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	usDatePattern   = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`)
	timeDatePattern = regexp.MustCompile(`\d{1,2}:\d{2}`)
)

// Score 在渲染前根据调用结果打出置信度并给出初步分级。
// 文本相关的两项检查在渲染后由 Inspect 补上。
func (v *Verifier) Score(invocations []capability.Invocation) Report {
	report := Report{
		Confidence: v.confidence(invocations),
		Verified:   true,
	}
	report.Status = statusFor(report.Confidence, 0)
	return report
}

// Inspect 对渲染后的文本执行引用核对与违禁措辞扫描,返回最终结论。
func (v *Verifier) Inspect(text string, invocations []capability.Invocation, report Report) Report {
	citations := collectCitations(invocations)

	if hasNumericClaims(text) && len(citations) == 0 {
		report.Verified = false
		report.Flags = append(report.Flags, "numeric claim without citation")
	}

	if phrase := v.blockedPhrase(text); phrase != "" {
		report.Verified = false
		report.Flags = append(report.Flags, "blocked phrase: "+phrase)
	}

	report.Status = statusFor(report.Confidence, len(report.Flags))
	return report
}

// Verify 一次性完成打分与文本扫描,供文本已确定的调用方使用。
func (v *Verifier) Verify(text string, invocations []capability.Invocation) Report {
	return v.Inspect(text, invocations, v.Score(invocations))
}

func statusFor(confidence float64, flagCount int) Status {
	switch {
	case confidence < escalateThreshold:
		return StatusEscalate
	case confidence >= passThreshold && flagCount == 0:
		return StatusPass
	default:
		return StatusFlag
	}
}

// confidence 按固定公式打分,无工具调用的纯对话回合使用固定基线。
func (v *Verifier) confidence(invocations []capability.Invocation) float64 {
	if len(invocations) == 0 {
		return noToolBaseline
	}

	score := baseConfidence

	for _, inv := range invocations {
		if !inv.Success {
			score -= failurePenalty
			break
		}
	}

	// 降级数据集可用但不等于实时数据,置信度相应下调。
	for _, inv := range invocations {
		if inv.Degraded {
			score -= degradedPenalty
			break
		}
	}

	for _, inv := range invocations {
		if len(inv.Citations) > 0 {
			score += citationBonus
			break
		}
	}

	if v.highReliability != nil {
		for _, inv := range invocations {
			if v.highReliability(inv.Capability) {
				score += reliabilityBonus
				break
			}
		}
	}

	if score < minConfidence {
		return minConfidence
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return score
}

// blockedPhrase 返回第一个命中且附近没有免责声明的违禁短语。
func (v *Verifier) blockedPhrase(text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range v.blocklist {
		idx := strings.Index(lower, phrase)
		if idx < 0 {
			continue
		}
		if v.hasNearbyDisclaimer(lower, idx, len(phrase)) {
			continue
		}
		return phrase
	}
	return ""
}

func (v *Verifier) hasNearbyDisclaimer(lower string, idx, phraseLen int) bool {
	start := idx - disclaimerProximity
	if start < 0 {
		start = 0
	}
	end := idx + phraseLen + disclaimerProximity
	if end > len(lower) {
		end = len(lower)
	}
	window := lower[start:end]
	for _, d := range v.disclaimers {
		if strings.Contains(window, d) {
			return true
		}
	}
	return false
}

// hasNumericClaims 判断正文是否包含需要数据来源支撑的数字声明。
func hasNumericClaims(text string) bool {
	stripped := bracketPattern.ReplaceAllString(text, "")
	stripped = isoDatePattern.ReplaceAllString(stripped, "")
	stripped = usDatePattern.ReplaceAllString(stripped, "")
	stripped = timeDatePattern.ReplaceAllString(stripped, "")
	return numberPattern.MatchString(stripped)
}

func collectCitations(invocations []capability.Invocation) []string {
	var citations []string
	seen := make(map[string]struct{})
	for _, inv := range invocations {
		for _, c := range inv.Citations {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			citations = append(citations, c)
		}
	}
	return citations
}

// Citations 暴露去重后的引用集合,供上层拼装回复元数据。
func Citations(invocations []capability.Invocation) []string {
	return collectCitations(invocations)
}
