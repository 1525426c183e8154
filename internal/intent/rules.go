package intent

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule 是规则表中的一条目:一组触发词对应一个基础标签。
// 触发词按词边界匹配,短词不会命中长词内部的子串。
type Rule struct {
	Label    Label    `yaml:"label"`
	Terms    []string `yaml:"terms"`
	Priority int      `yaml:"priority"`
}

// RuleTable 是只读共享的声明式规则表。
type RuleTable struct {
	Version int               `yaml:"version"`
	Rules   []Rule            `yaml:"rules"`
	Aliases map[string]string `yaml:"aliases"`

	patterns      map[string][]*regexp.Regexp
	aliasPatterns []aliasPattern
}

type aliasPattern struct {
	re        *regexp.Regexp
	canonical string
}

// LoadRuleTable 解析 YAML 规则表文件。文件不存在时返回内置规则表。
func LoadRuleTable(path string) (*RuleTable, error) {
	if path == "" {
		return DefaultRuleTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRuleTable(), nil
		}
		return nil, fmt.Errorf("读取规则表失败: %w", err)
	}

	var table RuleTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("解析规则表失败: %w", err)
	}
	if len(table.Rules) == 0 {
		return nil, fmt.Errorf("规则表 %s 没有任何规则", path)
	}
	for _, rule := range table.Rules {
		if !Valid(rule.Label) {
			return nil, fmt.Errorf("规则表包含未知标签 %q", rule.Label)
		}
	}
	if err := table.compile(); err != nil {
		return nil, err
	}
	return &table, nil
}

// compile 为每条触发词预编译词边界正则。
func (t *RuleTable) compile() error {
	t.patterns = make(map[string][]*regexp.Regexp, len(t.Rules))
	for _, rule := range t.Rules {
		compiled := make([]*regexp.Regexp, 0, len(rule.Terms))
		for _, term := range rule.Terms {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(strings.ToLower(term)) + `\b`)
			if err != nil {
				return fmt.Errorf("编译触发词 %q 失败: %w", term, err)
			}
			compiled = append(compiled, re)
		}
		t.patterns[ruleKey(rule)] = compiled
	}
	for alias, canonical := range t.Aliases {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(alias)) + `\b`)
		if err != nil {
			return fmt.Errorf("编译别名 %q 失败: %w", alias, err)
		}
		t.aliasPatterns = append(t.aliasPatterns, aliasPattern{re: re, canonical: strings.ToLower(canonical)})
	}
	return nil
}

func ruleKey(rule Rule) string {
	return string(rule.Label) + "|" + strings.Join(rule.Terms, ",")
}

// Normalize 将已登记的近似拼写替换为标准触发词,再交给规则匹配。
func (t *RuleTable) Normalize(query string) string {
	lower := strings.ToLower(query)
	for _, alias := range t.aliasPatterns {
		lower = alias.re.ReplaceAllString(lower, alias.canonical)
	}
	return lower
}

// ruleMatch 记录一次规则命中及其特异度。
type ruleMatch struct {
	rule  Rule
	term  string
	words int
	order int
}

// Match 返回查询命中的全部基础标签。
// 同一标签取最特异的命中;跨标签的取舍由分类器的合成逻辑决定。
func (t *RuleTable) Match(query string) []Label {
	normalized := t.Normalize(query)

	var matches []ruleMatch
	for idx, rule := range t.Rules {
		for i, re := range t.patterns[ruleKey(rule)] {
			if re.MatchString(normalized) {
				term := rule.Terms[i]
				matches = append(matches, ruleMatch{
					rule:  rule,
					term:  term,
					words: len(strings.Fields(term)),
					order: idx,
				})
			}
		}
	}
	if len(matches) == 0 {
		return nil
	}

	// 最长命中优先,其次规则优先级,最后声明顺序。
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].words != matches[j].words {
			return matches[i].words > matches[j].words
		}
		if matches[i].rule.Priority != matches[j].rule.Priority {
			return matches[i].rule.Priority > matches[j].rule.Priority
		}
		return matches[i].order < matches[j].order
	})

	seen := make(map[Label]struct{})
	labels := make([]Label, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m.rule.Label]; dup {
			continue
		}
		seen[m.rule.Label] = struct{}{}
		labels = append(labels, m.rule.Label)
	}
	return labels
}

// DefaultRuleTable 返回与发行版内置词表一致的规则表。
func DefaultRuleTable() *RuleTable {
	table := &RuleTable{
		Version: 1,
		Rules: []Rule{
			{
				Label:    LabelCategorize,
				Priority: 40,
				Terms: []string{
					"categorize", "pattern", "breakdown", "how often", "trading style",
				},
			},
			{
				Label:    LabelTax,
				Priority: 35,
				Terms: []string{
					"tax", "capital gain", "capital gains", "harvest", "owe",
					"liability", "1099", "realized", "loss harvest",
				},
			},
			{
				Label:    LabelMarketOverview,
				Priority: 30,
				Terms: []string{
					"what's hot", "whats hot", "hot today", "market overview",
					"market today", "trending", "top movers", "biggest movers",
					"market news", "how is the market", "how are markets",
					"market doing", "market conditions",
				},
			},
			{
				Label:    LabelCity,
				Priority: 25,
				Terms: []string{
					"cost of living in", "cost of living", "housing in",
					"what is it like to live in", "how expensive is",
					"city comparison", "median rent", "move to",
				},
			},
			{
				Label:    LabelCompliance,
				Priority: 20,
				Terms: []string{
					"concentrated", "concentration", "diversify", "diversified",
					"diversification", "risk", "allocation", "compliance",
					"overweight", "balanced", "spread", "alert", "warning",
				},
			},
			{
				Label:    LabelPerformance,
				Priority: 10,
				Terms: []string{
					"return", "performance", "gain", "loss", "ytd", "portfolio",
					"value", "how am i doing", "worth", "1y", "1-year",
					"best", "worst", "unrealized", "summary", "overview",
				},
			},
			{
				Label:    LabelActivity,
				Priority: 10,
				Terms: []string{
					"trade", "transaction", "buy", "sell", "history", "activity",
					"show me", "recent", "order", "purchase", "bought", "sold",
					"dividend", "fee",
				},
			},
			{
				Label:    LabelMarket,
				Priority: 10,
				Terms: []string{
					"price", "current price", "today", "market", "stock price",
					"trading at", "trading", "quote",
				},
			},
		},
		Aliases: map[string]string{
			"performence":    "performance",
			"perfomance":     "performance",
			"portfollio":     "portfolio",
			"portolio":       "portfolio",
			"divident":       "dividend",
			"categorisation": "categorize",
			"categorization": "categorize",
			"diversifi":      "diversify",
			"allocaiton":     "allocation",
		},
	}
	if err := table.compile(); err != nil {
		panic(err)
	}
	return table
}
