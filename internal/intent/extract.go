package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// 常见标的集合,优先于泛化的 1-5 位大写字母匹配。
var knownTickers = map[string]struct{}{
	"AAPL": {}, "MSFT": {}, "NVDA": {}, "TSLA": {}, "GOOGL": {}, "GOOG": {},
	"AMZN": {}, "META": {}, "NFLX": {}, "SPY": {}, "QQQ": {}, "BRK": {},
	"BRKB": {}, "VTI": {}, "VOO": {}, "BND": {},
}

// 容易被误认成标的的普通英文单词。
var tickerStopwords = map[string]struct{}{
	"I": {}, "A": {}, "MY": {}, "AM": {}, "IS": {}, "IN": {}, "OF": {}, "DO": {},
	"THE": {}, "FOR": {}, "AND": {}, "OR": {}, "AT": {}, "IT": {}, "ME": {},
	"HOW": {}, "WHAT": {}, "SHOW": {}, "GET": {}, "CAN": {}, "TO": {}, "ON": {},
	"BE": {}, "BY": {}, "US": {}, "UP": {}, "AN": {},
	"BUY": {}, "SELL": {}, "ADD": {}, "YES": {}, "NO": {},
	"IF": {}, "THINK": {}, "HALF": {}, "THAT": {}, "ONLY": {}, "WRONG": {},
	"JUST": {}, "SOLD": {}, "BOUGHT": {}, "WERE": {}, "WAS": {}, "HAD": {},
	"HAS": {}, "NOT": {}, "BUT": {}, "SO": {}, "ALL": {}, "WHEN": {},
	"THEN": {}, "EACH": {}, "ANY": {}, "BOTH": {}, "ALSO": {}, "INTO": {},
	"OVER": {}, "OUT": {}, "BACK": {}, "EVEN": {}, "SAME": {}, "SUCH": {},
	"AFTER": {}, "SAID": {}, "THAN": {}, "THEM": {}, "THEY": {}, "THIS": {},
	"WITH": {}, "YOUR": {}, "FROM": {}, "BEEN": {}, "HAVE": {}, "WILL": {},
	"ABOUT": {}, "WHICH": {}, "THEIR": {}, "THERE": {}, "WHERE": {},
	"THESE": {}, "WOULD": {}, "COULD": {}, "SHOULD": {}, "MIGHT": {},
	"SHALL": {}, "SINCE": {}, "WHILE": {}, "STILL": {}, "AGAIN": {},
	"THOSE": {}, "OTHER": {}, "SHARE": {}, "SHARES": {},
}

var nonLetters = regexp.MustCompile(`[^A-Z]`)

// ExtractTicker 从查询中提取最可能的标的代码,找不到时返回空串。
func ExtractTicker(query string) string {
	words := strings.Fields(strings.ToUpper(query))

	for _, word := range words {
		clean := nonLetters.ReplaceAllString(word, "")
		if _, ok := knownTickers[clean]; ok {
			return clean
		}
	}
	for _, word := range words {
		clean := nonLetters.ReplaceAllString(word, "")
		if len(clean) < 1 || len(clean) > 5 {
			continue
		}
		if _, stop := tickerStopwords[clean]; stop {
			continue
		}
		// 只接受原文即为全大写的词,避免把普通小写单词误判为代码。
		if !strings.Contains(query, clean) {
			continue
		}
		return clean
	}
	return ""
}

var quantityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d+)?)\s+shares?`),
	regexp.MustCompile(`(?i)(?:buy|sell|purchase|record)\s+(\d+(?:,\d{3})*(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d+)?)\s+(?:units?|stocks?)`),
}

// ExtractQuantity 提取股数。
func ExtractQuantity(query string) (float64, bool) {
	return firstNumber(query, quantityPatterns)
}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d+(?:,\d{3})*(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)(?:at|@|price(?:\s+of)?|for)\s+\$?(\d+(?:,\d{3})*(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d+)?)\s+(?:per\s+share|each)`),
}

// ExtractPrice 提取单价。
func ExtractPrice(query string) (float64, bool) {
	return firstNumber(query, pricePatterns)
}

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d+(?:,\d{3})*(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d+)?)\s*(?:dollars?|usd|cash)`),
}

// ExtractAmount 提取现金金额。
func ExtractAmount(query string) (float64, bool) {
	return firstNumber(query, amountPatterns)
}

var dividendPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)dividend\s+of\s+\$?(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)\$(\d+(?:\.\d+)?)\s+dividend`),
}

// ExtractDividendAmount 提取分红金额。
func ExtractDividendAmount(query string) (float64, bool) {
	return firstNumber(query, dividendPatterns)
}

var feePattern = regexp.MustCompile(`(?i)fee\s+(?:of\s+)?\$?(\d+(?:\.\d+)?)`)

// ExtractFee 提取手续费,未出现时为 0。
func ExtractFee(query string) float64 {
	if m := feePattern.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v
		}
	}
	return 0
}

var (
	isoDatePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	usDatePattern  = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
)

// ExtractDate 提取显式日期,统一输出 YYYY-MM-DD。
func ExtractDate(query string) string {
	if m := isoDatePattern.FindStringSubmatch(query); m != nil {
		return m[1]
	}
	if m := usDatePattern.FindStringSubmatch(query); m != nil {
		month := m[1]
		day := m[2]
		if len(month) == 1 {
			month = "0" + month
		}
		if len(day) == 1 {
			day = "0" + day
		}
		return m[3] + "-" + month + "-" + day
	}
	return ""
}

var cityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:cost of living|housing|live|living|rent|move to|moving to)\s+(?:in\s+)?([a-zA-Z][a-zA-Z .'-]{1,40}?)(?:[?.!,]|$)`),
	regexp.MustCompile(`(?i)how expensive is\s+([a-zA-Z][a-zA-Z .'-]{1,40}?)(?:[?.!,]|$)`),
}

// ExtractCity 提取城市名。
func ExtractCity(query string) string {
	for _, re := range cityPatterns {
		if m := re.FindStringSubmatch(query); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func firstNumber(query string, patterns []*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[len(m)-1], ",", "")
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
