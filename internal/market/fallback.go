package market

// 内置参考行情。上游不可达时使用,数值是参考快照而非实时报价。
var fallbackQuotes = map[string]Quote{
	"SPY":  {Symbol: "SPY", Price: 612.40, PreviousClose: 609.85, ChangePct: 0.42, Currency: "USD"},
	"QQQ":  {Symbol: "QQQ", Price: 542.10, PreviousClose: 538.70, ChangePct: 0.63, Currency: "USD"},
	"AAPL": {Symbol: "AAPL", Price: 232.50, PreviousClose: 230.10, ChangePct: 1.04, Currency: "USD"},
	"MSFT": {Symbol: "MSFT", Price: 448.20, PreviousClose: 445.60, ChangePct: 0.58, Currency: "USD"},
	"NVDA": {Symbol: "NVDA", Price: 131.80, PreviousClose: 129.95, ChangePct: 1.42, Currency: "USD"},
	"AMZN": {Symbol: "AMZN", Price: 218.30, PreviousClose: 216.85, ChangePct: 0.67, Currency: "USD"},
	"GOOGL": {
		Symbol: "GOOGL", Price: 186.40, PreviousClose: 185.20, ChangePct: 0.65, Currency: "USD",
	},
	"TSLA": {Symbol: "TSLA", Price: 262.70, PreviousClose: 266.10, ChangePct: -1.28, Currency: "USD"},
	"META": {Symbol: "META", Price: 595.30, PreviousClose: 590.40, ChangePct: 0.83, Currency: "USD"},
	"VTI":  {Symbol: "VTI", Price: 301.60, PreviousClose: 300.25, ChangePct: 0.45, Currency: "USD"},
	"VOO":  {Symbol: "VOO", Price: 562.90, PreviousClose: 560.55, ChangePct: 0.42, Currency: "USD"},
	"BND":  {Symbol: "BND", Price: 73.45, PreviousClose: 73.50, ChangePct: -0.07, Currency: "USD"},
}

func fallbackQuote(symbol string) (*Quote, bool) {
	q, ok := fallbackQuotes[symbol]
	if !ok {
		return nil, false
	}
	q.Fallback = true
	return &q, true
}
