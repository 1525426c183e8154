package handlers

import (
	"context"
	"sort"

	"WealthPilot/internal/broker"
	"WealthPilot/internal/capability"
)

// symbolStats 是按标的聚合的交易统计。
type symbolStats struct {
	Symbol        string  `json:"symbol"`
	BuyCount      int     `json:"buy_count"`
	SellCount     int     `json:"sell_count"`
	DividendCount int     `json:"dividend_count"`
	TotalInvested float64 `json:"total_invested"`
}

// CategorizeHandler 把交易历史归类为交易模式与汇总。
type CategorizeHandler struct {
	broker BrokerClient
}

// NewCategorizeHandler 创建交易归类处理器。
func NewCategorizeHandler(b BrokerClient) *CategorizeHandler {
	return &CategorizeHandler{broker: b}
}

var _ capability.Handler = (*CategorizeHandler)(nil)

// Handle 实现 capability.Handler。
func (h *CategorizeHandler) Handle(ctx context.Context, _ capability.Params) (*capability.Result, error) {
	activities, usedFallback, err := h.broker.Activities(ctx, "", 200)
	if err != nil {
		return nil, err
	}

	var (
		totalInvested float64
		totalFees     float64
		buyCount      int
		sellCount     int
		dividendCount int
	)
	bySymbol := make(map[string]*symbolStats)

	for _, a := range activities {
		value := a.Quantity * a.UnitPrice
		totalFees += a.Fee

		stats, ok := bySymbol[a.Symbol]
		if !ok {
			stats = &symbolStats{Symbol: a.Symbol}
			bySymbol[a.Symbol] = stats
		}

		switch a.Type {
		case broker.ActivityBuy:
			buyCount++
			totalInvested += value
			stats.BuyCount++
			stats.TotalInvested = round2(stats.TotalInvested + value)
		case broker.ActivitySell:
			sellCount++
			stats.SellCount++
		case broker.ActivityDividend:
			dividendCount++
			stats.DividendCount++
		}
	}

	mostTraded := make([]symbolStats, 0, len(bySymbol))
	for _, stats := range bySymbol {
		mostTraded = append(mostTraded, *stats)
	}
	sort.SliceStable(mostTraded, func(i, j int) bool {
		return mostTraded[i].BuyCount > mostTraded[j].BuyCount
	})
	if len(mostTraded) > 5 {
		mostTraded = mostTraded[:5]
	}

	feeBase := totalInvested
	if feeBase < 1 {
		feeBase = 1
	}

	citations := []string{capability.SourcePortfolio}
	if usedFallback {
		citations = []string{capability.SourceFallback}
	}

	return &capability.Result{
		Data: map[string]any{
			"summary": map[string]any{
				"total_transactions": len(activities),
				"total_invested_usd": round2(totalInvested),
				"total_fees_usd":     round2(totalFees),
				"buy_count":          buyCount,
				"sell_count":         sellCount,
				"dividend_count":     dividendCount,
			},
			"most_traded": mostTraded,
			"patterns": map[string]any{
				"is_buy_and_hold": sellCount == 0,
				"has_dividends":   dividendCount > 0,
				"high_fee_ratio":  totalFees/feeBase > 0.01,
			},
			"broker_fallback": usedFallback,
		},
		Citations: citations,
		Degraded:  usedFallback,
	}, nil
}
