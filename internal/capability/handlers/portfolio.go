package handlers

import (
	"context"
	"sort"
	"sync"

	"WealthPilot/internal/benchmark"
	"WealthPilot/internal/broker"
	"WealthPilot/internal/capability"
	"WealthPilot/internal/market"
)

// enrichedHolding 是补全了实时价格的持仓视图。
type enrichedHolding struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	CostBasis     float64 `json:"cost_basis_usd"`
	CurrentPrice  float64 `json:"current_price_usd,omitempty"`
	CurrentValue  float64 `json:"current_value_usd"`
	GainUSD       float64 `json:"gain_usd"`
	GainPct       float64 `json:"gain_pct"`
	AllocationPct float64 `json:"allocation_pct"`
	Currency      string  `json:"currency"`
	AssetClass    string  `json:"asset_class,omitempty"`
	PriceFallback bool    `json:"price_fallback,omitempty"`
}

// PortfolioHandler 拉取持仓并用实时行情计算真实表现。
type PortfolioHandler struct {
	broker BrokerClient
	market MarketClient
	bench  benchmark.Provider
}

// NewPortfolioHandler 创建组合分析处理器。bench 可为 nil,此时省略基准对比。
func NewPortfolioHandler(b BrokerClient, m MarketClient, bench benchmark.Provider) *PortfolioHandler {
	return &PortfolioHandler{broker: b, market: m, bench: bench}
}

var _ capability.Handler = (*PortfolioHandler)(nil)

// Handle 实现 capability.Handler。
func (h *PortfolioHandler) Handle(ctx context.Context, _ capability.Params) (*capability.Result, error) {
	holdings, usedFallback, err := h.broker.Holdings(ctx)
	if err != nil {
		return nil, err
	}

	enriched, anyPriceFallback := h.enrich(ctx, holdings)

	var totalCost, totalValue float64
	for _, eh := range enriched {
		totalCost += eh.CostBasis
		totalValue += eh.CurrentValue
	}
	totalGain := round2(totalValue - totalCost)
	totalGainPct := 0.0
	if totalCost > 0 {
		totalGainPct = round2(totalGain / totalCost * 100)
	}

	sort.SliceStable(enriched, func(i, j int) bool {
		return enriched[i].CurrentValue > enriched[j].CurrentValue
	})

	citations := []string{capability.SourcePortfolio, capability.SourceMarket}
	if usedFallback || anyPriceFallback {
		citations = append(citations, capability.SourceFallback)
	}

	data := map[string]any{
		"summary": map[string]any{
			"total_cost_basis_usd":    round2(totalCost),
			"total_current_value_usd": round2(totalValue),
			"total_gain_usd":          totalGain,
			"total_gain_pct":          totalGainPct,
			"holdings_count":          len(enriched),
		},
		"holdings":        enriched,
		"broker_fallback": usedFallback,
	}
	if h.bench != nil {
		if entry := h.bench.Default(); entry.Symbol != "" {
			data["benchmark"] = map[string]any{
				"symbol":             entry.Symbol,
				"name":               entry.Name,
				"ytd_return_pct":     entry.YTDReturnPct,
				"one_year_pct":       entry.OneYearPct,
				"portfolio_gain_pct": totalGainPct,
			}
			citations = append(citations, capability.SourceBenchmark)
		}
	}

	return &capability.Result{
		Data:      data,
		Citations: citations,
		Degraded:  usedFallback || anyPriceFallback,
	}, nil
}

// enrich 并发拉取每只持仓的行情。单个标的失败不阻塞其余持仓。
func (h *PortfolioHandler) enrich(ctx context.Context, holdings []broker.Holding) ([]enrichedHolding, bool) {
	enriched := make([]enrichedHolding, len(holdings))
	quotes := make([]*market.Quote, len(holdings))

	var wg sync.WaitGroup
	for i, holding := range holdings {
		wg.Add(1)
		go func(idx int, symbol string) {
			defer wg.Done()
			if q, err := h.market.Quote(ctx, symbol); err == nil {
				quotes[idx] = q
			}
		}(i, holding.Symbol)
	}
	wg.Wait()

	anyFallback := false
	for i, holding := range holdings {
		eh := enrichedHolding{
			Symbol:        holding.Symbol,
			Name:          holding.Name,
			Quantity:      holding.Quantity,
			CostBasis:     holding.CostBasis,
			AllocationPct: round2(holding.AllocationPct),
			Currency:      holding.Currency,
			AssetClass:    holding.AssetClass,
		}
		if q := quotes[i]; q != nil {
			eh.CurrentPrice = q.Price
			eh.CurrentValue = round2(holding.Quantity * q.Price)
			eh.GainUSD = round2(eh.CurrentValue - holding.CostBasis)
			if holding.CostBasis > 0 {
				eh.GainPct = round2(eh.GainUSD / holding.CostBasis * 100)
			}
			eh.PriceFallback = q.Fallback
			if q.Fallback {
				anyFallback = true
			}
		} else {
			// 行情缺失时以成本价代替,收益记为零而不是编造数字。
			eh.CurrentValue = holding.CostBasis
		}
		enriched[i] = eh
	}
	return enriched, anyFallback
}
