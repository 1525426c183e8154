package handlers

import (
	"context"

	"WealthPilot/internal/capability"
	xerrors "WealthPilot/internal/errors"
)

// MarketHandler 查询单一标的的实时行情。
type MarketHandler struct {
	market MarketClient
}

// NewMarketHandler 创建行情查询处理器。
func NewMarketHandler(m MarketClient) *MarketHandler {
	return &MarketHandler{market: m}
}

var _ capability.Handler = (*MarketHandler)(nil)

// Handle 实现 capability.Handler。未给出标的时默认查询 SPY。
func (h *MarketHandler) Handle(ctx context.Context, params capability.Params) (*capability.Result, error) {
	symbol := params.String("symbol")
	if symbol == "" {
		symbol = "SPY"
	}

	quote, err := h.market.Quote(ctx, symbol)
	if err != nil {
		return nil, xerrors.Wrap(capability.CodeExternalSourceUnavailable, err, "行情不可用")
	}

	citation := capability.SourceMarket
	if quote.Fallback {
		citation = capability.SourceFallback
	}

	return &capability.Result{
		Data: map[string]any{
			"quote":    quote,
			"fallback": quote.Fallback,
		},
		Citations: []string{citation},
		Degraded:  quote.Fallback,
	}, nil
}

// MarketOverviewHandler 查询一组主要指数与龙头股的行情快照。
type MarketOverviewHandler struct {
	market MarketClient
}

// NewMarketOverviewHandler 创建市场概览处理器。
func NewMarketOverviewHandler(m MarketClient) *MarketOverviewHandler {
	return &MarketOverviewHandler{market: m}
}

var _ capability.Handler = (*MarketOverviewHandler)(nil)

func (h *MarketOverviewHandler) Handle(ctx context.Context, _ capability.Params) (*capability.Result, error) {
	quotes, err := h.market.Overview(ctx)
	if err != nil {
		return nil, xerrors.Wrap(capability.CodeExternalSourceUnavailable, err, "市场概览不可用")
	}

	anyFallback := false
	for _, q := range quotes {
		if q.Fallback {
			anyFallback = true
			break
		}
	}

	citations := []string{capability.SourceMarket}
	if anyFallback {
		citations = append(citations, capability.SourceFallback)
	}

	return &capability.Result{
		Data: map[string]any{
			"quotes":   quotes,
			"count":    len(quotes),
			"fallback": anyFallback,
		},
		Citations: citations,
		Degraded:  anyFallback,
	}, nil
}
