package handlers

import (
	"context"

	"WealthPilot/internal/capability"
)

// TransactionQueryHandler 查询历史交易,可按标的过滤。
type TransactionQueryHandler struct {
	broker BrokerClient
}

// NewTransactionQueryHandler 创建交易查询处理器。
func NewTransactionQueryHandler(b BrokerClient) *TransactionQueryHandler {
	return &TransactionQueryHandler{broker: b}
}

var _ capability.Handler = (*TransactionQueryHandler)(nil)

// Handle 实现 capability.Handler。参数: symbol(可选), limit(可选,默认 50)。
func (h *TransactionQueryHandler) Handle(ctx context.Context, params capability.Params) (*capability.Result, error) {
	symbol := params.String("symbol")
	limit := 50
	if v, ok := params.Float("limit"); ok && v > 0 {
		limit = int(v)
	}

	activities, usedFallback, err := h.broker.Activities(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}

	citations := []string{capability.SourcePortfolio}
	if usedFallback {
		citations = []string{capability.SourceFallback}
	}

	return &capability.Result{
		Data: map[string]any{
			"activities":      activities,
			"count":           len(activities),
			"filter_symbol":   symbol,
			"broker_fallback": usedFallback,
		},
		Citations: citations,
		Degraded:  usedFallback,
	}, nil
}
