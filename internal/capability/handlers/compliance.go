package handlers

import (
	"context"
	"fmt"

	"WealthPilot/internal/capability"
)

// 合规规则的固定阈值。
const (
	concentrationThresholdPct = 20.0
	significantLossPct        = -15.0
	minDiversifiedHoldings    = 5
)

// complianceWarning 是一条规则告警。
type complianceWarning struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Symbol   string `json:"symbol,omitempty"`
	Message  string `json:"message"`
}

// ComplianceHandler 对组合执行本地合规规则,不依赖外部 API。
type ComplianceHandler struct {
	portfolio *PortfolioHandler
}

// NewComplianceHandler 创建合规检查处理器。
func NewComplianceHandler(b BrokerClient, m MarketClient) *ComplianceHandler {
	// 合规规则只看持仓本身,不做基准对比。
	return &ComplianceHandler{portfolio: NewPortfolioHandler(b, m, nil)}
}

var _ capability.Handler = (*ComplianceHandler)(nil)

// Handle 实现 capability.Handler。规则:
// 单一持仓超过 20% 为集中度风险;回撤超过 15% 提示关注;持仓少于 5 只提示分散不足。
func (h *ComplianceHandler) Handle(ctx context.Context, params capability.Params) (*capability.Result, error) {
	portfolioResult, err := h.portfolio.Handle(ctx, params)
	if err != nil {
		return nil, err
	}

	holdings, _ := portfolioResult.Data["holdings"].([]enrichedHolding)
	var warnings []complianceWarning

	for _, holding := range holdings {
		if holding.AllocationPct > concentrationThresholdPct {
			warnings = append(warnings, complianceWarning{
				Type:     "CONCENTRATION_RISK",
				Severity: "HIGH",
				Symbol:   holding.Symbol,
				Message: fmt.Sprintf("%s represents %.1f%% of your portfolio, above the %.0f%% concentration threshold.",
					holding.Symbol, holding.AllocationPct, concentrationThresholdPct),
			})
		}
		if holding.GainPct < significantLossPct {
			warnings = append(warnings, complianceWarning{
				Type:     "SIGNIFICANT_LOSS",
				Severity: "MEDIUM",
				Symbol:   holding.Symbol,
				Message: fmt.Sprintf("%s is down %.1f%%. Worth reviewing for tax-loss harvesting opportunities.",
					holding.Symbol, -holding.GainPct),
			})
		}
	}
	if len(holdings) < minDiversifiedHoldings {
		warnings = append(warnings, complianceWarning{
			Type:     "LOW_DIVERSIFICATION",
			Severity: "LOW",
			Message: fmt.Sprintf("Portfolio has only %d holding(s). Consider diversifying across more positions and asset classes.",
				len(holdings)),
		})
	}

	status := "CLEAR"
	if len(warnings) > 0 {
		status = "FLAGGED"
	}

	return &capability.Result{
		Data: map[string]any{
			"warnings":          warnings,
			"warning_count":     len(warnings),
			"overall_status":    status,
			"holdings_analyzed": len(holdings),
			"portfolio":         portfolioResult.Data,
		},
		Citations: portfolioResult.Citations,
		Degraded:  portfolioResult.Degraded,
	}, nil
}
