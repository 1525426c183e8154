package handlers

import (
	"context"
	"time"

	"WealthPilot/internal/broker"
	"WealthPilot/internal/capability"
)

// 估算税率与长短期分界。固定估计值,输出永远带免责声明。
const (
	shortTermRate  = 0.22
	longTermRate   = 0.15
	longTermDays   = 365
	washSaleWindow = 30
	taxDisclaimer  = "This is an estimate only. Consult a qualified tax professional."
)

// gainBreakdown 是单笔卖出的收益拆解。
type gainBreakdown struct {
	Symbol      string  `json:"symbol"`
	GainLoss    float64 `json:"gain_loss"`
	HoldingDays int     `json:"holding_days"`
	Term        string  `json:"term"`
}

// washSaleWarning 标记疑似洗售的标的。
type washSaleWarning struct {
	Symbol  string `json:"symbol"`
	Warning string `json:"warning"`
}

// TaxHandler 根据卖出历史估算资本利得税,本地计算。
type TaxHandler struct {
	broker BrokerClient
}

// NewTaxHandler 创建税务估算处理器。
func NewTaxHandler(b BrokerClient) *TaxHandler {
	return &TaxHandler{broker: b}
}

var _ capability.Handler = (*TaxHandler)(nil)

// Handle 实现 capability.Handler。
// 持有不足一年按短期税率,满一年按长期税率;亏损卖出且 30 天内有同标的买入时提示洗售风险。
func (h *TaxHandler) Handle(ctx context.Context, _ capability.Params) (*capability.Result, error) {
	activities, usedFallback, err := h.broker.Activities(ctx, "", 200)
	if err != nil {
		return nil, err
	}

	var sells, buys []broker.Activity
	for _, a := range activities {
		switch a.Type {
		case broker.ActivitySell:
			sells = append(sells, a)
		case broker.ActivityBuy:
			buys = append(buys, a)
		}
	}

	var (
		shortTermGains float64
		longTermGains  float64
		breakdown      []gainBreakdown
		washSales      []washSaleWarning
	)

	for _, sell := range sells {
		sellDate := parseDate(sell.Date)

		costBasis := sell.UnitPrice
		buyDate := sellDate
		for _, buy := range buys {
			if buy.Symbol == sell.Symbol {
				costBasis = buy.UnitPrice
				buyDate = parseDate(buy.Date)
				break
			}
		}

		gain := (sell.UnitPrice - costBasis) * sell.Quantity
		holdingDays := int(sellDate.Sub(buyDate).Hours() / 24)
		if holdingDays < 0 {
			holdingDays = 0
		}

		term := "short-term"
		if holdingDays >= longTermDays {
			term = "long-term"
			longTermGains += gain
		} else {
			shortTermGains += gain
		}

		if gain < 0 {
			for _, buy := range buys {
				if buy.Symbol != sell.Symbol {
					continue
				}
				delta := sellDate.Sub(parseDate(buy.Date)).Hours() / 24
				if delta < 0 {
					delta = -delta
				}
				if delta <= washSaleWindow {
					washSales = append(washSales, washSaleWarning{
						Symbol: sell.Symbol,
						Warning: "Possible wash sale: bought " + sell.Symbol +
							" within 30 days of selling at a loss. This loss may be disallowed by IRS rules.",
					})
					break
				}
			}
		}

		breakdown = append(breakdown, gainBreakdown{
			Symbol:      sell.Symbol,
			GainLoss:    round2(gain),
			HoldingDays: holdingDays,
			Term:        term,
		})
	}

	shortTermTax := positive(shortTermGains) * shortTermRate
	longTermTax := positive(longTermGains) * longTermRate

	citations := []string{capability.SourcePortfolio}
	if usedFallback {
		citations = []string{capability.SourceFallback}
	}

	return &capability.Result{
		Data: map[string]any{
			"short_term_gains_usd": round2(shortTermGains),
			"long_term_gains_usd":  round2(longTermGains),
			"short_term_tax_usd":   round2(shortTermTax),
			"long_term_tax_usd":    round2(longTermTax),
			"total_estimated_tax":  round2(shortTermTax + longTermTax),
			"breakdown":            breakdown,
			"wash_sale_warnings":   washSales,
			"disclaimer":           taxDisclaimer,
			"sell_count":           len(sells),
			"broker_fallback":      usedFallback,
		},
		Citations: citations,
		Degraded:  usedFallback,
	}, nil
}

func parseDate(value string) time.Time {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t
	}
	return time.Now().UTC()
}

func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
