package handlers

import (
	"context"
	"fmt"
	"strings"

	"WealthPilot/internal/broker"
	"WealthPilot/internal/capability"
	xerrors "WealthPilot/internal/errors"
)

// defaultLargeOrderUSD 是大额订单提示的默认阈值。
const defaultLargeOrderUSD = 100000.0

// TradeWriter 执行买入或卖出的两阶段写入。
// Prepare 物化缺失的价格并生成待确认摘要,Commit 按存储的参数原样写入。
type TradeWriter struct {
	broker        BrokerClient
	market        MarketClient
	activityType  string
	largeOrderUSD float64
}

// NewTradeWriter 创建交易写入器。activityType 取 broker.ActivityBuy 或 broker.ActivitySell。
func NewTradeWriter(b BrokerClient, m MarketClient, activityType string, largeOrderUSD float64) *TradeWriter {
	if largeOrderUSD <= 0 {
		largeOrderUSD = defaultLargeOrderUSD
	}
	return &TradeWriter{broker: b, market: m, activityType: activityType, largeOrderUSD: largeOrderUSD}
}

var _ capability.WriteHandler = (*TradeWriter)(nil)

// Prepare 校验输入、补全价格与日期,返回确认前的完整参数快照。
func (w *TradeWriter) Prepare(ctx context.Context, params capability.Params) (*capability.Prepared, error) {
	symbol := strings.ToUpper(strings.TrimSpace(params.String("symbol")))
	if symbol == "" {
		return nil, xerrors.New(capability.CodeCapabilityInvalidInput, "缺少交易标的")
	}

	quantity, ok := params.Float("quantity")
	if !ok || quantity <= 0 {
		return nil, xerrors.New(capability.CodeCapabilityInvalidInput, "缺少有效的交易数量")
	}

	price, hasPrice := params.Float("price")
	priceSource := "user-specified"
	if !hasPrice || price <= 0 {
		quote, err := w.market.Quote(ctx, symbol)
		if err != nil {
			return nil, xerrors.Wrap(capability.CodeExternalSourceUnavailable, err,
				"无法获取报价,请在指令中给出价格")
		}
		price = quote.Price
		priceSource = "market price"
		if quote.Fallback {
			priceSource = "reference price"
		}
	}

	fee, _ := params.Float("fee")
	if fee < 0 {
		fee = 0
	}

	date := params.String("date")
	if date == "" {
		date = todayString()
	}

	total := quantity * price

	prepared := capability.Params{
		"symbol":   symbol,
		"quantity": quantity,
		"price":    round2(price),
		"fee":      fee,
		"date":     date,
		"total":    round2(total),
	}

	verb := "Buy"
	if w.activityType == broker.ActivitySell {
		verb = "Sell"
	}
	summary := fmt.Sprintf("%s %.4g shares of %s at $%.2f on %s (total $%.2f, %s)",
		verb, quantity, symbol, price, date, total, priceSource)

	var warnings []string
	if total >= w.largeOrderUSD {
		warnings = append(warnings,
			fmt.Sprintf("Large order: total value $%.2f exceeds $%.0f. Please review carefully before confirming.",
				total, w.largeOrderUSD))
	}

	return &capability.Prepared{Params: prepared, Summary: summary, Warnings: warnings}, nil
}

// Commit 用 Prepare 阶段存储的参数写入持仓后端,不再重新取价。
func (w *TradeWriter) Commit(ctx context.Context, params capability.Params) (*capability.Result, error) {
	price, _ := params.Float("price")
	quantity, _ := params.Float("quantity")
	fee, _ := params.Float("fee")

	req := broker.ImportRequest{
		Type:      w.activityType,
		Symbol:    params.String("symbol"),
		Quantity:  quantity,
		UnitPrice: price,
		Fee:       fee,
		Currency:  "USD",
		Date:      params.String("date"),
	}
	if err := w.broker.Import(ctx, req); err != nil {
		return nil, err
	}

	return &capability.Result{
		Data: map[string]any{
			"recorded": true,
			"type":     w.activityType,
			"symbol":   req.Symbol,
			"quantity": quantity,
			"price":    price,
			"fee":      fee,
			"date":     req.Date,
			"total":    round2(quantity * price),
		},
		Citations: []string{capability.SourcePortfolio},
	}, nil
}

// DividendWriter 记录分红收入。
type DividendWriter struct {
	broker BrokerClient
}

// NewDividendWriter 创建分红写入器。
func NewDividendWriter(b BrokerClient) *DividendWriter {
	return &DividendWriter{broker: b}
}

var _ capability.WriteHandler = (*DividendWriter)(nil)

func (w *DividendWriter) Prepare(_ context.Context, params capability.Params) (*capability.Prepared, error) {
	symbol := strings.ToUpper(strings.TrimSpace(params.String("symbol")))
	if symbol == "" {
		return nil, xerrors.New(capability.CodeCapabilityInvalidInput, "缺少分红标的")
	}
	amount, ok := params.Float("amount")
	if !ok || amount <= 0 {
		return nil, xerrors.New(capability.CodeCapabilityInvalidInput, "缺少有效的分红金额")
	}
	date := params.String("date")
	if date == "" {
		date = todayString()
	}

	prepared := capability.Params{
		"symbol": symbol,
		"amount": round2(amount),
		"date":   date,
	}
	summary := fmt.Sprintf("Record a $%.2f dividend from %s on %s", amount, symbol, date)
	return &capability.Prepared{Params: prepared, Summary: summary}, nil
}

func (w *DividendWriter) Commit(ctx context.Context, params capability.Params) (*capability.Result, error) {
	amount, _ := params.Float("amount")
	req := broker.ImportRequest{
		Type:      broker.ActivityDividend,
		Symbol:    params.String("symbol"),
		Quantity:  1,
		UnitPrice: amount,
		Currency:  "USD",
		Date:      params.String("date"),
	}
	if err := w.broker.Import(ctx, req); err != nil {
		return nil, err
	}
	return &capability.Result{
		Data: map[string]any{
			"recorded": true,
			"type":     broker.ActivityDividend,
			"symbol":   req.Symbol,
			"amount":   amount,
			"date":     req.Date,
		},
		Citations: []string{capability.SourcePortfolio},
	}, nil
}

// CashWriter 记录现金利息收入。
type CashWriter struct {
	broker BrokerClient
}

// NewCashWriter 创建现金写入器。
func NewCashWriter(b BrokerClient) *CashWriter {
	return &CashWriter{broker: b}
}

var _ capability.WriteHandler = (*CashWriter)(nil)

func (w *CashWriter) Prepare(_ context.Context, params capability.Params) (*capability.Prepared, error) {
	amount, ok := params.Float("amount")
	if !ok || amount <= 0 {
		return nil, xerrors.New(capability.CodeCapabilityInvalidInput, "缺少有效的金额")
	}
	date := params.String("date")
	if date == "" {
		date = todayString()
	}

	prepared := capability.Params{
		"amount": round2(amount),
		"date":   date,
	}
	summary := fmt.Sprintf("Record $%.2f of interest income on %s", amount, date)
	return &capability.Prepared{Params: prepared, Summary: summary}, nil
}

func (w *CashWriter) Commit(ctx context.Context, params capability.Params) (*capability.Result, error) {
	amount, _ := params.Float("amount")
	req := broker.ImportRequest{
		Type:      broker.ActivityInterest,
		Symbol:    "CASH",
		Quantity:  1,
		UnitPrice: amount,
		Currency:  "USD",
		Date:      params.String("date"),
	}
	if err := w.broker.Import(ctx, req); err != nil {
		return nil, err
	}
	return &capability.Result{
		Data: map[string]any{
			"recorded": true,
			"type":     broker.ActivityInterest,
			"amount":   amount,
			"date":     req.Date,
		},
		Citations: []string{capability.SourcePortfolio},
	}, nil
}
