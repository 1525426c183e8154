package handlers

import (
	"context"
	"time"

	"WealthPilot/internal/benchmark"
	"WealthPilot/internal/broker"
	"WealthPilot/internal/capability"
	"WealthPilot/internal/cities"
	"WealthPilot/internal/market"
)

// 能力名称是注册表与路由表之间的契约。
const (
	CapPortfolioAnalysis     = "portfolio_analysis"
	CapTransactionQuery      = "transaction_query"
	CapTransactionCategorize = "transaction_categorize"
	CapComplianceCheck       = "compliance_check"
	CapTaxEstimate           = "tax_estimate"
	CapMarketData            = "market_data"
	CapMarketOverview        = "market_overview"
	CapCitySnapshot          = "city_snapshot"
	CapRecordBuy             = "record_buy"
	CapRecordSell            = "record_sell"
	CapRecordDividend        = "record_dividend"
	CapRecordCash            = "record_cash"
)

// BrokerClient 抽象持仓后端,便于测试替换。
type BrokerClient interface {
	Holdings(ctx context.Context) ([]broker.Holding, bool, error)
	Activities(ctx context.Context, symbol string, limit int) ([]broker.Activity, bool, error)
	Import(ctx context.Context, req broker.ImportRequest) error
}

// MarketClient 抽象行情服务。
type MarketClient interface {
	Quote(ctx context.Context, symbol string) (*market.Quote, error)
	Overview(ctx context.Context) ([]market.Quote, error)
}

// CityClient 抽象城市数据服务。
type CityClient interface {
	Snapshot(ctx context.Context, cityName string) (*cities.Snapshot, error)
}

// Config 汇总注册全部能力所需的依赖与开关。
type Config struct {
	Broker            BrokerClient
	Market            MarketClient
	Cities            CityClient
	Benchmark         benchmark.Provider
	RealEstateEnabled bool
	LargeOrderHint    float64
}

// RegisterAll 把全部领域能力登记到注册表。
// 本地规则引擎(合规、税务、归类)划入高可靠集合,校验层据此加分。
func RegisterAll(reg *capability.Registry, cfg Config) error {
	descriptors := []capability.Descriptor{
		{Name: CapPortfolioAnalysis, Handler: NewPortfolioHandler(cfg.Broker, cfg.Market, cfg.Benchmark)},
		{Name: CapTransactionQuery, Handler: NewTransactionQueryHandler(cfg.Broker)},
		{Name: CapTransactionCategorize, HighReliability: true, Handler: NewCategorizeHandler(cfg.Broker)},
		{Name: CapComplianceCheck, HighReliability: true, Handler: NewComplianceHandler(cfg.Broker, cfg.Market)},
		{Name: CapTaxEstimate, HighReliability: true, Handler: NewTaxHandler(cfg.Broker)},
		{Name: CapMarketData, Handler: NewMarketHandler(cfg.Market)},
		{Name: CapMarketOverview, Handler: NewMarketOverviewHandler(cfg.Market)},
		{Name: CapCitySnapshot, Handler: NewCityHandler(cfg.Cities, cfg.RealEstateEnabled)},
		{Name: CapRecordBuy, Mutating: true, Writer: NewTradeWriter(cfg.Broker, cfg.Market, broker.ActivityBuy, cfg.LargeOrderHint)},
		{Name: CapRecordSell, Mutating: true, Writer: NewTradeWriter(cfg.Broker, cfg.Market, broker.ActivitySell, cfg.LargeOrderHint)},
		{Name: CapRecordDividend, Mutating: true, Writer: NewDividendWriter(cfg.Broker)},
		{Name: CapRecordCash, Mutating: true, Writer: NewCashWriter(cfg.Broker)},
	}
	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

func todayString() string {
	return time.Now().UTC().Format("2006-01-02")
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
