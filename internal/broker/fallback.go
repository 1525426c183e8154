package broker

// 内置参考组合。持仓后端不可达时用于维持只读回合可答。
func fallbackHoldings() []Holding {
	return []Holding{
		{Symbol: "AAPL", Name: "Apple Inc.", Quantity: 40, CostBasis: 7400.00, AllocationPct: 24.9, Currency: "USD", AssetClass: "EQUITY"},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Quantity: 18, CostBasis: 6930.00, AllocationPct: 21.6, Currency: "USD", AssetClass: "EQUITY"},
		{Symbol: "VTI", Name: "Vanguard Total Stock Market ETF", Quantity: 25, CostBasis: 6850.00, AllocationPct: 20.2, Currency: "USD", AssetClass: "EQUITY"},
		{Symbol: "NVDA", Name: "NVIDIA Corporation", Quantity: 35, CostBasis: 3920.00, AllocationPct: 12.4, Currency: "USD", AssetClass: "EQUITY"},
		{Symbol: "AMZN", Name: "Amazon.com Inc.", Quantity: 20, CostBasis: 3710.00, AllocationPct: 11.7, Currency: "USD", AssetClass: "EQUITY"},
		{Symbol: "BND", Name: "Vanguard Total Bond Market ETF", Quantity: 45, CostBasis: 3330.00, AllocationPct: 9.2, Currency: "USD", AssetClass: "FIXED_INCOME"},
	}
}

func fallbackActivities() []Activity {
	return []Activity{
		{Type: ActivityBuy, Symbol: "NVDA", Name: "NVIDIA Corporation", Quantity: 10, UnitPrice: 128.40, Currency: "USD", Date: "2026-07-14", Value: 1284.00},
		{Type: ActivityDividend, Symbol: "MSFT", Name: "Microsoft Corporation", Quantity: 18, UnitPrice: 0.83, Currency: "USD", Date: "2026-06-12", Value: 14.94},
		{Type: ActivityBuy, Symbol: "VTI", Name: "Vanguard Total Stock Market ETF", Quantity: 5, UnitPrice: 296.20, Currency: "USD", Date: "2026-05-02", Value: 1481.00},
		{Type: ActivitySell, Symbol: "AAPL", Name: "Apple Inc.", Quantity: 5, UnitPrice: 221.70, Fee: 1.00, Currency: "USD", Date: "2026-03-20", Value: 1108.50},
		{Type: ActivityBuy, Symbol: "BND", Name: "Vanguard Total Bond Market ETF", Quantity: 15, UnitPrice: 72.80, Currency: "USD", Date: "2026-02-09", Value: 1092.00},
		{Type: ActivityBuy, Symbol: "AAPL", Name: "Apple Inc.", Quantity: 45, UnitPrice: 182.50, Fee: 1.00, Currency: "USD", Date: "2026-01-06", Value: 8212.50},
	}
}
