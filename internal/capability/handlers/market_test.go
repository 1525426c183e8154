package handlers

import (
	"context"
	"testing"

	"WealthPilot/internal/capability"
	"WealthPilot/internal/market"
)

func TestMarketHandlerDefaultsToSPY(t *testing.T) {
	m := &stubMarket{quotes: map[string]*market.Quote{
		"SPY": {Symbol: "SPY", Price: 502.1},
	}}
	h := NewMarketHandler(m)

	result, err := h.Handle(context.Background(), capability.Params{})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	quote, ok := result.Data["quote"].(*market.Quote)
	if !ok || quote.Symbol != "SPY" {
		t.Fatalf("quote = %v", result.Data["quote"])
	}
	if len(result.Citations) != 1 || result.Citations[0] != capability.SourceMarket {
		t.Fatalf("citations = %v", result.Citations)
	}
}

func TestMarketHandlerFallbackQuoteIsCited(t *testing.T) {
	m := &stubMarket{quotes: map[string]*market.Quote{
		"AAPL": {Symbol: "AAPL", Price: 185.0, Fallback: true},
	}}
	h := NewMarketHandler(m)

	result, err := h.Handle(context.Background(), capability.Params{"symbol": "AAPL"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(result.Citations) != 1 || result.Citations[0] != capability.SourceFallback {
		t.Fatalf("citations = %v, want fallback source", result.Citations)
	}
	if result.Data["fallback"] != true {
		t.Fatalf("fallback = %v", result.Data["fallback"])
	}
	if !result.Degraded {
		t.Fatal("fallback quote must mark the result degraded")
	}
}

func TestMarketOverviewMixedFallback(t *testing.T) {
	m := &stubMarket{quotes: map[string]*market.Quote{
		"SPY": {Symbol: "SPY", Price: 502.1},
		"QQQ": {Symbol: "QQQ", Price: 430.5, Fallback: true},
	}}
	h := NewMarketOverviewHandler(m)

	result, err := h.Handle(context.Background(), capability.Params{})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Data["count"] != 2 {
		t.Fatalf("count = %v", result.Data["count"])
	}
	// 混合来源时同时标注实时与降级两种引用。
	if len(result.Citations) != 2 ||
		result.Citations[0] != capability.SourceMarket ||
		result.Citations[1] != capability.SourceFallback {
		t.Fatalf("citations = %v", result.Citations)
	}
}
