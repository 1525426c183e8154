package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"WealthPilot/internal/broker"
	"WealthPilot/internal/capability"
	xerrors "WealthPilot/internal/errors"
	"WealthPilot/internal/market"
)

type stubBroker struct {
	holdings   []broker.Holding
	activities []broker.Activity
	imports    []broker.ImportRequest
	importErr  error
	fallback   bool
}

func (s *stubBroker) Holdings(_ context.Context) ([]broker.Holding, bool, error) {
	return s.holdings, s.fallback, nil
}

func (s *stubBroker) Activities(_ context.Context, _ string, _ int) ([]broker.Activity, bool, error) {
	return s.activities, s.fallback, nil
}

func (s *stubBroker) Import(_ context.Context, req broker.ImportRequest) error {
	if s.importErr != nil {
		return s.importErr
	}
	s.imports = append(s.imports, req)
	return nil
}

type stubMarket struct {
	quotes   map[string]*market.Quote
	quoteErr error
}

func (s *stubMarket) Quote(_ context.Context, symbol string) (*market.Quote, error) {
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	if q, ok := s.quotes[symbol]; ok {
		return q, nil
	}
	return nil, errors.New("no quote")
}

func (s *stubMarket) Overview(_ context.Context) ([]market.Quote, error) {
	out := make([]market.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, *q)
	}
	return out, nil
}

func TestTradeWriterPrepareRequiresSymbolAndQuantity(t *testing.T) {
	w := NewTradeWriter(&stubBroker{}, &stubMarket{}, broker.ActivityBuy, 0)
	ctx := context.Background()

	_, err := w.Prepare(ctx, capability.Params{"quantity": 5.0})
	if xerrors.CodeOf(err) != capability.CodeCapabilityInvalidInput {
		t.Fatalf("missing symbol: code = %s", xerrors.CodeOf(err))
	}

	_, err = w.Prepare(ctx, capability.Params{"symbol": "AAPL"})
	if xerrors.CodeOf(err) != capability.CodeCapabilityInvalidInput {
		t.Fatalf("missing quantity: code = %s", xerrors.CodeOf(err))
	}
}

func TestTradeWriterPrepareMaterialisesPrice(t *testing.T) {
	m := &stubMarket{quotes: map[string]*market.Quote{
		"AAPL": {Symbol: "AAPL", Price: 185.0},
	}}
	w := NewTradeWriter(&stubBroker{}, m, broker.ActivityBuy, 0)

	prepared, err := w.Prepare(context.Background(), capability.Params{"symbol": "aapl", "quantity": 5.0})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if prepared.Params.String("symbol") != "AAPL" {
		t.Fatalf("symbol = %q, want upper-cased AAPL", prepared.Params.String("symbol"))
	}
	if price, _ := prepared.Params.Float("price"); price != 185.0 {
		t.Fatalf("price = %v, want quote price", price)
	}
	if total, _ := prepared.Params.Float("total"); total != 925.0 {
		t.Fatalf("total = %v, want 925", total)
	}
	if !strings.Contains(prepared.Summary, "market price") {
		t.Fatalf("summary should name the price source: %q", prepared.Summary)
	}
	if len(prepared.Warnings) != 0 {
		t.Fatalf("small order should carry no warnings: %v", prepared.Warnings)
	}
}

func TestTradeWriterPrepareQuoteUnavailable(t *testing.T) {
	w := NewTradeWriter(&stubBroker{}, &stubMarket{quoteErr: errors.New("down")}, broker.ActivityBuy, 0)

	_, err := w.Prepare(context.Background(), capability.Params{"symbol": "AAPL", "quantity": 5.0})
	if xerrors.CodeOf(err) != capability.CodeExternalSourceUnavailable {
		t.Fatalf("code = %s, want %s", xerrors.CodeOf(err), capability.CodeExternalSourceUnavailable)
	}
}

func TestTradeWriterLargeOrderWarning(t *testing.T) {
	w := NewTradeWriter(&stubBroker{}, &stubMarket{}, broker.ActivitySell, 100000)

	prepared, err := w.Prepare(context.Background(), capability.Params{
		"symbol":   "NVDA",
		"quantity": 200.0,
		"price":    900.0,
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(prepared.Warnings) != 1 || !strings.Contains(prepared.Warnings[0], "Large order") {
		t.Fatalf("warnings = %v, want a large order warning", prepared.Warnings)
	}
	if !strings.HasPrefix(prepared.Summary, "Sell") {
		t.Fatalf("summary = %q, want a sell summary", prepared.Summary)
	}
}

func TestTradeWriterCommitUsesStoredParams(t *testing.T) {
	b := &stubBroker{}
	w := NewTradeWriter(b, &stubMarket{}, broker.ActivityBuy, 0)

	result, err := w.Commit(context.Background(), capability.Params{
		"symbol":   "AAPL",
		"quantity": 5.0,
		"price":    185.0,
		"fee":      1.0,
		"date":     "2026-08-27",
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(b.imports) != 1 {
		t.Fatalf("imports = %d, want 1", len(b.imports))
	}
	req := b.imports[0]
	if req.Type != broker.ActivityBuy || req.Symbol != "AAPL" || req.Quantity != 5 || req.UnitPrice != 185 {
		t.Fatalf("import request = %+v", req)
	}
	if req.Date != "2026-08-27" {
		t.Fatalf("date = %q, commit must not re-derive the date", req.Date)
	}
	if result.Data["recorded"] != true {
		t.Fatalf("payload = %v", result.Data)
	}
}

func TestDividendWriterRoundTrip(t *testing.T) {
	b := &stubBroker{}
	w := NewDividendWriter(b)
	ctx := context.Background()

	prepared, err := w.Prepare(ctx, capability.Params{"symbol": "AAPL", "amount": 25.0})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !strings.Contains(prepared.Summary, "$25.00 dividend from AAPL") {
		t.Fatalf("summary = %q", prepared.Summary)
	}

	if _, err := w.Commit(ctx, prepared.Params); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if b.imports[0].Type != broker.ActivityDividend || b.imports[0].UnitPrice != 25 {
		t.Fatalf("import request = %+v", b.imports[0])
	}
}

func TestCashWriterRequiresAmount(t *testing.T) {
	w := NewCashWriter(&stubBroker{})

	_, err := w.Prepare(context.Background(), capability.Params{})
	if xerrors.CodeOf(err) != capability.CodeCapabilityInvalidInput {
		t.Fatalf("code = %s, want %s", xerrors.CodeOf(err), capability.CodeCapabilityInvalidInput)
	}
}
