package intent

import "testing"

func TestExtractTicker(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"buy 5 shares of AAPL at $185", "AAPL"},
		{"what's the price of nvda?", "NVDA"},
		{"sell 3 shares of XYZ", "XYZ"},
		{"sell 3 shares of xyz", ""},
		{"how is my portfolio doing", ""},
		{"show me my recent transactions", ""},
	}
	for _, tc := range cases {
		if got := ExtractTicker(tc.query); got != tc.want {
			t.Errorf("ExtractTicker(%q) = %q, want %q", tc.query, got, tc.want)
		}
	}
}

func TestExtractQuantityAndPrice(t *testing.T) {
	qty, ok := ExtractQuantity("buy 5 shares of AAPL at $185.50")
	if !ok || qty != 5 {
		t.Fatalf("quantity = %v (%v), want 5", qty, ok)
	}
	price, ok := ExtractPrice("buy 5 shares of AAPL at $185.50")
	if !ok || price != 185.50 {
		t.Fatalf("price = %v (%v), want 185.50", price, ok)
	}

	qty, ok = ExtractQuantity("sell 1,250 shares of VTI")
	if !ok || qty != 1250 {
		t.Fatalf("quantity with separator = %v (%v), want 1250", qty, ok)
	}

	if _, ok := ExtractQuantity("how is my portfolio"); ok {
		t.Fatalf("quantity extracted from query without one")
	}
}

func TestExtractFee(t *testing.T) {
	if fee := ExtractFee("buy 5 shares of AAPL with a fee of $2.50"); fee != 2.5 {
		t.Fatalf("fee = %v, want 2.5", fee)
	}
	if fee := ExtractFee("buy 5 shares of AAPL"); fee != 0 {
		t.Fatalf("fee without mention = %v, want 0", fee)
	}
}

func TestExtractDate(t *testing.T) {
	if got := ExtractDate("bought on 2024-03-07"); got != "2024-03-07" {
		t.Fatalf("ISO date = %q", got)
	}
	if got := ExtractDate("bought on 3/7/2024"); got != "2024-03-07" {
		t.Fatalf("US date = %q, want 2024-03-07", got)
	}
	if got := ExtractDate("bought recently"); got != "" {
		t.Fatalf("date without mention = %q, want empty", got)
	}
}

func TestExtractDividendAmount(t *testing.T) {
	amount, ok := ExtractDividendAmount("record a $25 dividend from AAPL")
	if !ok || amount != 25 {
		t.Fatalf("dividend amount = %v (%v), want 25", amount, ok)
	}
	amount, ok = ExtractDividendAmount("log a dividend of $13.75")
	if !ok || amount != 13.75 {
		t.Fatalf("dividend amount = %v (%v), want 13.75", amount, ok)
	}
}

func TestExtractCity(t *testing.T) {
	if got := ExtractCity("what's the cost of living in Austin?"); got != "Austin" {
		t.Fatalf("city = %q, want Austin", got)
	}
	if got := ExtractCity("how expensive is San Francisco?"); got != "San Francisco" {
		t.Fatalf("city = %q, want San Francisco", got)
	}
	if got := ExtractCity("how is my portfolio doing"); got != "" {
		t.Fatalf("city = %q, want empty", got)
	}
}
