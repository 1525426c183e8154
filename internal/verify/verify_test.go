package verify

import (
	"testing"

	"WealthPilot/internal/capability"
)

func highRel(name string) bool {
	return name == "compliance_check" || name == "tax_estimate"
}

func TestScoreConfidenceFormula(t *testing.T) {
	v := New(highRel)

	cases := []struct {
		name        string
		invocations []capability.Invocation
		want        float64
		status      Status
	}{
		{
			name:   "no tools baseline",
			want:   0.40,
			status: StatusFlag,
		},
		{
			name: "all bonuses clamp to ceiling",
			invocations: []capability.Invocation{
				{Capability: "compliance_check", Success: true, Citations: []string{capability.SourcePortfolio}},
			},
			want:   0.99,
			status: StatusPass,
		},
		{
			name: "single failure penalised once",
			invocations: []capability.Invocation{
				{Capability: "market_data", Success: false},
				{Capability: "transaction_query", Success: false},
			},
			want:   0.65,
			status: StatusFlag,
		},
		{
			name: "failure offset by citation",
			invocations: []capability.Invocation{
				{Capability: "market_data", Success: false},
				{Capability: "portfolio_analysis", Success: true, Citations: []string{capability.SourceMarket}},
			},
			want:   0.75,
			status: StatusPass,
		},
		{
			name: "degraded fallback data penalised once",
			invocations: []capability.Invocation{
				{Capability: "market_data", Success: true, Degraded: true, Citations: []string{capability.SourceFallback}},
				{Capability: "transaction_query", Success: true, Degraded: true, Citations: []string{capability.SourceFallback}},
			},
			want:   0.85,
			status: StatusPass,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := v.Score(tc.invocations)
			if diff := report.Confidence - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("Confidence = %v, want %v", report.Confidence, tc.want)
			}
			if report.Status != tc.status {
				t.Fatalf("Status = %s, want %s", report.Status, tc.status)
			}
			if !report.Verified {
				t.Fatalf("Score must not fail verification before text inspection")
			}
		})
	}
}

func TestScoreFallbackDataLowersConfidence(t *testing.T) {
	v := New(highRel)

	live := v.Score([]capability.Invocation{
		{Capability: "market_data", Success: true, Citations: []string{capability.SourceMarket}},
	})
	fallback := v.Score([]capability.Invocation{
		{Capability: "market_data", Success: true, Degraded: true, Citations: []string{capability.SourceFallback}},
	})

	if fallback.Confidence >= live.Confidence {
		t.Fatalf("fallback confidence = %v, live = %v; degraded data must score lower",
			fallback.Confidence, live.Confidence)
	}
	// 降级只是降分,回合照常产出回复。
	if fallback.Status == StatusEscalate {
		t.Fatalf("fallback data must not escalate on its own, got %s", fallback.Status)
	}
}

func TestInspectNumericClaimWithoutCitation(t *testing.T) {
	v := New(nil)
	invs := []capability.Invocation{{Capability: "portfolio_analysis", Success: true}}

	report := v.Verify("Your portfolio gained $5,000 this year.", invs)
	if report.Verified {
		t.Fatalf("numeric claim without citation must fail verification")
	}
	if len(report.Flags) == 0 {
		t.Fatalf("expected a flag for the uncited numeric claim")
	}
	if report.Status != StatusFlag {
		t.Fatalf("Status = %s, want %s", report.Status, StatusFlag)
	}
}

func TestInspectNumbersCoveredByCitations(t *testing.T) {
	v := New(nil)
	invs := []capability.Invocation{{
		Capability: "portfolio_analysis",
		Success:    true,
		Citations:  []string{capability.SourcePortfolio},
	}}

	report := v.Verify("Your portfolio gained $5,000 this year [live portfolio data].", invs)
	if !report.Verified {
		t.Fatalf("cited numbers should pass verification, flags: %v", report.Flags)
	}
}

func TestInspectDatesAreNotNumericClaims(t *testing.T) {
	v := New(nil)
	invs := []capability.Invocation{{Capability: "transaction_query", Success: true}}

	report := v.Verify("Your last recorded activity was on 2024-03-07.", invs)
	if !report.Verified {
		t.Fatalf("a bare date must not count as a numeric claim, flags: %v", report.Flags)
	}
}

func TestInspectBlockedPhrase(t *testing.T) {
	v := New(nil)

	report := v.Verify("This fund has a guaranteed return.", nil)
	if report.Verified {
		t.Fatalf("blocked phrase must fail verification")
	}
	found := false
	for _, f := range report.Flags {
		if f == "blocked phrase: guaranteed return" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected blocked phrase flag, got %v", report.Flags)
	}
}

func TestInspectBlockedPhraseWithNearbyDisclaimer(t *testing.T) {
	v := New(nil)

	text := "Some people describe bonds as a guaranteed return, but that framing is misleading. " +
		"This is not financial advice."
	report := v.Verify(text, nil)
	for _, f := range report.Flags {
		if f == "blocked phrase: guaranteed return" {
			t.Fatalf("disclaimer within proximity should suppress the flag")
		}
	}
}

func TestCitationsDeduplicated(t *testing.T) {
	invs := []capability.Invocation{
		{Citations: []string{capability.SourcePortfolio, capability.SourceMarket}},
		{Citations: []string{capability.SourceMarket}},
	}
	citations := Citations(invs)
	if len(citations) != 2 {
		t.Fatalf("Citations = %v, want 2 unique entries", citations)
	}
	if citations[0] != capability.SourcePortfolio || citations[1] != capability.SourceMarket {
		t.Fatalf("Citations order changed: %v", citations)
	}
}
