package router

import (
	"testing"

	"WealthPilot/internal/intent"
	"WealthPilot/internal/session"
)

func TestRouteReadLabels(t *testing.T) {
	r := New(Config{})

	decision := r.Route(intent.LabelPerformance, nil)
	if decision.Kind != KindCapabilities {
		t.Fatalf("Kind = %s, want %s", decision.Kind, KindCapabilities)
	}
	if len(decision.Capabilities) != 1 || decision.Capabilities[0] != "portfolio_analysis" {
		t.Fatalf("Capabilities = %v", decision.Capabilities)
	}
}

func TestRouteCompoundCapabilityOrder(t *testing.T) {
	r := New(Config{})

	decision := r.Route(intent.LabelFullPosition, nil)
	want := []string{"portfolio_analysis", "compliance_check", "transaction_query"}
	if len(decision.Capabilities) != len(want) {
		t.Fatalf("Capabilities = %v, want %v", decision.Capabilities, want)
	}
	for i := range want {
		if decision.Capabilities[i] != want[i] {
			t.Fatalf("Capabilities[%d] = %s, want %s", i, decision.Capabilities[i], want[i])
		}
	}
}

func TestRouteWriteRequiresConfirmation(t *testing.T) {
	r := New(Config{})

	decision := r.Route(intent.LabelBuy, nil)
	if decision.Kind != KindPrepareWrite || !decision.RequiresConfirmation {
		t.Fatalf("decision = %+v", decision)
	}
}

func TestRouteRefuseAndFollowup(t *testing.T) {
	r := New(Config{})

	if d := r.Route(intent.LabelRefuse, nil); d.Kind != KindRefuse {
		t.Fatalf("refuse kind = %s", d.Kind)
	}
	if d := r.Route(intent.LabelFollowup, nil); d.Kind != KindFollowup {
		t.Fatalf("followup kind = %s", d.Kind)
	}
}

func TestRouteUnknownLabelFallsBackToDefault(t *testing.T) {
	r := New(Config{})

	decision := r.Route(intent.Label("nonsense"), nil)
	if decision.Kind != KindCapabilities || decision.Label != intent.DefaultLabel {
		t.Fatalf("decision = %+v", decision)
	}
}

func awaitingSession() *session.Session {
	sess := session.New("s1")
	sess.SetPendingWrite(&session.PendingWrite{Capability: "record_buy", Summary: "Buy 5 shares of AAPL"})
	return sess
}

func TestRouteAwaitingConfirmation(t *testing.T) {
	r := New(Config{})
	sess := awaitingSession()

	if d := r.Route(intent.LabelConfirm, sess); d.Kind != KindConfirm {
		t.Fatalf("confirm kind = %s", d.Kind)
	}
	if d := r.Route(intent.LabelCancel, sess); d.Kind != KindCancel {
		t.Fatalf("cancel kind = %s", d.Kind)
	}
}

func TestRouteRemindPolicyBlocksUnrelatedQueries(t *testing.T) {
	r := New(Config{PendingWritePolicy: PolicyRemind})

	decision := r.Route(intent.LabelMarket, awaitingSession())
	if decision.Kind != KindRemind {
		t.Fatalf("Kind = %s, want %s", decision.Kind, KindRemind)
	}
}

func TestRouteAnswerPolicyAnswersWithReminder(t *testing.T) {
	r := New(Config{PendingWritePolicy: PolicyAnswer})

	decision := r.Route(intent.LabelMarket, awaitingSession())
	if decision.Kind != KindCapabilities {
		t.Fatalf("Kind = %s, want %s", decision.Kind, KindCapabilities)
	}
	if !decision.RemindAfter {
		t.Fatalf("answer policy must append a reminder")
	}
}

func TestRouteConfirmWithoutPendingStillRoutesToGate(t *testing.T) {
	r := New(Config{})

	// 门控层负责产生 CONFIRMATION_MISMATCH,路由只分发。
	if d := r.Route(intent.LabelConfirm, session.New("s1")); d.Kind != KindConfirm {
		t.Fatalf("Kind = %s, want %s", d.Kind, KindConfirm)
	}
}
