package gate

import (
	"context"
	"strings"
	"testing"

	"WealthPilot/internal/capability"
	xerrors "WealthPilot/internal/errors"
	"WealthPilot/internal/intent"
	"WealthPilot/internal/session"
)

type stubCommitter struct {
	prepared *capability.Prepared
	prepErr  error
	commits  int
}

func (s *stubCommitter) Prepare(_ context.Context, _ string, _ capability.Params) (*capability.Prepared, error) {
	if s.prepErr != nil {
		return nil, s.prepErr
	}
	return s.prepared, nil
}

func (s *stubCommitter) Commit(_ context.Context, name string, params capability.Params) capability.Invocation {
	s.commits++
	return capability.Invocation{
		Capability: name,
		Params:     params,
		Success:    true,
		Payload:    map[string]any{"recorded": true},
		Citations:  []string{capability.SourcePortfolio},
	}
}

type noopWriter struct{}

func (noopWriter) Prepare(_ context.Context, _ capability.Params) (*capability.Prepared, error) {
	return &capability.Prepared{}, nil
}

func (noopWriter) Commit(_ context.Context, _ capability.Params) (*capability.Result, error) {
	return &capability.Result{}, nil
}

func registryWith(t *testing.T, names ...string) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	for _, name := range names {
		if err := reg.Register(capability.Descriptor{Name: name, Mutating: true, Writer: noopWriter{}}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return reg
}

func TestPrepareAsksForMissingFields(t *testing.T) {
	exec := &stubCommitter{}
	g := New(registryWith(t, "record_buy"), exec)
	sess := session.New("s1")

	outcome, err := g.Prepare(context.Background(), sess, intent.LabelBuy, "buy some shares")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !strings.Contains(outcome.Message, "ticker symbol") {
		t.Fatalf("expected a clarifying question, got %q", outcome.Message)
	}
	if sess.PendingWrite != nil || sess.AwaitingConfirmation {
		t.Fatalf("missing fields must not register a pending write")
	}
}

func TestPrepareRegistersPendingWrite(t *testing.T) {
	exec := &stubCommitter{prepared: &capability.Prepared{
		Params:   capability.Params{"symbol": "AAPL", "quantity": 5.0, "price": 185.0},
		Summary:  "Buy 5 shares of AAPL at $185.00",
		Warnings: []string{"Large order: review carefully."},
	}}
	g := New(registryWith(t, "record_buy"), exec)
	sess := session.New("s1")

	outcome, err := g.Prepare(context.Background(), sess, intent.LabelBuy, "buy 5 shares of AAPL at $185")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if sess.PendingWrite == nil || !sess.AwaitingConfirmation {
		t.Fatalf("pending write not registered")
	}
	if sess.PendingWrite.Capability != "record_buy" {
		t.Fatalf("capability = %s", sess.PendingWrite.Capability)
	}
	if !strings.Contains(outcome.Message, "Buy 5 shares of AAPL") {
		t.Fatalf("message missing summary: %q", outcome.Message)
	}
	if !strings.Contains(outcome.Message, "Warning: Large order") {
		t.Fatalf("message missing warning: %q", outcome.Message)
	}
	if !strings.Contains(outcome.Message, `Reply "yes" to confirm`) {
		t.Fatalf("message missing confirmation prompt: %q", outcome.Message)
	}
}

func TestConfirmWithoutPendingWrite(t *testing.T) {
	g := New(registryWith(t, "record_buy"), &stubCommitter{})
	sess := session.New("s1")

	_, err := g.Confirm(context.Background(), sess)
	if xerrors.CodeOf(err) != CodeConfirmationMismatch {
		t.Fatalf("code = %s, want %s", xerrors.CodeOf(err), CodeConfirmationMismatch)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	exec := &stubCommitter{}
	g := New(registryWith(t, "record_buy"), exec)
	sess := session.New("s1")
	sess.SetPendingWrite(&session.PendingWrite{
		Capability: "record_buy",
		Params:     capability.Params{"symbol": "AAPL", "quantity": 5.0},
		Summary:    "Buy 5 shares of AAPL",
	})

	outcome, err := g.Confirm(context.Background(), sess)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if !outcome.Executed || outcome.Invocation == nil || !outcome.Invocation.Success {
		t.Fatalf("first confirm should execute: %+v", outcome)
	}
	if sess.PendingWrite != nil || sess.AwaitingConfirmation {
		t.Fatalf("pending write must be consumed by confirm")
	}

	if _, err := g.Confirm(context.Background(), sess); xerrors.CodeOf(err) != CodeConfirmationMismatch {
		t.Fatalf("second confirm code = %s, want %s", xerrors.CodeOf(err), CodeConfirmationMismatch)
	}
	if exec.commits != 1 {
		t.Fatalf("commits = %d, want exactly 1", exec.commits)
	}
}

func TestConfirmUnknownCapabilityIsCorruption(t *testing.T) {
	g := New(registryWith(t, "record_buy"), &stubCommitter{})
	sess := session.New("s1")
	sess.SetPendingWrite(&session.PendingWrite{Capability: "record_teleport"})

	_, err := g.Confirm(context.Background(), sess)
	if xerrors.CodeOf(err) != xerrors.CodeSessionCorrupted {
		t.Fatalf("code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeSessionCorrupted)
	}
}

func TestCancelClearsWithoutSideEffects(t *testing.T) {
	exec := &stubCommitter{}
	g := New(registryWith(t, "record_buy"), exec)
	sess := session.New("s1")
	sess.SetPendingWrite(&session.PendingWrite{
		Capability: "record_buy",
		Summary:    "Buy 5 shares of AAPL",
	})

	outcome, err := g.Cancel(sess)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !outcome.Cancelled {
		t.Fatalf("outcome not marked as cancelled")
	}
	if !strings.Contains(outcome.Message, "Nothing was recorded") {
		t.Fatalf("message = %q", outcome.Message)
	}
	if exec.commits != 0 {
		t.Fatalf("cancel must not commit, commits = %d", exec.commits)
	}
	if sess.PendingWrite != nil {
		t.Fatalf("pending write not cleared")
	}

	if _, err := g.Cancel(sess); xerrors.CodeOf(err) != CodeConfirmationMismatch {
		t.Fatalf("second cancel code = %s, want %s", xerrors.CodeOf(err), CodeConfirmationMismatch)
	}
}

func TestRemind(t *testing.T) {
	g := New(registryWith(t, "record_buy"), &stubCommitter{})
	sess := session.New("s1")

	if got := g.Remind(sess); got != "" {
		t.Fatalf("remind without pending write = %q", got)
	}

	sess.SetPendingWrite(&session.PendingWrite{Capability: "record_buy", Summary: "Buy 5 shares of AAPL"})
	reminder := g.Remind(sess)
	if !strings.Contains(reminder, "Buy 5 shares of AAPL") {
		t.Fatalf("reminder missing summary: %q", reminder)
	}
}
