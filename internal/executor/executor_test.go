package executor

import (
	"context"
	"testing"
	"time"

	"WealthPilot/internal/capability"
)

type stubWriter struct {
	prepared  *capability.Prepared
	commits   int
	commitErr error
}

func (w *stubWriter) Prepare(_ context.Context, _ capability.Params) (*capability.Prepared, error) {
	return w.prepared, nil
}

func (w *stubWriter) Commit(_ context.Context, params capability.Params) (*capability.Result, error) {
	w.commits++
	if w.commitErr != nil {
		return nil, w.commitErr
	}
	return &capability.Result{
		Data:      map[string]any{"recorded": true, "symbol": params.String("symbol")},
		Citations: []string{capability.SourcePortfolio},
	}, nil
}

func okHandler(payload map[string]any) capability.HandlerFunc {
	return func(_ context.Context, _ capability.Params) (*capability.Result, error) {
		return &capability.Result{Data: payload}, nil
	}
}

func buildRegistry(t *testing.T, descs ...capability.Descriptor) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	for _, desc := range descs {
		if err := reg.Register(desc); err != nil {
			t.Fatalf("register %s: %v", desc.Name, err)
		}
	}
	return reg
}

func TestRunPropagatesDegradedFlag(t *testing.T) {
	reg := buildRegistry(t, capability.Descriptor{
		Name: "market_data",
		Handler: capability.HandlerFunc(func(_ context.Context, _ capability.Params) (*capability.Result, error) {
			return &capability.Result{
				Data:      map[string]any{"fallback": true},
				Citations: []string{capability.SourceFallback},
				Degraded:  true,
			}, nil
		}),
	})
	exec := New(reg)

	inv := exec.Run(context.Background(), "market_data", nil)
	if !inv.Success {
		t.Fatalf("degraded data is still a successful call: %s", inv.ErrorMessage)
	}
	if !inv.Degraded {
		t.Fatal("invocation must record fallback dataset use")
	}
}

func TestRunUnknownCapability(t *testing.T) {
	exec := New(buildRegistry(t))

	inv := exec.Run(context.Background(), "nope", nil)
	if inv.Success {
		t.Fatalf("unknown capability must fail")
	}
	if inv.ErrorCode != capability.CodeCapabilityNotFound {
		t.Fatalf("ErrorCode = %s, want %s", inv.ErrorCode, capability.CodeCapabilityNotFound)
	}
}

func TestRunPanicIsolation(t *testing.T) {
	reg := buildRegistry(t, capability.Descriptor{
		Name: "explode",
		Handler: capability.HandlerFunc(func(_ context.Context, _ capability.Params) (*capability.Result, error) {
			panic("boom")
		}),
	})
	exec := New(reg)

	inv := exec.Run(context.Background(), "explode", nil)
	if inv.Success {
		t.Fatalf("panicking handler must be reported as failed")
	}
	if inv.ErrorCode != capability.CodeCapabilityPanic {
		t.Fatalf("ErrorCode = %s, want %s", inv.ErrorCode, capability.CodeCapabilityPanic)
	}
}

func TestRunTimeout(t *testing.T) {
	reg := buildRegistry(t, capability.Descriptor{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Handler: capability.HandlerFunc(func(ctx context.Context, _ capability.Params) (*capability.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	exec := New(reg)

	inv := exec.Run(context.Background(), "slow", nil)
	if inv.Success {
		t.Fatalf("timed-out handler must fail")
	}
	if inv.ErrorCode != capability.CodeCapabilityTimeout {
		t.Fatalf("ErrorCode = %s, want %s", inv.ErrorCode, capability.CodeCapabilityTimeout)
	}
}

func TestRunRejectsMutatingCapability(t *testing.T) {
	reg := buildRegistry(t, capability.Descriptor{
		Name:     "record_buy",
		Mutating: true,
		Writer:   &stubWriter{},
	})
	exec := New(reg)

	inv := exec.Run(context.Background(), "record_buy", nil)
	if inv.Success {
		t.Fatalf("Run must refuse mutating capabilities")
	}
	if inv.ErrorCode != capability.CodeCapabilityInvalidInput {
		t.Fatalf("ErrorCode = %s, want %s", inv.ErrorCode, capability.CodeCapabilityInvalidInput)
	}
}

func TestRunAllPreservesOrder(t *testing.T) {
	reg := buildRegistry(t,
		capability.Descriptor{Name: "first", Handler: capability.HandlerFunc(func(_ context.Context, _ capability.Params) (*capability.Result, error) {
			time.Sleep(30 * time.Millisecond)
			return &capability.Result{Data: map[string]any{"n": 1}}, nil
		})},
		capability.Descriptor{Name: "second", Handler: okHandler(map[string]any{"n": 2})},
		capability.Descriptor{Name: "third", Handler: okHandler(map[string]any{"n": 3})},
	)
	exec := New(reg)

	invs := exec.RunAll(context.Background(), []string{"first", "second", "third"}, nil)
	if len(invs) != 3 {
		t.Fatalf("got %d invocations, want 3", len(invs))
	}
	for i, name := range []string{"first", "second", "third"} {
		if invs[i].Capability != name {
			t.Fatalf("invs[%d] = %s, want %s", i, invs[i].Capability, name)
		}
		if !invs[i].Success {
			t.Fatalf("%s failed: %s", name, invs[i].ErrorMessage)
		}
	}
}

func TestRunAllOneFailureDoesNotBlockOthers(t *testing.T) {
	reg := buildRegistry(t,
		capability.Descriptor{Name: "ok", Handler: okHandler(map[string]any{"ok": true})},
		capability.Descriptor{Name: "bad", Handler: capability.HandlerFunc(func(_ context.Context, _ capability.Params) (*capability.Result, error) {
			panic("boom")
		})},
	)
	exec := New(reg)

	invs := exec.RunAll(context.Background(), []string{"ok", "bad"}, nil)
	if !invs[0].Success {
		t.Fatalf("healthy capability should succeed alongside a panicking one")
	}
	if invs[1].Success {
		t.Fatalf("panicking capability should fail")
	}
}

func TestCommitAndPrepare(t *testing.T) {
	writer := &stubWriter{prepared: &capability.Prepared{
		Params:  capability.Params{"symbol": "AAPL"},
		Summary: "Buy 5 shares of AAPL",
	}}
	reg := buildRegistry(t, capability.Descriptor{Name: "record_buy", Mutating: true, Writer: writer})
	exec := New(reg)

	prepared, err := exec.Prepare(context.Background(), "record_buy", capability.Params{"symbol": "AAPL"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if prepared.Summary != "Buy 5 shares of AAPL" {
		t.Fatalf("Summary = %q", prepared.Summary)
	}

	inv := exec.Commit(context.Background(), "record_buy", prepared.Params)
	if !inv.Success {
		t.Fatalf("commit failed: %s", inv.ErrorMessage)
	}
	if writer.commits != 1 {
		t.Fatalf("commits = %d, want 1", writer.commits)
	}
	if inv.Payload["symbol"] != "AAPL" {
		t.Fatalf("payload = %v", inv.Payload)
	}
}

func TestHighReliability(t *testing.T) {
	reg := buildRegistry(t,
		capability.Descriptor{Name: "tax_estimate", HighReliability: true, Handler: okHandler(nil)},
		capability.Descriptor{Name: "market_data", Handler: okHandler(nil)},
	)
	exec := New(reg)

	if !exec.HighReliability("tax_estimate") {
		t.Fatalf("tax_estimate should be high reliability")
	}
	if exec.HighReliability("market_data") {
		t.Fatalf("market_data should not be high reliability")
	}
	if exec.HighReliability("missing") {
		t.Fatalf("unknown capabilities default to low reliability")
	}
}
