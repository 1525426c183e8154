package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"WealthPilot/internal/capability"
	"WealthPilot/internal/capability/handlers"
	xerrors "WealthPilot/internal/errors"
	"WealthPilot/internal/executor"
	"WealthPilot/internal/gate"
	"WealthPilot/internal/intent"
	"WealthPilot/internal/router"
	"WealthPilot/internal/session"
	"WealthPilot/internal/synth"
	"WealthPilot/internal/verify"
)

// stubTradeWriter 模拟两阶段写入后端,记录提交次数。
type stubTradeWriter struct {
	commits int
}

func (w *stubTradeWriter) Prepare(_ context.Context, params capability.Params) (*capability.Prepared, error) {
	if params.String("symbol") == "" {
		return nil, xerrors.New(capability.CodeCapabilityInvalidInput, "missing symbol")
	}
	return &capability.Prepared{
		Params:  params.Clone(),
		Summary: "Buy shares as requested",
	}, nil
}

func (w *stubTradeWriter) Commit(_ context.Context, params capability.Params) (*capability.Result, error) {
	w.commits++
	return &capability.Result{
		Data:      map[string]any{"recorded": true, "symbol": params.String("symbol")},
		Citations: []string{capability.SourcePortfolio},
	}, nil
}

func portfolioStub(_ context.Context, _ capability.Params) (*capability.Result, error) {
	return &capability.Result{
		Data:      map[string]any{"total_value_usd": 12500.0, "holdings_count": 3},
		Citations: []string{capability.SourcePortfolio},
	}, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *stubTradeWriter) {
	t.Helper()

	writer := &stubTradeWriter{}
	reg := capability.NewRegistry()
	reg.MustRegister(capability.Descriptor{
		Name:            "portfolio_analysis",
		HighReliability: true,
		Handler:         capability.HandlerFunc(portfolioStub),
	})
	reg.MustRegister(capability.Descriptor{
		Name:     "record_buy",
		Mutating: true,
		Writer:   writer,
	})

	exec := executor.New(reg)
	orch := New(Config{
		Store:       session.NewMemoryStore(0),
		Classifier:  intent.NewClassifier(intent.DefaultRuleTable(), nil, time.Second),
		Router:      router.New(router.Config{}),
		Executor:    exec,
		Gate:        gate.New(reg, exec),
		Verifier:    verify.New(exec.HighReliability),
		Synthesizer: synth.New(nil),
	})
	return orch, writer
}

func TestChatRejectsEmptyQuery(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	_, err := orch.Chat(context.Background(), Request{SessionID: "s1", Query: "   "})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("code = %s, want %s", xerrors.CodeOf(err), xerrors.CodeInvalidArgument)
	}
}

func TestChatReadFlow(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	resp, err := orch.Chat(context.Background(), Request{SessionID: "s1", Query: "how is my portfolio doing?"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.SessionID != "s1" {
		t.Fatalf("session = %q", resp.SessionID)
	}
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != "portfolio_analysis" {
		t.Fatalf("tools = %v", resp.ToolsUsed)
	}
	if len(resp.Citations) != 1 || resp.Citations[0] != capability.SourcePortfolio {
		t.Fatalf("citations = %v", resp.Citations)
	}
	if !resp.Verified || resp.Status != string(verify.StatusPass) {
		t.Fatalf("verified = %v, status = %q", resp.Verified, resp.Status)
	}
	if resp.AwaitingConfirmation {
		t.Fatal("read turn must not set awaiting confirmation")
	}
	if resp.Response == "" {
		t.Fatal("response text is empty")
	}
}

func TestChatGeneratesSessionID(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	resp, err := orch.Chat(context.Background(), Request{Query: "how is my portfolio doing?"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
}

func TestChatWriteFlowPrepareThenConfirm(t *testing.T) {
	orch, writer := newTestOrchestrator(t)
	ctx := context.Background()

	prep, err := orch.Chat(ctx, Request{SessionID: "w1", Query: "buy 5 shares of AAPL at $185"})
	if err != nil {
		t.Fatalf("prepare turn: %v", err)
	}
	if !prep.AwaitingConfirmation || prep.PendingWrite == nil {
		t.Fatalf("awaiting = %v, pending = %v", prep.AwaitingConfirmation, prep.PendingWrite)
	}
	if prep.PendingWrite.Capability != "record_buy" {
		t.Fatalf("pending capability = %q", prep.PendingWrite.Capability)
	}
	if !strings.Contains(prep.Response, `Reply "yes"`) {
		t.Fatalf("prepare response = %q", prep.Response)
	}
	if writer.commits != 0 {
		t.Fatalf("commits before confirmation = %d", writer.commits)
	}

	conf, err := orch.Chat(ctx, Request{SessionID: "w1", Query: "yes"})
	if err != nil {
		t.Fatalf("confirm turn: %v", err)
	}
	if writer.commits != 1 {
		t.Fatalf("commits = %d, want 1", writer.commits)
	}
	if conf.AwaitingConfirmation || conf.PendingWrite != nil {
		t.Fatal("confirmation must consume the pending write")
	}
	if !strings.Contains(conf.Response, "Transaction recorded.") {
		t.Fatalf("confirm response = %q", conf.Response)
	}
	// 确认后刷新持仓,两次调用都应出现在工具列表里。
	if len(conf.ToolsUsed) != 2 || conf.ToolsUsed[0] != "record_buy" || conf.ToolsUsed[1] != "portfolio_analysis" {
		t.Fatalf("tools = %v", conf.ToolsUsed)
	}

	// 重复确认不会再次执行。
	again, err := orch.Chat(ctx, Request{SessionID: "w1", Query: "yes"})
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if writer.commits != 1 {
		t.Fatalf("commits after duplicate confirm = %d, want 1", writer.commits)
	}
	if !strings.Contains(again.Response, "no action awaiting confirmation") {
		t.Fatalf("duplicate confirm response = %q", again.Response)
	}
}

func TestChatCancelKeepsNothing(t *testing.T) {
	orch, writer := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := orch.Chat(ctx, Request{SessionID: "c1", Query: "buy 5 shares of AAPL at $185"}); err != nil {
		t.Fatalf("prepare turn: %v", err)
	}

	resp, err := orch.Chat(ctx, Request{SessionID: "c1", Query: "no"})
	if err != nil {
		t.Fatalf("cancel turn: %v", err)
	}
	if writer.commits != 0 {
		t.Fatalf("commits = %d, want 0", writer.commits)
	}
	if resp.AwaitingConfirmation || resp.PendingWrite != nil {
		t.Fatal("cancel must clear the pending write")
	}
	if !strings.Contains(resp.Response, "Cancelled") {
		t.Fatalf("cancel response = %q", resp.Response)
	}
}

func TestChatConfirmWithoutPending(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	resp, err := orch.Chat(context.Background(), Request{SessionID: "f1", Query: "yes"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(resp.Response, "no action awaiting confirmation") {
		t.Fatalf("response = %q", resp.Response)
	}
}

func TestChatRefusesDestructiveRequests(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	resp, err := orch.Chat(context.Background(), Request{SessionID: "d1", Query: "delete all my transactions"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(resp.Response, "destructive") {
		t.Fatalf("response = %q", resp.Response)
	}
	if len(resp.ToolsUsed) != 0 {
		t.Fatalf("tools = %v, refusal must not call capabilities", resp.ToolsUsed)
	}
}

func TestChatFeatureDisabledCityIntent(t *testing.T) {
	reg := capability.NewRegistry()
	reg.MustRegister(capability.Descriptor{
		Name:    handlers.CapCitySnapshot,
		Handler: handlers.NewCityHandler(nil, false),
	})
	exec := executor.New(reg)
	orch := New(Config{
		Store:       session.NewMemoryStore(0),
		Classifier:  intent.NewClassifier(intent.DefaultRuleTable(), nil, time.Second),
		Router:      router.New(router.Config{}),
		Executor:    exec,
		Gate:        gate.New(reg, exec),
		Verifier:    verify.New(exec.HighReliability),
		Synthesizer: synth.New(nil),
	})

	resp, err := orch.Chat(context.Background(), Request{SessionID: "ft1", Query: "what is the cost of living in Austin?"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	// 功能关闭要的是明确标注的英文答复,而不是把处理器错误交给模板渲染。
	if resp.Response != featureDisabledReply {
		t.Fatalf("response = %q, want the labeled feature-disabled reply", resp.Response)
	}
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != handlers.CapCitySnapshot {
		t.Fatalf("tools = %v", resp.ToolsUsed)
	}
}

func TestChatRemindsDuringPendingWrite(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := orch.Chat(ctx, Request{SessionID: "r1", Query: "buy 5 shares of AAPL at $185"}); err != nil {
		t.Fatalf("prepare turn: %v", err)
	}

	// 默认策略下,待确认期间的无关查询只收到提醒,写操作保留。
	resp, err := orch.Chat(ctx, Request{SessionID: "r1", Query: "how is my portfolio doing?"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !resp.AwaitingConfirmation || resp.PendingWrite == nil {
		t.Fatal("reminder turn must keep the pending write")
	}
	if len(resp.ToolsUsed) != 0 {
		t.Fatalf("tools = %v, remind policy must not execute reads", resp.ToolsUsed)
	}
	if !strings.Contains(resp.Response, "Buy shares as requested") {
		t.Fatalf("response = %q, want the pending summary", resp.Response)
	}
}
