package orchestrator

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"WealthPilot/internal/capability"
	"WealthPilot/internal/capability/handlers"
	xerrors "WealthPilot/internal/errors"
	"WealthPilot/internal/executor"
	"WealthPilot/internal/gate"
	"WealthPilot/internal/intent"
	"WealthPilot/internal/observability/metrics"
	"WealthPilot/internal/router"
	"WealthPilot/internal/session"
	"WealthPilot/internal/storage"
	"WealthPilot/internal/synth"
	"WealthPilot/internal/verify"
	"WealthPilot/pkg/logger"
)

const defaultTurnTimeout = 60 * time.Second

// featureDisabledReply 是功能开关关闭时的固定英文答复。
const featureDisabledReply = "City and real-estate lookups are disabled on this deployment."

// Request 是一次对话回合的输入。
type Request struct {
	SessionID string
	Query     string
}

// Response 是一次对话回合的完整输出。
type Response struct {
	SessionID            string                `json:"session_id"`
	Response             string                `json:"response"`
	ConfidenceScore      float64               `json:"confidence_score"`
	Verified             bool                  `json:"verified"`
	Status               string                `json:"status"`
	AwaitingConfirmation bool                  `json:"awaiting_confirmation"`
	PendingWrite         *session.PendingWrite `json:"pending_write"`
	ToolsUsed            []string              `json:"tools_used"`
	Citations            []string              `json:"citations"`
	LatencySeconds       float64               `json:"latency_seconds"`
}

// Orchestrator 驱动单个回合的完整管线:
// 分类 → 路由 → 执行 → 校验 → 渲染,并维护会话状态。
type Orchestrator struct {
	store       session.Store
	guard       *session.Guard
	classifier  *intent.Classifier
	router      *router.Router
	exec        *executor.Executor
	gate        *gate.Gate
	verifier    *verify.Verifier
	synthesizer *synth.Synthesizer
	invocations storage.InvocationRepository
	turnTimeout time.Duration
}

// Config 汇总编排器的全部依赖。
type Config struct {
	Store       session.Store
	Classifier  *intent.Classifier
	Router      *router.Router
	Executor    *executor.Executor
	Gate        *gate.Gate
	Verifier    *verify.Verifier
	Synthesizer *synth.Synthesizer
	Invocations storage.InvocationRepository
	TurnTimeout time.Duration
}

// New 创建编排器。
func New(cfg Config) *Orchestrator {
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}
	return &Orchestrator{
		store:       cfg.Store,
		guard:       session.NewGuard(),
		classifier:  cfg.Classifier,
		router:      cfg.Router,
		exec:        cfg.Executor,
		gate:        cfg.Gate,
		verifier:    cfg.Verifier,
		synthesizer: cfg.Synthesizer,
		invocations: cfg.Invocations,
		turnTimeout: timeout,
	}
}

// Chat 处理一个回合。同一会话的并发回合直接拒绝,保护未决写操作。
func (o *Orchestrator) Chat(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "查询内容为空")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if !o.guard.Acquire(sessionID) {
		return nil, xerrors.New(xerrors.CodeSessionBusy,
			"会话正在处理上一条消息", xerrors.WithMetadata("session", sessionID))
	}
	defer o.guard.Release(sessionID)

	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	sess, resetNotice := o.loadSession(turnCtx, sessionID)

	classification := o.classifier.Classify(turnCtx, query, sess.Turns)
	decision := o.router.Route(classification.Label, sess)

	turn := o.dispatch(turnCtx, sess, query, decision)

	if classification.FallbackUsed {
		turn.report.Flags = append(turn.report.Flags, "classification fallback")
	}

	text := o.render(turnCtx, sess, query, turn)
	turn.report = o.verifier.Inspect(text, turn.invocations, turn.report)
	if resetNotice != "" {
		text = resetNotice + "\n\n" + text
	}

	o.persist(turnCtx, sess, query, text, turn)

	latency := time.Since(start)
	metrics.ObserveTurn(string(decision.Label), string(turn.report.Status), latency)
	for _, inv := range turn.invocations {
		metrics.ObserveCapability(inv.Capability, inv.Success, inv.Duration)
	}
	logger.L().Info("turn processed",
		"session", sess.ID,
		"intent", string(decision.Label),
		"status", string(turn.report.Status),
		"confidence", turn.report.Confidence,
		"latency", latency.String())

	return &Response{
		SessionID:            sess.ID,
		Response:             text,
		ConfidenceScore:      turn.report.Confidence,
		Verified:             turn.report.Verified,
		Status:               string(turn.report.Status),
		AwaitingConfirmation: sess.AwaitingConfirmation,
		PendingWrite:         sess.PendingWrite,
		ToolsUsed:            toolsUsed(turn.invocations),
		Citations:            verify.Citations(turn.invocations),
		LatencySeconds:       latency.Seconds(),
	}, nil
}

// turnState 聚合一个回合分支处理后的中间产物。
type turnState struct {
	invocations []capability.Invocation
	report      verify.Report
	// fixedText 非空时跳过模型渲染,直接作为回复主体。
	fixedText   string
	writeBanner string
	reminder    string
}

func (o *Orchestrator) dispatch(ctx context.Context, sess *session.Session, query string, decision router.Decision) *turnState {
	switch decision.Kind {
	case router.KindConfirm:
		return o.handleConfirm(ctx, sess)
	case router.KindCancel:
		return o.handleCancel(sess)
	case router.KindPrepareWrite:
		return o.handlePrepare(ctx, sess, decision.Label, query)
	case router.KindRefuse:
		return &turnState{
			fixedText: "I can't perform destructive operations like deleting or wiping records. " +
				"I can record individual transactions after your explicit confirmation, or show you your data.",
			report: o.verifier.Score(nil),
		}
	case router.KindRemind:
		return &turnState{
			fixedText: o.gate.Remind(sess),
			report:    o.verifier.Score(nil),
		}
	case router.KindFollowup:
		// 跟进问题只依赖会话历史,走无工具基线。
		return &turnState{report: o.verifier.Score(nil)}
	default:
		return o.handleReads(ctx, sess, query, decision)
	}
}

func (o *Orchestrator) handleReads(ctx context.Context, sess *session.Session, query string, decision router.Decision) *turnState {
	params := readParams(query)
	invs := o.exec.RunAll(ctx, decision.Capabilities, params)
	o.recordInvocations(ctx, query, invs)

	state := &turnState{invocations: invs, report: o.verifier.Score(invs)}
	// 功能开关关闭必须给出明确标注的英文答复,不能把处理器错误透出给模型渲染。
	for _, inv := range invs {
		if inv.ErrorCode == capability.CodeFeatureDisabled {
			state.fixedText = featureDisabledReply
			break
		}
	}
	if decision.RemindAfter {
		state.reminder = o.gate.Remind(sess)
	}
	return state
}

func (o *Orchestrator) handlePrepare(ctx context.Context, sess *session.Session, label intent.Label, query string) *turnState {
	outcome, err := o.gate.Prepare(ctx, sess, label, query)
	if err != nil {
		return &turnState{fixedText: errorReply(err), report: o.verifier.Score(nil)}
	}
	return &turnState{fixedText: outcome.Message, report: o.verifier.Score(nil)}
}

func (o *Orchestrator) handleConfirm(ctx context.Context, sess *session.Session) *turnState {
	outcome, err := o.gate.Confirm(ctx, sess)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeSessionCorrupted {
			sess.ResetConfirmation()
			return &turnState{
				fixedText: "The pending action referenced something that no longer exists, so I cleared it. " +
					"Your conversation history is intact. Please restate the action you wanted to take.",
				report: o.verifier.Score(nil),
			}
		}
		return &turnState{fixedText: errorReply(err), report: o.verifier.Score(nil)}
	}

	inv := *outcome.Invocation
	o.recordInvocations(ctx, "confirm", []capability.Invocation{inv})

	if !inv.Success {
		return &turnState{
			invocations: []capability.Invocation{inv},
			fixedText:   errorReplyFromInvocation(inv),
			report:      o.verifier.Score([]capability.Invocation{inv}),
		}
	}

	// 写入成功后立刻刷新持仓,让回复呈现新状态。
	refresh := o.exec.Run(ctx, handlers.CapPortfolioAnalysis, nil)
	o.recordInvocations(ctx, "post-write refresh", []capability.Invocation{refresh})

	invs := []capability.Invocation{inv, refresh}
	return &turnState{
		invocations: invs,
		writeBanner: "Transaction recorded.",
		report:      o.verifier.Score(invs),
	}
}

func (o *Orchestrator) handleCancel(sess *session.Session) *turnState {
	outcome, err := o.gate.Cancel(sess)
	if err != nil {
		return &turnState{fixedText: errorReply(err), report: o.verifier.Score(nil)}
	}
	return &turnState{fixedText: outcome.Message, report: o.verifier.Score(nil)}
}

func (o *Orchestrator) render(ctx context.Context, sess *session.Session, query string, turn *turnState) string {
	if turn.fixedText != "" {
		text := turn.fixedText
		if turn.reminder != "" {
			text += "\n\n" + turn.reminder
		}
		return text
	}
	return o.synthesizer.Synthesize(ctx, synth.Input{
		Query:       query,
		Invocations: turn.invocations,
		Report:      turn.report,
		History:     sess.Turns,
		WriteBanner: turn.writeBanner,
		Reminder:    turn.reminder,
	})
}

// loadSession 加载会话。不存在则新建;损坏则用同一 ID 重建并生成提示。
func (o *Orchestrator) loadSession(ctx context.Context, id string) (*session.Session, string) {
	sess, err := o.store.Load(ctx, id)
	if err == nil {
		return sess, ""
	}
	if stdErrors.Is(err, session.ErrSessionNotFound) {
		return session.New(id), ""
	}
	logger.L().Error("session load failed, starting fresh", "session", id, "error", err.Error())
	if xerrors.CodeOf(err) == xerrors.CodeSessionCorrupted {
		return session.New(id), "Your previous session state could not be read, so I started a fresh one."
	}
	return session.New(id), ""
}

func (o *Orchestrator) persist(ctx context.Context, sess *session.Session, query, text string, turn *turnState) {
	sess.AppendUserTurn(query)
	sess.AppendAssistantTurn(text, turn.invocations, turn.report.Confidence, verify.Citations(turn.invocations))
	if err := o.store.Save(ctx, sess); err != nil {
		logger.L().Error("session save failed", "session", sess.ID, "error", err.Error())
	}
}

func (o *Orchestrator) recordInvocations(ctx context.Context, query string, invs []capability.Invocation) {
	if o.invocations == nil {
		return
	}
	for _, inv := range invs {
		record := storage.InvocationRecord{
			ID:         inv.ID,
			Capability: inv.Capability,
			Query:      query,
			Success:    inv.Success,
			ErrorCode:  string(inv.ErrorCode),
			DurationMS: inv.Duration.Milliseconds(),
			CreatedAt:  inv.StartedAt,
		}
		if err := o.invocations.Save(ctx, record); err != nil {
			logger.L().Warn("invocation log write failed", "capability", inv.Capability, "error", err.Error())
		}
	}
}

func readParams(query string) capability.Params {
	params := capability.Params{}
	if symbol := intent.ExtractTicker(query); symbol != "" {
		params["symbol"] = symbol
	}
	if city := intent.ExtractCity(query); city != "" {
		params["city"] = city
	}
	return params
}

func toolsUsed(invs []capability.Invocation) []string {
	tools := make([]string, 0, len(invs))
	for _, inv := range invs {
		tools = append(tools, inv.Capability)
	}
	return tools
}

// errorReply 把错误码翻译成面向用户的说明,绝不透出原始错误。
func errorReply(err error) string {
	switch xerrors.CodeOf(err) {
	case gate.CodeConfirmationMismatch:
		return "There's no action awaiting confirmation right now. " +
			"If you'd like to record a transaction, just describe it, for example: \"buy 5 shares of AAPL at $185\"."
	case capability.CodeFeatureDisabled:
		return featureDisabledReply
	case capability.CodeCapabilityInvalidInput:
		return "I couldn't work out all the details from that. " + messageOf(err)
	case capability.CodeExternalSourceUnavailable:
		return "The upstream data source is unreachable right now, so nothing was changed. Please try again shortly."
	default:
		return "Something went wrong handling that request, so nothing was changed. Please try again."
	}
}

func errorReplyFromInvocation(inv capability.Invocation) string {
	switch inv.ErrorCode {
	case capability.CodeExternalSourceUnavailable:
		return "The holdings backend is unreachable, so the transaction was NOT recorded. Please try confirming again later."
	case capability.CodeCapabilityTimeout:
		return "The holdings backend timed out, so the transaction may not have been recorded. Please check your activity before retrying."
	default:
		return fmt.Sprintf("The transaction could not be recorded (%s). Nothing was changed.", inv.ErrorCode)
	}
}

func messageOf(err error) string {
	var coded *xerrors.Error
	if stdErrors.As(err, &coded) {
		return coded.Message()
	}
	return ""
}
