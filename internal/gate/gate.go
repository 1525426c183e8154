package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"WealthPilot/internal/capability"
	xerrors "WealthPilot/internal/errors"
	"WealthPilot/internal/intent"
	"WealthPilot/internal/session"
	"WealthPilot/pkg/logger"
)

// CodeConfirmationMismatch 表示在没有未决写操作时收到确认或取消。
const CodeConfirmationMismatch xerrors.Code = "CONFIRMATION_MISMATCH"

func init() {
	xerrors.Register(CodeConfirmationMismatch, xerrors.Attributes{
		Message:   "confirmation received with no pending write",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Outcome 是门控一次动作的结果:给用户的文本,以及提交阶段的调用记录。
type Outcome struct {
	Message    string
	Executed   bool
	Cancelled  bool
	Invocation *capability.Invocation
}

// Gate 实现写操作的两阶段状态机。
// 准备阶段物化全部参数并登记 PendingWrite;确认阶段按登记的参数原样提交,
// 绝不从新消息重新推导,确认一次后即清除,重复确认不会重复执行。
type Gate struct {
	registry *capability.Registry
	exec     Committer
}

// Committer 是门控对执行器的最小依赖。
type Committer interface {
	Prepare(ctx context.Context, name string, params capability.Params) (*capability.Prepared, error)
	Commit(ctx context.Context, name string, params capability.Params) capability.Invocation
}

// New 创建确认门控。
func New(reg *capability.Registry, exec Committer) *Gate {
	return &Gate{registry: reg, exec: exec}
}

// writeSpec 描述一种写意图需要的参数与提取方式。
type writeSpec struct {
	capName  string
	extract  func(query string) (capability.Params, []string)
	question string
}

var writeSpecs = map[intent.Label]writeSpec{
	intent.LabelBuy: {
		capName:  "record_buy",
		extract:  extractTradeParams,
		question: "To record a buy I need the ticker symbol and the number of shares, for example: \"buy 5 shares of AAPL at $185\".",
	},
	intent.LabelSell: {
		capName:  "record_sell",
		extract:  extractTradeParams,
		question: "To record a sale I need the ticker symbol and the number of shares, for example: \"sell 3 shares of MSFT at $420\".",
	},
	intent.LabelDividend: {
		capName:  "record_dividend",
		extract:  extractDividendParams,
		question: "To record a dividend I need the ticker symbol and the amount, for example: \"record a $25 dividend from AAPL\".",
	},
	intent.LabelCash: {
		capName:  "record_cash",
		extract:  extractCashParams,
		question: "To record interest income I need the amount, for example: \"record $12.50 of interest income\".",
	},
}

// Prepare 处理一个写意图:提取参数,物化待确认动作并登记到会话。
// 关键字段缺失时返回追问文本,不登记 PendingWrite。
func (g *Gate) Prepare(ctx context.Context, sess *session.Session, label intent.Label, query string) (*Outcome, error) {
	spec, ok := writeSpecs[label]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("意图 %s 不是写意图", label))
	}

	params, missing := spec.extract(query)
	if len(missing) > 0 {
		return &Outcome{Message: spec.question}, nil
	}

	prepared, err := g.exec.Prepare(ctx, spec.capName, params)
	if err != nil {
		return nil, err
	}

	// 全部查找成功后才写会话状态,中途失败不会留下半成品。
	sess.SetPendingWrite(&session.PendingWrite{
		Capability: spec.capName,
		Params:     prepared.Params,
		Summary:    prepared.Summary,
		Warnings:   prepared.Warnings,
		CreatedAt:  time.Now().UTC(),
	})

	logger.Audit().Info("pending write prepared",
		"session", sess.ID, "capability", spec.capName, "summary", prepared.Summary)

	var b strings.Builder
	b.WriteString(prepared.Summary)
	b.WriteString("\n")
	for _, w := range prepared.Warnings {
		b.WriteString("Warning: ")
		b.WriteString(w)
		b.WriteString("\n")
	}
	b.WriteString("Reply \"yes\" to confirm or \"no\" to cancel.")
	return &Outcome{Message: b.String()}, nil
}

// Confirm 提交未决写操作。没有未决写操作时返回 CONFIRMATION_MISMATCH。
func (g *Gate) Confirm(ctx context.Context, sess *session.Session) (*Outcome, error) {
	pw := sess.PendingWrite
	if pw == nil {
		return nil, xerrors.New(CodeConfirmationMismatch,
			"没有待确认的操作", xerrors.WithMetadata("session", sess.ID))
	}

	if !g.registry.Contains(pw.Capability) {
		// 会话中的待确认动作指向已不存在的能力,视为会话损坏。
		return nil, xerrors.New(xerrors.CodeSessionCorrupted,
			fmt.Sprintf("待确认动作引用未知能力 %s", pw.Capability))
	}

	// 先消费再提交,确保重复确认不会重复执行。
	params := pw.Params
	capName := pw.Capability
	sess.ClearPendingWrite()

	inv := g.exec.Commit(ctx, capName, params)
	logger.Audit().Info("pending write committed",
		"session", sess.ID, "capability", capName, "success", inv.Success)

	return &Outcome{Executed: true, Invocation: &inv}, nil
}

// Cancel 丢弃未决写操作,不产生任何副作用。
func (g *Gate) Cancel(sess *session.Session) (*Outcome, error) {
	if sess.PendingWrite == nil {
		return nil, xerrors.New(CodeConfirmationMismatch,
			"没有可取消的操作", xerrors.WithMetadata("session", sess.ID))
	}
	summary := sess.PendingWrite.Summary
	sess.ClearPendingWrite()
	logger.Audit().Info("pending write cancelled", "session", sess.ID)
	return &Outcome{
		Cancelled: true,
		Message:   "Cancelled. Nothing was recorded. (" + summary + ")",
	}, nil
}

// Remind 生成未决写操作的提醒文本。
func (g *Gate) Remind(sess *session.Session) string {
	if sess.PendingWrite == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("You still have a pending action awaiting confirmation:\n")
	b.WriteString(sess.PendingWrite.Summary)
	b.WriteString("\nReply \"yes\" to confirm or \"no\" to cancel.")
	return b.String()
}

func extractTradeParams(query string) (capability.Params, []string) {
	params := capability.Params{}
	var missing []string

	if symbol := intent.ExtractTicker(query); symbol != "" {
		params["symbol"] = symbol
	} else {
		missing = append(missing, "symbol")
	}
	if qty, ok := intent.ExtractQuantity(query); ok {
		params["quantity"] = qty
	} else {
		missing = append(missing, "quantity")
	}
	if price, ok := intent.ExtractPrice(query); ok {
		params["price"] = price
	}
	params["fee"] = intent.ExtractFee(query)
	if date := intent.ExtractDate(query); date != "" {
		params["date"] = date
	}
	return params, missing
}

func extractDividendParams(query string) (capability.Params, []string) {
	params := capability.Params{}
	var missing []string

	if symbol := intent.ExtractTicker(query); symbol != "" {
		params["symbol"] = symbol
	} else {
		missing = append(missing, "symbol")
	}
	if amount, ok := intent.ExtractDividendAmount(query); ok {
		params["amount"] = amount
	} else {
		missing = append(missing, "amount")
	}
	if date := intent.ExtractDate(query); date != "" {
		params["date"] = date
	}
	return params, missing
}

func extractCashParams(query string) (capability.Params, []string) {
	params := capability.Params{}
	var missing []string

	if amount, ok := intent.ExtractAmount(query); ok {
		params["amount"] = amount
	} else {
		missing = append(missing, "amount")
	}
	if date := intent.ExtractDate(query); date != "" {
		params["date"] = date
	}
	return params, missing
}
