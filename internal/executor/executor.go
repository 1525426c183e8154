package executor

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"WealthPilot/internal/capability"
	xerrors "WealthPilot/internal/errors"
	"WealthPilot/internal/observability/alerting"
	"WealthPilot/pkg/logger"
)

// defaultCallTimeout 是单次能力调用的默认超时。
const defaultCallTimeout = 15 * time.Second

// Executor 负责实际调用能力处理器:限时、捕获 panic、
// 把每次调用的结局封装成不可变的 Invocation 记录。
// 处理器的任何失败都不会向上抛出,调用方只会看到记录。
type Executor struct {
	registry *capability.Registry
	timeout  time.Duration
	alerter  alerting.Dispatcher
}

// Option 定义可选配置。
type Option func(*Executor)

// WithTimeout 覆盖默认的单次调用超时。能力描述符上的超时优先级更高。
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithAlertDispatcher 配置告警分发器。属于告警集合的错误码会触发通知。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(e *Executor) {
		e.alerter = dispatcher
	}
}

// New 创建执行器。
func New(reg *capability.Registry, opts ...Option) *Executor {
	e := &Executor{registry: reg, timeout: defaultCallTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Run 执行一个只读能力,返回完整的调用记录。
func (e *Executor) Run(ctx context.Context, name string, params capability.Params) capability.Invocation {
	return e.invoke(ctx, name, params, func(ctx context.Context, desc capability.Descriptor) (*capability.Result, error) {
		if desc.Mutating || desc.Handler == nil {
			return nil, xerrors.New(capability.CodeCapabilityInvalidInput,
				fmt.Sprintf("能力 %s 不是只读能力", name))
		}
		return desc.Handler.Handle(ctx, params)
	})
}

// RunAll 并发执行一组只读能力,结果顺序与入参顺序一致。
func (e *Executor) RunAll(ctx context.Context, names []string, params capability.Params) []capability.Invocation {
	invocations := make([]capability.Invocation, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(idx int, capName string) {
			defer wg.Done()
			invocations[idx] = e.Run(ctx, capName, params)
		}(i, name)
	}
	wg.Wait()
	return invocations
}

// Commit 执行一个写能力的提交阶段。参数必须来自准备阶段的物化快照。
func (e *Executor) Commit(ctx context.Context, name string, params capability.Params) capability.Invocation {
	return e.invoke(ctx, name, params, func(ctx context.Context, desc capability.Descriptor) (*capability.Result, error) {
		if !desc.Mutating || desc.Writer == nil {
			return nil, xerrors.New(capability.CodeCapabilityInvalidInput,
				fmt.Sprintf("能力 %s 不是写能力", name))
		}
		return desc.Writer.Commit(ctx, params)
	})
}

// Prepare 执行写能力的准备阶段。准备阶段不产生副作用,失败直接返回错误。
func (e *Executor) Prepare(ctx context.Context, name string, params capability.Params) (prepared *capability.Prepared, err error) {
	desc, lookupErr := e.registry.Lookup(name)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if !desc.Mutating || desc.Writer == nil {
		return nil, xerrors.New(capability.CodeCapabilityInvalidInput,
			fmt.Sprintf("能力 %s 不是写能力", name))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeoutFor(desc))
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("capability prepare panicked", "capability", name, "panic", fmt.Sprint(r))
			prepared = nil
			err = xerrors.New(capability.CodeCapabilityPanic, fmt.Sprintf("能力 %s 准备阶段崩溃", name))
		}
	}()

	prepared, err = desc.Writer.Prepare(callCtx, params)
	if err != nil && stdErrors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = xerrors.Wrap(capability.CodeCapabilityTimeout, err, fmt.Sprintf("能力 %s 准备超时", name))
	}
	return prepared, err
}

// HighReliability 报告能力是否属于高可靠集合。未注册的能力视为否。
func (e *Executor) HighReliability(name string) bool {
	desc, err := e.registry.Lookup(name)
	if err != nil {
		return false
	}
	return desc.HighReliability
}

type callFunc func(ctx context.Context, desc capability.Descriptor) (*capability.Result, error)

func (e *Executor) invoke(ctx context.Context, name string, params capability.Params, call callFunc) capability.Invocation {
	inv := capability.Invocation{
		ID:         uuid.NewString(),
		Capability: name,
		Params:     params.Clone(),
		StartedAt:  time.Now().UTC(),
	}

	desc, err := e.registry.Lookup(name)
	if err != nil {
		e.fail(&inv, err)
		return inv
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeoutFor(desc))
	defer cancel()

	result, err := e.safeCall(callCtx, name, desc, call)
	inv.Duration = time.Since(inv.StartedAt)

	if err != nil {
		if stdErrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = xerrors.Wrap(capability.CodeCapabilityTimeout, err,
				fmt.Sprintf("能力 %s 执行超时", name))
		}
		e.fail(&inv, err)
		return inv
	}

	inv.Success = true
	if result != nil {
		inv.Payload = result.Data
		inv.Citations = result.Citations
		inv.Degraded = result.Degraded
	}
	logger.L().Debug("capability executed",
		"capability", name, "duration", inv.Duration.String())
	return inv
}

// safeCall 把处理器的 panic 转换为带错误码的普通错误。
func (e *Executor) safeCall(ctx context.Context, name string, desc capability.Descriptor, call callFunc) (result *capability.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("capability panicked", "capability", name, "panic", fmt.Sprint(r))
			result = nil
			err = xerrors.New(capability.CodeCapabilityPanic,
				fmt.Sprintf("能力 %s 执行崩溃: %v", name, r))
		}
	}()
	return call(ctx, desc)
}

func (e *Executor) fail(inv *capability.Invocation, err error) {
	if inv.Duration == 0 {
		inv.Duration = time.Since(inv.StartedAt)
	}
	inv.Success = false
	inv.ErrorCode = xerrors.CodeOf(err)
	inv.ErrorMessage = err.Error()
	logger.L().Warn("capability failed",
		"capability", inv.Capability, "code", string(inv.ErrorCode), "error", err.Error())

	if e.alerter != nil && xerrors.ShouldAlert(err) {
		event := alerting.FromError(err, inv.Capability, "")
		// 告警本身失败不能影响调用主路径。
		alertCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if notifyErr := e.alerter.Notify(alertCtx, event); notifyErr != nil {
			logger.L().Warn("alert dispatch failed", "error", notifyErr.Error())
		}
	}
}

func (e *Executor) timeoutFor(desc capability.Descriptor) time.Duration {
	if desc.Timeout > 0 {
		return desc.Timeout
	}
	return e.timeout
}
