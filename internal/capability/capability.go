package capability

import (
	"context"
	"time"

	"WealthPilot/internal/errors"
)

// 能力层自有的错误码,在包初始化阶段登记到统一错误码表。
const (
	CodeCapabilityNotFound        errors.Code = "CAPABILITY_NOT_FOUND"
	CodeCapabilityTimeout         errors.Code = "CAPABILITY_TIMEOUT"
	CodeCapabilityInvalidInput    errors.Code = "CAPABILITY_INVALID_INPUT"
	CodeCapabilityPanic           errors.Code = "CAPABILITY_PANIC"
	CodeExternalSourceUnavailable errors.Code = "EXTERNAL_SOURCE_UNAVAILABLE"
	CodeFeatureDisabled           errors.Code = "FEATURE_DISABLED"
)

func init() {
	errors.Register(CodeCapabilityNotFound, errors.Attributes{
		Message:   "capability not registered",
		Severity:  errors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	errors.Register(CodeCapabilityTimeout, errors.Attributes{
		Message:   "capability call timed out",
		Severity:  errors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	errors.Register(CodeCapabilityInvalidInput, errors.Attributes{
		Message:   "capability input invalid",
		Severity:  errors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	errors.Register(CodeCapabilityPanic, errors.Attributes{
		Message:   "capability handler panicked",
		Severity:  errors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	errors.Register(CodeExternalSourceUnavailable, errors.Attributes{
		Message:   "external data source unavailable",
		Severity:  errors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	errors.Register(CodeFeatureDisabled, errors.Attributes{
		Message:   "capability family disabled by deployment flag",
		Severity:  errors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// 引用来源的固定标签。回复中的每个数字论断都必须能对应到其中之一。
const (
	SourcePortfolio  = "live portfolio data"
	SourceMarket     = "live market data"
	SourceCityData   = "live city data"
	SourceBenchmark  = "public benchmark dataset"
	SourceFallback   = "fallback/reference dataset"
	SourceAssumption = "user-supplied assumption"
)

// Params 是传递给能力处理器的输入参数集合。
type Params map[string]any

// Clone 深拷贝首层键值,避免调用方与处理器共享可变状态。
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	clone := make(Params, len(p))
	for k, v := range p {
		clone[k] = v
	}
	return clone
}

// String 读取字符串参数,缺失或类型不符时返回空串。
func (p Params) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Float 读取数值参数,兼容 JSON 反序列化产生的 float64。
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Result 是能力处理器成功时返回的结构化载荷。
// Degraded 表示外部数据源不可达,本次结果来自内置降级数据集。
type Result struct {
	Data      map[string]any
	Citations []string
	Degraded  bool
}

// Handler 定义只读能力的统一调用契约。
type Handler interface {
	Handle(ctx context.Context, params Params) (*Result, error)
}

// HandlerFunc 允许使用普通函数充当 Handler。
type HandlerFunc func(ctx context.Context, params Params) (*Result, error)

// Handle 实现 Handler 接口。
func (f HandlerFunc) Handle(ctx context.Context, params Params) (*Result, error) {
	return f(ctx, params)
}

// Prepared 是写操作准备阶段产出的完整待确认动作。
// 参数在此阶段全部落定,确认后按原样执行,不再从新消息推导。
type Prepared struct {
	Params   Params
	Summary  string
	Warnings []string
}

// WriteHandler 定义写能力的两阶段契约:Prepare 物化参数并生成摘要,
// Commit 按物化后的参数真正执行。
type WriteHandler interface {
	Prepare(ctx context.Context, params Params) (*Prepared, error)
	Commit(ctx context.Context, params Params) (*Result, error)
}

// Invocation 记录一次能力调用及其结局,创建后不再修改。
type Invocation struct {
	ID           string         `json:"id"`
	Capability   string         `json:"capability"`
	Params       Params         `json:"params,omitempty"`
	Success      bool           `json:"success"`
	Degraded     bool           `json:"degraded,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Citations    []string       `json:"citations,omitempty"`
	ErrorCode    errors.Code    `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	Duration     time.Duration  `json:"duration"`
}
