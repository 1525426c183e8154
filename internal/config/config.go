package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config 描述 WealthPilot 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Session   SessionConfig   `json:"session"`
	LLM       LLMConfig       `json:"llm"`
	Intent    IntentConfig    `json:"intent"`
	Router    RouterConfig    `json:"router"`
	Upstreams UpstreamsConfig `json:"upstreams"`
	Storage   StorageConfig   `json:"storage"`
	Queue     QueueConfig     `json:"queue"`
	Features  FeatureConfig   `json:"features"`
	Logging   LoggingConfig   `json:"logging"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// LoggingConfig 控制运行日志与审计日志。
type LoggingConfig struct {
	Level        string   `json:"level"`
	Format       string   `json:"format"`
	OutputPaths  []string `json:"output_paths"`
	AuditEnabled bool     `json:"audit_enabled"`
	AuditPath    string   `json:"audit_path"`
	AuditMaxMB   int      `json:"audit_max_mb"`
	AuditBackups int      `json:"audit_backups"`
	AuditMaxDays int      `json:"audit_max_days"`
}

// ServerConfig 控制 API 服务的监听地址与请求超时。
type ServerConfig struct {
	Address        string `json:"address"`
	AuthToken      string `json:"auth_token"`
	TurnTimeoutSec int    `json:"turn_timeout_sec"`
}

// SessionConfig 描述会话存储后端及过期策略。
type SessionConfig struct {
	Driver     string `json:"driver"`
	RedisAddr  string `json:"redis_addr"`
	RedisDB    int    `json:"redis_db"`
	TTLMinutes int    `json:"ttl_minutes"`
}

// LLMConfig 配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string `json:"provider"`
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	BaseURL        string `json:"base_url"`
	MaxTokens      int    `json:"max_tokens"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// IntentConfig 指定意图规则表文件的位置。
type IntentConfig struct {
	RulesPath string `json:"rules_path"`
}

// RouterConfig 是路由层的显式策略配置。
// PendingWritePolicy 取 remind 或 answer,决定待确认写操作期间如何处理无关查询。
type RouterConfig struct {
	PendingWritePolicy string `json:"pending_write_policy"`
}

// UpstreamsConfig 汇总外部行情、持仓与城市数据服务的地址。
type UpstreamsConfig struct {
	Market MarketConfig `json:"market"`
	Broker BrokerConfig `json:"broker"`
	Cities CitiesConfig `json:"cities"`
}

// MarketConfig 描述行情数据服务。
type MarketConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// BrokerConfig 描述持仓与交易记录服务。
type BrokerConfig struct {
	BaseURL        string `json:"base_url"`
	AccessToken    string `json:"access_token"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// CitiesConfig 描述城市生活质量数据服务。
type CitiesConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// StorageConfig 统一描述调用日志与反馈记录的持久化后端。
type StorageConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述反馈事件投递使用的消息队列。
type QueueConfig struct {
	Driver    string `json:"driver"`
	URL       string `json:"url"`
	QueueName string `json:"queue_name"`
	Workers   int    `json:"workers"`
}

// FeatureConfig 汇总按部署开关的可选能力与阈值。
type FeatureConfig struct {
	EnableRealEstate bool    `json:"enable_real_estate"`
	LargeOrderUSD    float64 `json:"large_order_usd"`
	BenchmarkPath    string  `json:"benchmark_path"`
}

// RuntimeConfig 放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 解析指定路径的 JSON 配置文件并套用默认值与环境覆盖。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	cfg.applyEnvOverrides()

	return &cfg, nil
}

// TurnTimeout 返回一次对话回合允许的最长处理时间。
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.Server.TurnTimeoutSec) * time.Second
}

// SessionTTL 返回会话在存储中的保留时长。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.TurnTimeoutSec <= 0 {
		c.Server.TurnTimeoutSec = 60
	}

	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}
	if c.Session.RedisAddr == "" {
		c.Session.RedisAddr = "127.0.0.1:6379"
	}
	if c.Session.TTLMinutes <= 0 {
		c.Session.TTLMinutes = 120
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "claude-sonnet-4-20250514"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 25
	}

	if c.Intent.RulesPath == "" {
		c.Intent.RulesPath = filepath.Join(baseDir, "intent_rules.yaml")
	} else if !filepath.IsAbs(c.Intent.RulesPath) {
		c.Intent.RulesPath = filepath.Join(baseDir, c.Intent.RulesPath)
	}

	if c.Router.PendingWritePolicy == "" {
		c.Router.PendingWritePolicy = "remind"
	}

	if c.Upstreams.Market.TimeoutSeconds <= 0 {
		c.Upstreams.Market.TimeoutSeconds = 10
	}
	if c.Upstreams.Broker.TimeoutSeconds <= 0 {
		c.Upstreams.Broker.TimeoutSeconds = 10
	}
	if c.Upstreams.Cities.TimeoutSeconds <= 0 {
		c.Upstreams.Cities.TimeoutSeconds = 10
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.QueueName == "" {
		c.Queue.QueueName = "wealthpilot.feedback"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}

	if c.Features.LargeOrderUSD <= 0 {
		c.Features.LargeOrderUSD = 100000
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stdout"}
	}
	if c.Logging.AuditPath == "" {
		c.Logging.AuditPath = filepath.Join(c.Runtime.DataDir, "audit.log")
	} else if !filepath.IsAbs(c.Logging.AuditPath) {
		c.Logging.AuditPath = filepath.Join(baseDir, c.Logging.AuditPath)
	}
	if c.Logging.AuditMaxMB <= 0 {
		c.Logging.AuditMaxMB = 64
	}
	if c.Logging.AuditBackups <= 0 {
		c.Logging.AuditBackups = 5
	}
	if c.Logging.AuditMaxDays <= 0 {
		c.Logging.AuditMaxDays = 30
	}
}

// applyEnvOverrides 处理部署时常用的环境变量覆盖。
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WEALTHPILOT_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("WEALTHPILOT_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("WEALTHPILOT_ENABLE_REAL_ESTATE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.Features.EnableRealEstate = parsed
		}
	}
}
