package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"WealthPilot/internal/capability"
	"WealthPilot/internal/errors"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	defaultTimeout = 10 * time.Second

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
)

// OverviewSymbols 是"今日行情如何"这类宽泛问题展示的固定标的集合。
var OverviewSymbols = []string{"SPY", "QQQ", "AAPL", "MSFT", "NVDA", "AMZN", "GOOGL"}

// Quote 是一条规整后的行情快照。Fallback 为真表示数据来自内置参考集。
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	ChangePct     float64 `json:"change_pct"`
	Currency      string  `json:"currency"`
	Exchange      string  `json:"exchange,omitempty"`
	Fallback      bool    `json:"fallback"`
}

// Config 描述行情客户端的连接参数。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client 通过 HTTP 拉取行情,上游不可达时切换到内置参考数据。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建行情客户端。
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Quote 返回单个标的的行情。上游失败时优先返回参考数据而不是让回合失败。
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.New(capability.CodeCapabilityInvalidInput, "标的代码为空")
	}

	quote, err := c.fetchQuote(ctx, symbol)
	if err == nil {
		return quote, nil
	}

	if fb, ok := fallbackQuote(symbol); ok {
		return fb, nil
	}
	return nil, errors.Wrap(capability.CodeExternalSourceUnavailable, err,
		fmt.Sprintf("无法获取 %s 的行情数据", symbol),
		errors.WithMetadata("symbol", symbol))
}

// Overview 并发拉取固定标的集合的行情,逐个标的独立降级。
func (c *Client) Overview(ctx context.Context) ([]Quote, error) {
	quotes := make([]*Quote, len(OverviewSymbols))

	var wg sync.WaitGroup
	for i, symbol := range OverviewSymbols {
		wg.Add(1)
		go func(idx int, sym string) {
			defer wg.Done()
			if q, err := c.Quote(ctx, sym); err == nil {
				quotes[idx] = q
			}
		}(i, symbol)
	}
	wg.Wait()

	collected := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		if q != nil {
			collected = append(collected, *q)
		}
	}
	if len(collected) == 0 {
		return nil, errors.New(capability.CodeExternalSourceUnavailable, "行情总览数据不可用")
	}
	return collected, nil
}

// Ping 检查上游可达性,用于健康检查。
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetchQuote(ctx, "SPY")
	return err
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol),
		url.Values{"interval": {"1d"}, "range": {"5d"}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建行情请求失败: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求行情服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("行情服务返回状态 %d", resp.StatusCode)
	}

	var decoded struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					ChartPreviousClose float64 `json:"chartPreviousClose"`
					PreviousClose      float64 `json:"previousClose"`
					Currency           string  `json:"currency"`
					ExchangeName       string  `json:"exchangeName"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析行情响应失败: %w", err)
	}
	if len(decoded.Chart.Result) == 0 {
		return nil, fmt.Errorf("标的 %s 没有行情数据", symbol)
	}

	meta := decoded.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 {
		return nil, fmt.Errorf("标的 %s 行情数据为空", symbol)
	}

	prev := meta.ChartPreviousClose
	if prev == 0 {
		prev = meta.PreviousClose
	}

	quote := &Quote{
		Symbol:        symbol,
		Price:         meta.RegularMarketPrice,
		PreviousClose: prev,
		Currency:      meta.Currency,
		Exchange:      meta.ExchangeName,
	}
	if quote.Currency == "" {
		quote.Currency = "USD"
	}
	if prev != 0 {
		quote.ChangePct = round2((quote.Price - prev) / prev * 100)
	}
	return quote, nil
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
