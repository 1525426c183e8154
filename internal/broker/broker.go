package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"WealthPilot/internal/capability"
	"WealthPilot/internal/errors"
)

const (
	defaultBaseURL = "http://localhost:3333"
	defaultTimeout = 10 * time.Second
)

// 交易类型与持仓后端的导入接口保持一致。
const (
	ActivityBuy      = "BUY"
	ActivitySell     = "SELL"
	ActivityDividend = "DIVIDEND"
	ActivityInterest = "INTEREST"
	ActivityFee      = "FEE"
)

// Holding 是一条持仓记录。
type Holding struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	CostBasis     float64 `json:"cost_basis_usd"`
	AllocationPct float64 `json:"allocation_pct"`
	Currency      string  `json:"currency"`
	AssetClass    string  `json:"asset_class,omitempty"`
}

// Activity 是一条历史交易记录,按日期倒序返回。
type Activity struct {
	ID        string  `json:"id,omitempty"`
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name,omitempty"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Fee       float64 `json:"fee"`
	Currency  string  `json:"currency"`
	Date      string  `json:"date"`
	Value     float64 `json:"value,omitempty"`
}

// ImportRequest 描述一笔待写入持仓后端的交易。
type ImportRequest struct {
	Type      string
	Symbol    string
	Quantity  float64
	UnitPrice float64
	Fee       float64
	Currency  string
	Date      string
}

// Config 描述持仓后端的连接参数。
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client 通过 HTTP 访问持仓后端。
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient 创建持仓后端客户端。
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
		baseURL:     baseURL,
		accessToken: strings.TrimSpace(cfg.AccessToken),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Holdings 拉取全部持仓。上游不可达时返回内置参考组合,并以返回值第二项标记。
func (c *Client) Holdings(ctx context.Context) ([]Holding, bool, error) {
	holdings, err := c.fetchHoldings(ctx)
	if err == nil {
		return holdings, false, nil
	}
	return fallbackHoldings(), true, nil
}

// Activities 拉取历史交易,可按标的过滤并截断数量。上游不可达时返回参考记录。
func (c *Client) Activities(ctx context.Context, symbol string, limit int) ([]Activity, bool, error) {
	if limit <= 0 {
		limit = 50
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	activities, err := c.fetchActivities(ctx, symbol)
	if err != nil {
		activities = fallbackActivities()
		if symbol != "" {
			activities = filterBySymbol(activities, symbol)
		}
		if len(activities) > limit {
			activities = activities[:limit]
		}
		return activities, true, nil
	}

	if len(activities) > limit {
		activities = activities[:limit]
	}
	return activities, false, nil
}

// Import 将一笔交易写入持仓后端。写操作没有降级路径。
func (c *Client) Import(ctx context.Context, req ImportRequest) error {
	activity := map[string]any{
		"currency":   strings.ToUpper(req.Currency),
		"dataSource": dataSourceFor(req.Type),
		"date":       fmt.Sprintf("%sT00:00:00.000Z", req.Date),
		"fee":        req.Fee,
		"quantity":   req.Quantity,
		"symbol":     strings.ToUpper(req.Symbol),
		"type":       strings.ToUpper(req.Type),
		"unitPrice":  req.UnitPrice,
	}
	payload, err := json.Marshal(map[string]any{"activities": []map[string]any{activity}})
	if err != nil {
		return fmt.Errorf("序列化导入请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/import", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构建导入请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(capability.CodeExternalSourceUnavailable, err, "持仓后端不可达,交易未写入")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return errors.New(capability.CodeCapabilityInvalidInput,
			fmt.Sprintf("持仓后端拒绝该交易: %d %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return nil
}

// Ping 检查持仓后端可达性。
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetchHoldings(ctx)
	return err
}

func (c *Client) fetchHoldings(ctx context.Context) ([]Holding, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/portfolio/holdings", nil)
	if err != nil {
		return nil, fmt.Errorf("构建持仓请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求持仓后端失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("持仓后端返回状态 %d", resp.StatusCode)
	}

	var raw []struct {
		Symbol                 string  `json:"symbol"`
		Name                   string  `json:"name"`
		Quantity               float64 `json:"quantity"`
		ValueInBaseCurrency    float64 `json:"valueInBaseCurrency"`
		AllocationInPercentage float64 `json:"allocationInPercentage"`
		Currency               string  `json:"currency"`
		AssetClass             string  `json:"assetClass"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("解析持仓响应失败: %w", err)
	}

	holdings := make([]Holding, 0, len(raw))
	for _, h := range raw {
		currency := h.Currency
		if currency == "" {
			currency = "USD"
		}
		holdings = append(holdings, Holding{
			Symbol:        strings.ToUpper(h.Symbol),
			Name:          h.Name,
			Quantity:      h.Quantity,
			CostBasis:     h.ValueInBaseCurrency,
			AllocationPct: h.AllocationInPercentage * 100,
			Currency:      currency,
			AssetClass:    h.AssetClass,
		})
	}
	return holdings, nil
}

func (c *Client) fetchActivities(ctx context.Context, symbol string) ([]Activity, error) {
	endpoint := c.baseURL + "/api/v1/order"
	if symbol != "" {
		endpoint += "?" + url.Values{"symbol": {symbol}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建交易记录请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求交易记录失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("交易记录接口返回状态 %d", resp.StatusCode)
	}

	var decoded struct {
		Activities []struct {
			ID            string  `json:"id"`
			Type          string  `json:"type"`
			Quantity      float64 `json:"quantity"`
			UnitPrice     float64 `json:"unitPrice"`
			Fee           float64 `json:"fee"`
			Currency      string  `json:"currency"`
			Date          string  `json:"date"`
			Value         float64 `json:"valueInBaseCurrency"`
			SymbolProfile struct {
				Symbol string `json:"symbol"`
				Name   string `json:"name"`
			} `json:"SymbolProfile"`
		} `json:"activities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析交易记录失败: %w", err)
	}

	activities := make([]Activity, 0, len(decoded.Activities))
	for _, a := range decoded.Activities {
		date := a.Date
		if len(date) > 10 {
			date = date[:10]
		}
		activities = append(activities, Activity{
			ID:        a.ID,
			Type:      a.Type,
			Symbol:    strings.ToUpper(a.SymbolProfile.Symbol),
			Name:      a.SymbolProfile.Name,
			Quantity:  a.Quantity,
			UnitPrice: a.UnitPrice,
			Fee:       a.Fee,
			Currency:  a.Currency,
			Date:      date,
			Value:     a.Value,
		})
	}
	if symbol != "" {
		activities = filterBySymbol(activities, symbol)
	}

	// 最新在前,截断前先看到最近的记录。
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Date > activities[j].Date
	})
	return activities, nil
}

func filterBySymbol(activities []Activity, symbol string) []Activity {
	filtered := activities[:0:0]
	for _, a := range activities {
		if a.Symbol == symbol {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func dataSourceFor(activityType string) string {
	switch strings.ToUpper(activityType) {
	case ActivityBuy, ActivitySell:
		return "YAHOO"
	default:
		return "MANUAL"
	}
}
