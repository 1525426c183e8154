package cities

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.teleport.org/api"
	defaultTimeout = 10 * time.Second
)

// Snapshot 是一座城市的居住成本与住房数据快照。
type Snapshot struct {
	City          string             `json:"city"`
	Slug          string             `json:"slug"`
	MedianPrice   int                `json:"median_price"`
	MedianRent    int                `json:"median_rent_monthly"`
	Affordability float64            `json:"affordability_score"`
	COLIndex      float64            `json:"col_index"`
	HousingScore  float64            `json:"housing_score,omitempty"`
	COLScore      float64            `json:"col_score,omitempty"`
	QualityOfLife float64            `json:"quality_of_life_score,omitempty"`
	Scores        map[string]float64 `json:"scores,omitempty"`
	Summary       string             `json:"summary,omitempty"`
	Fallback      bool               `json:"fallback"`
}

// Config 描述城市数据服务的连接参数。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client 拉取城市数据,上游不可达时退回内置数据集。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建城市数据客户端。
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

// Snapshot 返回指定城市的快照。任何失败都以内置数据兜底,从不让回合失败。
func (c *Client) Snapshot(ctx context.Context, cityName string) (*Snapshot, error) {
	slug := resolveSlug(cityName)

	if snap, err := c.fetchSnapshot(ctx, cityName, slug); err == nil {
		return snap, nil
	}
	return fallbackSnapshot(cityName, slug), nil
}

// Ping 检查城市数据服务可达性。
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/urban_areas/slug:seattle/scores/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("城市数据服务返回状态 %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) fetchSnapshot(ctx context.Context, cityName, slug string) (*Snapshot, error) {
	scores, err := c.fetchScores(ctx, slug)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		City:          scores.name,
		Slug:          slug,
		QualityOfLife: round1(scores.overall / 10),
		Scores:        scores.categories,
	}
	if snap.City == "" {
		snap.City = cityName
	}
	snap.HousingScore = scores.categories["housing"]
	snap.COLScore = scores.categories["cost-of-living"]

	// 详情接口提供租金与房价,取不到时按得分线性估算。
	rent, price := c.fetchHousingFigures(ctx, slug)
	if rent == 0 {
		rent = estimateRent(snap.COLScore)
	}
	if price == 0 {
		price = estimatePrice(snap.HousingScore)
	}
	snap.MedianRent = rent
	snap.MedianPrice = price

	if snap.HousingScore > 0 {
		snap.Affordability = round1(snap.HousingScore)
	} else {
		snap.Affordability = 5.0
	}
	if snap.COLScore > 0 {
		snap.COLIndex = round1((10.0-snap.COLScore)*18.0 + 20.0)
	} else {
		snap.COLIndex = 100.0
	}

	snap.Summary = fmt.Sprintf("%s scores %.1f/10 overall, housing %.1f/10, cost of living %.1f/10.",
		snap.City, snap.QualityOfLife, snap.HousingScore, snap.COLScore)
	return snap, nil
}

type cityScores struct {
	name       string
	overall    float64
	categories map[string]float64
}

func (c *Client) fetchScores(ctx context.Context, slug string) (*cityScores, error) {
	endpoint := fmt.Sprintf("%s/urban_areas/slug:%s/scores/", c.baseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建城市评分请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求城市评分失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("城市评分接口返回状态 %d", resp.StatusCode)
	}

	var decoded struct {
		UAName            string  `json:"ua_name"`
		TeleportCityScore float64 `json:"teleport_city_score"`
		Categories        []struct {
			Name         string  `json:"name"`
			ScoreOutOf10 float64 `json:"score_out_of_10"`
		} `json:"categories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析城市评分失败: %w", err)
	}

	scores := &cityScores{
		name:       decoded.UAName,
		overall:    decoded.TeleportCityScore,
		categories: make(map[string]float64, len(decoded.Categories)),
	}
	for _, cat := range decoded.Categories {
		key := strings.ReplaceAll(strings.ToLower(cat.Name), " ", "-")
		scores.categories[key] = round1(cat.ScoreOutOf10)
	}
	return scores, nil
}

func (c *Client) fetchHousingFigures(ctx context.Context, slug string) (rent, price int) {
	endpoint := fmt.Sprintf("%s/urban_areas/slug:%s/details/", c.baseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0
	}

	var decoded struct {
		Categories []struct {
			Data []struct {
				Label             string   `json:"label"`
				CurrencyDollarVal *float64 `json:"currency_dollar_value"`
				FloatValue        *float64 `json:"float_value"`
			} `json:"data"`
		} `json:"categories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, 0
	}

	for _, category := range decoded.Categories {
		for _, item := range category.Data {
			value := item.CurrencyDollarVal
			if value == nil {
				value = item.FloatValue
			}
			if value == nil {
				continue
			}
			label := strings.ToLower(item.Label)
			switch {
			case strings.Contains(label, "median rent") || strings.Contains(label, "rent per month"):
				rent = int(*value)
			case strings.Contains(label, "home price") || strings.Contains(label, "house price"):
				price = int(*value)
			}
		}
	}
	return rent, price
}

// estimateRent 按生活成本得分线性估算月租。10 分最便宜约 $800,0 分约 $4000。
func estimateRent(colScore float64) int {
	return int(4000 - (colScore/10.0)*3200)
}

// estimatePrice 按住房得分线性估算房价。10 分约 $300k,0 分约 $1.5M。
func estimatePrice(housingScore float64) int {
	return int(1_500_000 - (housingScore/10.0)*1_200_000)
}

func round1(v float64) float64 {
	if v < 0 {
		return float64(int64(v*10-0.5)) / 10
	}
	return float64(int64(v*10+0.5)) / 10
}
