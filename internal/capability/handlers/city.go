package handlers

import (
	"context"

	"WealthPilot/internal/capability"
	xerrors "WealthPilot/internal/errors"
)

// CityHandler 查询城市生活成本与房产快照,受功能开关控制。
type CityHandler struct {
	cities  CityClient
	enabled bool
}

// NewCityHandler 创建城市数据处理器。enabled 为 false 时所有请求返回功能未开启错误。
func NewCityHandler(c CityClient, enabled bool) *CityHandler {
	return &CityHandler{cities: c, enabled: enabled}
}

var _ capability.Handler = (*CityHandler)(nil)

// Handle 实现 capability.Handler。
func (h *CityHandler) Handle(ctx context.Context, params capability.Params) (*capability.Result, error) {
	if !h.enabled {
		return nil, xerrors.New(capability.CodeFeatureDisabled,
			"城市与房产查询功能未开启",
			xerrors.WithMetadata("feature", "real_estate"))
	}

	city := params.String("city")
	if city == "" {
		return nil, xerrors.New(capability.CodeCapabilityInvalidInput, "缺少城市名称")
	}

	snapshot, err := h.cities.Snapshot(ctx, city)
	if err != nil {
		return nil, err
	}

	citation := capability.SourceCityData
	if snapshot.Fallback {
		citation = capability.SourceFallback
	}

	return &capability.Result{
		Data: map[string]any{
			"snapshot": snapshot,
			"fallback": snapshot.Fallback,
		},
		Citations: []string{citation},
		Degraded:  snapshot.Fallback,
	}, nil
}
