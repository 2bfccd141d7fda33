package rules

import (
	"strconv"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
)

// MeterScaleRule 修正上报功率的数量级
// 个别固件把瓦特少报一个数量级，启用后按系数放大
type MeterScaleRule struct {
	factor float64
}

// NewMeterScaleRule 创建电表数值缩放规则
func NewMeterScaleRule(factor float64) *MeterScaleRule {
	if factor <= 0 {
		factor = 1
	}
	return &MeterScaleRule{factor: factor}
}

// Name 实现Rule接口
func (r *MeterScaleRule) Name() string { return "meter_scale" }

// Tag 实现Rule接口
func (r *MeterScaleRule) Tag() string { return TagConverted }

// Applies 仅作用于壁挂桩上报的MeterValues
func (r *MeterScaleRule) Applies(dir frame.Direction, action string) bool {
	return dir == frame.WallboxToController && action == string(ocpp16.ActionMeterValues)
}

// Apply 对单位为W的采样值按系数放大并取整
func (r *MeterScaleRule) Apply(payload map[string]interface{}) Result {
	changed := false
	visitObjects(payload, func(obj map[string]interface{}) {
		unit, ok := obj["unit"].(string)
		if !ok || unit != string(ocpp16.ChargingRateUnitWatts) {
			return
		}
		value, ok := sampleValue(obj["value"])
		if !ok {
			return
		}
		obj["value"] = strconv.Itoa(int(value * r.factor))
		changed = true
	})
	return Result{Changed: changed}
}

// sampleValue 采样值在消息里既可能是字符串也可能是数字
func sampleValue(v interface{}) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return asFloat(v)
}
