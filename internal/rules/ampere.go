package rules

import (
	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
)

// AmpereRule 把以安培下发的充电曲线换算为瓦特
// 换算系数是针对该款硬件实测的标定值，不是物理换算，走配置
type AmpereRule struct {
	wattsPerAmpere float64
}

// NewAmpereRule 创建安培到瓦特的换算规则
func NewAmpereRule(wattsPerAmpere float64) *AmpereRule {
	return &AmpereRule{wattsPerAmpere: wattsPerAmpere}
}

// Name 实现Rule接口
func (r *AmpereRule) Name() string { return "ampere_conversion" }

// Tag 实现Rule接口
func (r *AmpereRule) Tag() string { return TagConverted }

// Applies 仅作用于中央系统下发的SetChargingProfile
func (r *AmpereRule) Applies(dir frame.Direction, action string) bool {
	return dir == frame.ControllerToWallbox && action == string(ocpp16.ActionSetChargingProfile)
}

// Apply 把chargingRateUnit为A的计划换算为W
// 单个limit解析失败时跳过该时段，不中断整条消息
func (r *AmpereRule) Apply(payload map[string]interface{}) Result {
	schedule := chargingSchedule(payload)
	if schedule == nil {
		return Result{}
	}

	unit, _ := schedule["chargingRateUnit"].(string)
	if unit != string(ocpp16.ChargingRateUnitAmperes) {
		return Result{}
	}

	if periods, ok := schedule["chargingSchedulePeriod"].([]interface{}); ok {
		for _, p := range periods {
			period, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			limit, ok := asFloat(period["limit"])
			if !ok {
				continue
			}
			period["limit"] = limit * r.wattsPerAmpere
		}
	}

	schedule["chargingRateUnit"] = string(ocpp16.ChargingRateUnitWatts)
	return Result{Changed: true}
}

// chargingSchedule 定位SetChargingProfile里的计划对象
func chargingSchedule(payload map[string]interface{}) map[string]interface{} {
	profile, ok := payload["csChargingProfiles"].(map[string]interface{})
	if !ok {
		return nil
	}
	schedule, ok := profile["chargingSchedule"].(map[string]interface{})
	if !ok {
		return nil
	}
	return schedule
}
