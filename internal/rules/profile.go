package rules

import (
	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
)

// ProfileRule 把SetChargingProfile统一为固件唯一接受的形状
// 该款壁挂桩只认一种曲线写法，其它变体会被硬件静默忽略；
// 只保留入站消息里的数值限额，其余字段全部替换为固定值
type ProfileRule struct{}

// NewProfileRule 创建充电曲线标准化规则
func NewProfileRule() *ProfileRule {
	return &ProfileRule{}
}

// Name 实现Rule接口
func (r *ProfileRule) Name() string { return "profile_standardize" }

// Tag 实现Rule接口
func (r *ProfileRule) Tag() string { return TagStandardized }

// Applies 仅作用于中央系统下发的SetChargingProfile
func (r *ProfileRule) Applies(dir frame.Direction, action string) bool {
	return dir == frame.ControllerToWallbox && action == string(ocpp16.ActionSetChargingProfile)
}

// Apply 重建为规范形状
// 找不到限额时不动消息，让原始曲线照常转发
func (r *ProfileRule) Apply(payload map[string]interface{}) Result {
	limit, ok := extractLimit(payload)
	if !ok {
		return Result{}
	}

	connectorID := 1.0
	if id, ok := asFloat(payload["connectorId"]); ok {
		connectorID = id
	}

	for key := range payload {
		delete(payload, key)
	}
	payload["connectorId"] = connectorID
	payload["csChargingProfiles"] = map[string]interface{}{
		"chargingProfileId":      0,
		"stackLevel":             0,
		"chargingProfilePurpose": string(ocpp16.ChargingProfilePurposeTxDefaultProfile),
		"chargingProfileKind":    string(ocpp16.ChargingProfileKindAbsolute),
		"chargingSchedule": map[string]interface{}{
			"chargingRateUnit": string(ocpp16.ChargingRateUnitWatts),
			"chargingSchedulePeriod": []interface{}{
				map[string]interface{}{
					"startPeriod":  0,
					"limit":        limit,
					"numberPhases": 3,
				},
			},
		},
	}

	return Result{Changed: true}
}

// extractLimit 从入站曲线的第一个时段取数值限额
func extractLimit(payload map[string]interface{}) (float64, bool) {
	schedule := chargingSchedule(payload)
	if schedule == nil {
		return 0, false
	}
	periods, ok := schedule["chargingSchedulePeriod"].([]interface{})
	if !ok || len(periods) == 0 {
		return 0, false
	}
	period, ok := periods[0].(map[string]interface{})
	if !ok {
		return 0, false
	}
	return asFloat(period["limit"])
}
