package rules

import (
	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
)

// defaultAllowedConfigKeys 固件认识的ChangeConfiguration键白名单
// 下发未知键会让壁挂桩回NotSupported并在部分固件上触发重连
var defaultAllowedConfigKeys = []string{
	"LocalPreAuthorize",
	"StopTransactionOnEVSideDisconnect",
	"LocalAuthorizeOffline",
	"AuthorizeRemoteTxRequests",
	"HeartbeatInterval",
	"MeterValueSampleInterval",
	"MeterValuesAlignedData",
	"MeterValuesSampledData",
	"ClockAlignedDataInterval",
	"ConnectionTimeOut",
	"ResetRetries",
}

// ConfigFilterRule 拦截白名单以外的ChangeConfiguration
type ConfigFilterRule struct {
	allowed map[string]struct{}
}

// NewConfigFilterRule 创建配置键过滤规则
// keys为空时使用内置白名单
func NewConfigFilterRule(keys []string) *ConfigFilterRule {
	if len(keys) == 0 {
		keys = defaultAllowedConfigKeys
	}
	allowed := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		allowed[key] = struct{}{}
	}
	return &ConfigFilterRule{allowed: allowed}
}

// Name 实现Rule接口
func (r *ConfigFilterRule) Name() string { return "config_filter" }

// Tag 实现Rule接口
func (r *ConfigFilterRule) Tag() string { return TagBlocked }

// Applies 仅作用于中央系统下发的ChangeConfiguration
func (r *ConfigFilterRule) Applies(dir frame.Direction, action string) bool {
	return dir == frame.ControllerToWallbox && action == string(ocpp16.ActionChangeConfiguration)
}

// Apply 白名单内放行，其余标记拦截
func (r *ConfigFilterRule) Apply(payload map[string]interface{}) Result {
	key, ok := payload["key"].(string)
	if !ok {
		return Result{Blocked: true}
	}
	if _, found := r.allowed[key]; found {
		return Result{}
	}
	return Result{Blocked: true}
}
