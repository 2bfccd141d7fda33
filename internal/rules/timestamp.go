package rules

import (
	"strings"
	"time"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
)

// 固件在NTP同步前发出的占位时间戳
const zeroTimestampSentinel = "0000-00-00T00:00:00.000Z"

// TimestampRule 修复充电桩发出的无效时间戳
// 空字符串或零值占位符被替换为当前UTC时间
type TimestampRule struct {
	now func() time.Time
}

// NewTimestampRule 创建时间戳修复规则
// now可注入，便于测试
func NewTimestampRule(now func() time.Time) *TimestampRule {
	if now == nil {
		now = time.Now
	}
	return &TimestampRule{now: now}
}

// Name 实现Rule接口
func (r *TimestampRule) Name() string { return "timestamp_repair" }

// Tag 实现Rule接口
func (r *TimestampRule) Tag() string { return TagConverted }

// Applies 仅作用于充电桩到中央系统方向
func (r *TimestampRule) Applies(dir frame.Direction, action string) bool {
	return dir == frame.WallboxToController
}

// Apply 递归替换所有畸形时间戳字段
func (r *TimestampRule) Apply(payload map[string]interface{}) Result {
	var changed bool
	replacement := r.now().UTC().Format(ocpp16.TimestampLayout)

	visitObjects(payload, func(obj map[string]interface{}) {
		for key, value := range obj {
			s, ok := value.(string)
			if !ok {
				continue
			}
			if isMalformedTimestamp(s) {
				obj[key] = replacement
				changed = true
			}
		}
	})

	return Result{Changed: changed}
}

// isMalformedTimestamp 空字符串或零值占位符
func isMalformedTimestamp(s string) bool {
	return strings.TrimSpace(s) == "" || s == zeroTimestampSentinel
}
