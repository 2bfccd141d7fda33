package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
)

var isoTimestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// idTag字段可能出现的时间戳写法，固件用当前时间充当IdTag
var idTagTimestampLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// IdTagRule 修复超过OCPP 20字符上限的IdTag
// 固件把完整时间戳当作IdTag发送，超长值会被中央系统拒绝
type IdTagRule struct{}

// NewIdTagRule 创建IdTag长度修复规则
func NewIdTagRule() *IdTagRule {
	return &IdTagRule{}
}

// Name 实现Rule接口
func (r *IdTagRule) Name() string { return "idtag_repair" }

// Tag 实现Rule接口
func (r *IdTagRule) Tag() string { return TagConverted }

// Applies 仅作用于充电桩到中央系统方向
func (r *IdTagRule) Applies(dir frame.Direction, action string) bool {
	return dir == frame.WallboxToController
}

// Apply 递归缩短所有超长idTag字段
// 时间戳形式的值压缩为 "tag"+HHMMSS+毫秒 保持会话内唯一，其余值直接截断
func (r *IdTagRule) Apply(payload map[string]interface{}) Result {
	var changed bool

	visitObjects(payload, func(obj map[string]interface{}) {
		for key, value := range obj {
			if !strings.EqualFold(key, "idTag") {
				continue
			}
			s, ok := value.(string)
			if !ok || len(s) <= ocpp16.MaxIdTagLength {
				continue
			}
			obj[key] = shortenIdTag(s)
			changed = true
		}
	})

	return Result{Changed: changed}
}

// shortenIdTag 把超长IdTag压缩到20字符以内
func shortenIdTag(value string) string {
	if isoTimestampPattern.MatchString(value) {
		if t, ok := parseIdTagTimestamp(value); ok {
			return fmt.Sprintf("tag%s%03d", t.Format("150405"), t.Nanosecond()/1e6)
		}
	}
	return value[:ocpp16.MaxIdTagLength]
}

// parseIdTagTimestamp 尝试按已知写法解析时间戳形式的IdTag
func parseIdTagTimestamp(value string) (time.Time, bool) {
	for _, layout := range idTagTimestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
