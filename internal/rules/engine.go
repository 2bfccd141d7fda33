package rules

import (
	"encoding/json"
	"time"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/logger"
	"github.com/charging-platform/ocpp-proxy/internal/metrics"
)

// 消息日志中的修正结果标记
const (
	TagConverted    = "CONVERTED"
	TagBlocked      = "BLOCKED"
	TagStandardized = "STANDARDIZED"
)

// Rule 单条修正规则
// Apply直接修改已解析的payload对象，返回是否改动及是否拦截
type Rule interface {
	Name() string
	Tag() string
	Applies(dir frame.Direction, action string) bool
	Apply(payload map[string]interface{}) Result
}

// Result 规则执行结果
type Result struct {
	Changed bool
	Blocked bool
}

// Outcome 整条规则链的执行结果
type Outcome struct {
	Frame   *frame.Frame
	Changed bool
	Blocked bool
	Tag     string
}

// Config 规则开关与常量
type Config struct {
	TimestampRepair    bool
	IdTagRepair        bool
	AmpereConversion   bool
	ProfileStandardize bool
	ConfigFilter       bool
	MeterWattScale     bool
	AmpereWattFactor   float64
	MeterWattFactor    float64
	AllowedConfigKeys  []string
}

// DefaultConfig 默认规则配置
func DefaultConfig() *Config {
	return &Config{
		TimestampRepair:    true,
		IdTagRepair:        true,
		AmpereConversion:   true,
		ProfileStandardize: true,
		ConfigFilter:       true,
		MeterWattScale:     false,
		AmpereWattFactor:   690,
		MeterWattFactor:    10,
	}
}

// Engine 修正规则引擎
// 规则按固定顺序执行，每条规则可独立通过配置启停
type Engine struct {
	rules  []Rule
	logger *logger.Logger
}

// NewEngine 按配置组装规则链
// 顺序固定: 桩侧方向先修时间戳再修IdTag再缩放功率，
// 控制器方向先过滤配置、再换算单位、最后统一曲线形状
func NewEngine(cfg *Config, log *logger.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var rs []Rule
	if cfg.TimestampRepair {
		rs = append(rs, NewTimestampRule(time.Now))
	}
	if cfg.IdTagRepair {
		rs = append(rs, NewIdTagRule())
	}
	if cfg.MeterWattScale {
		rs = append(rs, NewMeterScaleRule(cfg.MeterWattFactor))
	}
	if cfg.ConfigFilter {
		rs = append(rs, NewConfigFilterRule(cfg.AllowedConfigKeys))
	}
	if cfg.AmpereConversion {
		rs = append(rs, NewAmpereRule(cfg.AmpereWattFactor))
	}
	if cfg.ProfileStandardize {
		rs = append(rs, NewProfileRule())
	}

	return &Engine{rules: rs, logger: log}
}

// Apply 对一帧执行方向匹配的全部规则
// payload无法解析为对象时原帧透传，规则层的失败绝不丢消息
func (e *Engine) Apply(dir frame.Direction, f *frame.Frame) Outcome {
	if f.Type != frame.Call && f.Type != frame.CallResult {
		return Outcome{Frame: f}
	}

	var applicable []Rule
	for _, r := range e.rules {
		if r.Applies(dir, f.Action) {
			applicable = append(applicable, r)
		}
	}
	if len(applicable) == 0 {
		return Outcome{Frame: f}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		return Outcome{Frame: f}
	}

	var changed bool
	var tag string
	for _, r := range applicable {
		res := r.Apply(payload)
		if res.Blocked {
			metrics.MessagesBlocked.Inc()
			if e.logger != nil {
				e.logger.Infof("Rule %s blocked %s message", r.Name(), f.Action)
			}
			return Outcome{Frame: f, Blocked: true, Tag: TagBlocked}
		}
		if res.Changed {
			changed = true
			tag = r.Tag()
			metrics.RulesApplied.WithLabelValues(r.Name()).Inc()
			if e.logger != nil {
				e.logger.Debugf("Rule %s rewrote %s message %s", r.Name(), f.Action, f.ID)
			}
		}
	}

	if !changed {
		return Outcome{Frame: f}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// 序列化失败时放弃改写，原帧透传
		if e.logger != nil {
			e.logger.Errorf("Failed to re-encode rewritten payload for %s: %v", f.ID, err)
		}
		return Outcome{Frame: f}
	}

	return Outcome{Frame: f.WithPayload(data), Changed: true, Tag: tag}
}

// RuleNames 当前启用的规则名列表
func (e *Engine) RuleNames() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}
