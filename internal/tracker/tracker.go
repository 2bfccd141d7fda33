package tracker

import (
	"sync"
	"time"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
	"github.com/charging-platform/ocpp-proxy/internal/logger"
	"github.com/charging-platform/ocpp-proxy/internal/metrics"
	"github.com/charging-platform/ocpp-proxy/internal/status"
)

// Sender 向两侧连接注入合成消息
// 由中继实现，负责写入、审计与快照折叠
type Sender interface {
	SendToController(f *frame.Frame, tag string) error
	SendToWallbox(f *frame.Frame, tag string) error
}

// Config 跟踪器配置
// 设备身份字段用于代替不响应触发的壁挂桩虚构BootNotification
type Config struct {
	TriggerTimeout  time.Duration
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	ConfigKeys      map[string]string
}

// DefaultConfig 默认跟踪器配置
func DefaultConfig() *Config {
	return &Config{
		TriggerTimeout:  3 * time.Second,
		Vendor:          "AcTec",
		Model:           "Wallbox",
		SerialNumber:    "AcTec001",
		FirmwareVersion: "1.0",
		ConfigKeys: map[string]string{
			"HeartbeatInterval":        "300",
			"MeterValueSampleInterval": "10",
			"NumberOfConnectors":       "1",
			"SupportedFeatureProfiles": "Core,SmartCharging",
		},
	}
}

// pendingRequest 一个待满足的触发请求
// 每个能力同时至多一条，新触发替换旧的并取消其定时器
type pendingRequest struct {
	messageID   string
	capability  ocpp16.MessageTrigger
	connectorID int
	createdAt   time.Time
	timer       *time.Timer
}

// Tracker 挂起请求跟踪器
// 中继私有，泵协程与定时器回调会并发访问，内部加锁
type Tracker struct {
	cfg    *Config
	store  *status.Store
	sender Sender
	logger *logger.Logger
	now    func() time.Time

	mu                 sync.Mutex
	pending            map[ocpp16.MessageTrigger]*pendingRequest
	wallboxCalls       map[string]string
	controllerCalls    map[string]string
	suppressWallbox    map[string]struct{}
	suppressController map[string]struct{}
	stopped            bool
}

// New 创建跟踪器
func New(cfg *Config, store *status.Store, sender Sender, log *logger.Logger) *Tracker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Tracker{
		cfg:                cfg,
		store:              store,
		sender:             sender,
		logger:             log,
		now:                time.Now,
		pending:            make(map[ocpp16.MessageTrigger]*pendingRequest),
		wallboxCalls:       make(map[string]string),
		controllerCalls:    make(map[string]string),
		suppressWallbox:    make(map[string]struct{}),
		suppressController: make(map[string]struct{}),
	}
}

// HandleControllerCall 处理一条中央系统下发的请求帧
// 返回是否仍需转发给壁挂桩；被代答的请求照常转发供记录，
// 壁挂桩自己的应答会被抑制以避免对中央系统重复应答
func (t *Tracker) HandleControllerCall(f *frame.Frame) bool {
	switch f.Action {
	case string(ocpp16.ActionTriggerMessage):
		t.handleTrigger(f)
		return true
	case string(ocpp16.ActionChangeAvailability):
		t.autoRespond(f, ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusAccepted})
		return true
	case string(ocpp16.ActionGetConfiguration):
		t.autoRespond(f, t.buildConfiguration(f))
		return true
	default:
		t.mu.Lock()
		t.controllerCalls[f.ID] = f.Action
		t.mu.Unlock()
		return true
	}
}

// handleTrigger 立即代答Accepted，再按能力决定合成策略
func (t *Tracker) handleTrigger(f *frame.Frame) {
	t.autoRespond(f, ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted})

	var req ocpp16.TriggerMessageRequest
	if err := frame.UnmarshalPayload(f.Payload, &req); err != nil {
		return
	}

	switch req.RequestedMessage {
	case ocpp16.MessageTriggerBootNotification:
		// 该硬件不支持被触发启动通知，不等壁挂桩直接虚构
		t.sendBootNotification()
	case ocpp16.MessageTriggerStatusNotification:
		connectorID := 1
		if req.ConnectorId != nil {
			connectorID = *req.ConnectorId
		}
		t.armStatusTimer(connectorID)
	}
}

// armStatusTimer 启动状态通知的合成定时器
// 同能力的新触发替换旧条目并取消其定时器
func (t *Tracker) armStatusTimer(connectorID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	if prev, ok := t.pending[ocpp16.MessageTriggerStatusNotification]; ok {
		prev.timer.Stop()
	}

	entry := &pendingRequest{
		capability:  ocpp16.MessageTriggerStatusNotification,
		connectorID: connectorID,
		createdAt:   t.now(),
	}
	entry.timer = time.AfterFunc(t.cfg.TriggerTimeout, func() {
		t.onStatusTimeout(entry)
	})
	t.pending[ocpp16.MessageTriggerStatusNotification] = entry
}

// onStatusTimeout 超时后以最后已知连接器状态代发StatusNotification
func (t *Tracker) onStatusTimeout(entry *pendingRequest) {
	t.mu.Lock()
	current, ok := t.pending[ocpp16.MessageTriggerStatusNotification]
	if !ok || current != entry || t.stopped {
		t.mu.Unlock()
		return
	}
	delete(t.pending, ocpp16.MessageTriggerStatusNotification)
	t.mu.Unlock()

	connectorID, st, errorCode := t.store.ConnectorStatus()
	if entry.connectorID != 0 {
		connectorID = entry.connectorID
	}

	f, err := frame.NewCall(string(ocpp16.ActionStatusNotification), ocpp16.StatusNotificationRequest{
		ConnectorId: connectorID,
		Status:      ocpp16.ChargePointStatus(st),
		ErrorCode:   ocpp16.ChargePointErrorCode(errorCode),
		Timestamp:   t.now().UTC().Format(ocpp16.TimestampLayout),
	})
	if err != nil {
		return
	}
	t.sendSynthetic(f, "status_notification")
}

// sendBootNotification 用固定设备身份虚构启动通知
func (t *Tracker) sendBootNotification() {
	f, err := frame.NewCall(string(ocpp16.ActionBootNotification), ocpp16.BootNotificationRequest{
		ChargePointVendor:       t.cfg.Vendor,
		ChargePointModel:        t.cfg.Model,
		ChargePointSerialNumber: t.cfg.SerialNumber,
		FirmwareVersion:         t.cfg.FirmwareVersion,
	})
	if err != nil {
		return
	}
	t.sendSynthetic(f, "boot_notification")
}

func (t *Tracker) sendSynthetic(f *frame.Frame, kind string) {
	t.SuppressControllerReply(f.ID)
	if err := t.sender.SendToController(f, status.TagSynthetic); err != nil {
		if t.logger != nil {
			t.logger.Errorf("Failed to send synthetic %s: %v", f.Action, err)
		}
		return
	}
	metrics.SyntheticMessages.WithLabelValues(kind).Inc()
	if t.logger != nil {
		t.logger.Infof("Sent synthetic %s to controller", f.Action)
	}
}

// autoRespond 以壁挂桩的名义立即应答中央系统
// 同时抑制壁挂桩随后对同一请求的真实应答
func (t *Tracker) autoRespond(call *frame.Frame, payload interface{}) {
	resp, err := frame.NewCallResult(call.ID, payload)
	if err != nil {
		return
	}
	t.SuppressWallboxReply(call.ID)
	if err := t.sender.SendToController(resp, status.TagAutoResponse); err != nil {
		if t.logger != nil {
			t.logger.Errorf("Failed to auto-respond %s: %v", call.Action, err)
		}
		return
	}
	metrics.SyntheticMessages.WithLabelValues("auto_response").Inc()
	if t.logger != nil {
		t.logger.Infof("Auto-responded %s on behalf of wallbox", call.Action)
	}
}

// buildConfiguration 按请求的键过滤固定配置表
// 请求未列键时返回全部，请求了未知键时归入unknownKey
func (t *Tracker) buildConfiguration(f *frame.Frame) ocpp16.GetConfigurationResponse {
	var req ocpp16.GetConfigurationRequest
	_ = frame.UnmarshalPayload(f.Payload, &req)

	var resp ocpp16.GetConfigurationResponse
	if len(req.Key) == 0 {
		for key, value := range t.cfg.ConfigKeys {
			resp.ConfigurationKey = append(resp.ConfigurationKey, ocpp16.KeyValue{Key: key, Value: value})
		}
		return resp
	}
	for _, key := range req.Key {
		if value, ok := t.cfg.ConfigKeys[key]; ok {
			resp.ConfigurationKey = append(resp.ConfigurationKey, ocpp16.KeyValue{Key: key, Value: value})
		} else {
			resp.UnknownKey = append(resp.UnknownKey, key)
		}
	}
	return resp
}

// ObserveWallboxCall 记录壁挂桩发出的请求帧
// 命中挂起能力时清除该条目，真实消息先到则不再合成
func (t *Tracker) ObserveWallboxCall(f *frame.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.wallboxCalls[f.ID] = f.Action

	if f.Action == string(ocpp16.ActionStatusNotification) {
		if entry, ok := t.pending[ocpp16.MessageTriggerStatusNotification]; ok {
			entry.timer.Stop()
			delete(t.pending, ocpp16.MessageTriggerStatusNotification)
			if t.logger != nil {
				t.logger.Debugf("Pending StatusNotification resolved by real message %s", f.ID)
			}
		}
	}
}

// ResolveWallboxCall 根据消息ID还原壁挂桩请求的动作名
// 供折叠中央系统应答帧时使用，命中后条目删除
func (t *Tracker) ResolveWallboxCall(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	action := t.wallboxCalls[id]
	delete(t.wallboxCalls, id)
	return action
}

// ResolveControllerCall 根据消息ID还原中央系统请求的动作名
func (t *Tracker) ResolveControllerCall(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	action := t.controllerCalls[id]
	delete(t.controllerCalls, id)
	return action
}

// SuppressWallboxReply 标记该ID的壁挂桩应答只记录不转发
func (t *Tracker) SuppressWallboxReply(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suppressWallbox[id] = struct{}{}
}

// SuppressControllerReply 标记该ID的中央系统应答只记录不转发
func (t *Tracker) SuppressControllerReply(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suppressController[id] = struct{}{}
}

// ShouldSuppress 判断一条应答帧是否应被抑制
// dir是应答帧自身的传输方向，命中后标记清除
func (t *Tracker) ShouldSuppress(dir frame.Direction, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.suppressController
	if dir == frame.WallboxToController {
		set = t.suppressWallbox
	}
	if _, ok := set[id]; ok {
		delete(set, id)
		return true
	}
	return false
}

// Stop 取消全部定时器，中继拆除时调用
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for capability, entry := range t.pending {
		entry.timer.Stop()
		delete(t.pending, capability)
	}
}
