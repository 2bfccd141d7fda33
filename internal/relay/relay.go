package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charging-platform/ocpp-proxy/internal/audit"
	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
	"github.com/charging-platform/ocpp-proxy/internal/domain/station"
	"github.com/charging-platform/ocpp-proxy/internal/events"
	"github.com/charging-platform/ocpp-proxy/internal/logger"
	"github.com/charging-platform/ocpp-proxy/internal/message"
	"github.com/charging-platform/ocpp-proxy/internal/metrics"
	"github.com/charging-platform/ocpp-proxy/internal/rules"
	"github.com/charging-platform/ocpp-proxy/internal/status"
	"github.com/charging-platform/ocpp-proxy/internal/tracker"
)

// ErrDial 中央系统拨号失败
// 对中继是致命错误，壁挂桩连接立即关闭，由站点自行重连
var ErrDial = errors.New("controller dial failed")

// ProvisionSetting 启动后下发的一条配置
type ProvisionSetting struct {
	Key   string
	Value string
}

// Config 中继配置
type Config struct {
	ControllerAddr string
	DialTimeout    time.Duration

	ProvisionEnabled  bool
	ProvisionDelay    time.Duration
	ProvisionSpacing  time.Duration
	ProvisionSettings []ProvisionSetting
}

// DefaultConfig 默认中继配置
func DefaultConfig() *Config {
	return &Config{
		ControllerAddr:   "192.168.0.150:8887",
		DialTimeout:      10 * time.Second,
		ProvisionEnabled: true,
		ProvisionDelay:   5 * time.Second,
		ProvisionSpacing: 500 * time.Millisecond,
		ProvisionSettings: []ProvisionSetting{
			{Key: "HeartbeatInterval", Value: "300"},
			{Key: "MeterValueSampleInterval", Value: "10"},
			{Key: "MeterValuesSampledData", Value: "Energy.Active.Import.Register,Power.Active.Import,Current.Import,Voltage"},
			{Key: "ClockAlignedDataInterval", Value: "0"},
		},
	}
}

// Relay 一条壁挂桩会话的端到端中继
// 持有两侧连接，跑两个方向泵，任一侧断开整条中继拆除
type Relay struct {
	station    station.Identity
	cfg        *Config
	wallbox    *websocket.Conn
	controller *websocket.Conn

	engine   *rules.Engine
	tracker  *tracker.Tracker
	store    *status.Store
	msgLog   *status.MessageLog
	audit    *audit.Writer
	producer message.EventProducer
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// 每侧一把写锁，泵、定时器与API注入会并发写同一连接
	wallboxWriteMu    sync.Mutex
	controllerWriteMu sync.Mutex

	bootOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// Deps 中继的共享依赖，由监听器转交
type Deps struct {
	Engine   *rules.Engine
	Tracker  *tracker.Config
	Store    *status.Store
	MsgLog   *status.MessageLog
	Audit    *audit.Writer
	Producer message.EventProducer
	Logger   *logger.Logger
}

// New 创建中继，尚未拨号
func New(st station.Identity, wallbox *websocket.Conn, cfg *Config, deps Deps) *Relay {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	producer := deps.Producer
	if producer == nil {
		producer = message.NoopProducer{}
	}

	r := &Relay{
		station:  st,
		cfg:      cfg,
		wallbox:  wallbox,
		engine:   deps.Engine,
		store:    deps.Store,
		msgLog:   deps.MsgLog,
		audit:    deps.Audit,
		producer: producer,
		logger:   deps.Logger.WithStation(string(st)),
		done:     make(chan struct{}),
	}
	r.tracker = tracker.New(deps.Tracker, deps.Store, r, deps.Logger)
	return r
}

// Station 该中继服务的站点
func (r *Relay) Station() station.Identity {
	return r.station
}

// Done 中继结束时关闭
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Run 拨号中央系统并泵送双向流量，直到任一侧断开
// 阻塞直到中继结束；拨号失败立即关闭壁挂桩侧并返回ErrDial
func (r *Relay) Run(ctx context.Context) error {
	target := url.URL{Scheme: "ws", Host: r.cfg.ControllerAddr, Path: r.station.Path()}

	dialer := websocket.Dialer{
		HandshakeTimeout: r.cfg.DialTimeout,
		Subprotocols:     []string{ocpp16.SubprotocolName},
	}
	controller, _, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		metrics.DialFailures.Inc()
		r.logger.Errorf("Failed to dial controller %s: %v", target.String(), err)
		reason := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "controller unreachable")
		_ = r.wallbox.WriteControl(websocket.CloseMessage, reason, time.Now().Add(time.Second))
		_ = r.wallbox.Close()
		close(r.done)
		return fmt.Errorf("%w: %v", ErrDial, err)
	}
	r.controller = controller
	r.logger.Infof("Relay established: wallbox %s <-> controller %s", r.wallbox.RemoteAddr(), target.String())

	r.ctx, r.cancel = context.WithCancel(ctx)
	metrics.ActiveRelays.Inc()
	_ = r.producer.PublishEvent(events.NewStationConnectedEvent(r.station, r.wallbox.RemoteAddr().String()))

	go func() {
		<-r.ctx.Done()
		r.cancelRelay()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.pump(frame.WallboxToController, r.wallbox)
	}()
	go func() {
		defer wg.Done()
		r.pump(frame.ControllerToWallbox, r.controller)
	}()
	wg.Wait()

	r.teardown("pump terminated")
	return nil
}

// pump 单方向泵，严格按到达顺序逐帧处理
func (r *Relay) pump(dir frame.Direction, conn *websocket.Conn) {
	defer r.cancelRelay()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if r.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				metrics.RelayErrors.WithLabelValues(dir.String()).Inc()
				r.logger.Infof("Pump %s ended: %v", dir, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			// OCPP不使用二进制帧，原样透传不改动帧边界
			if err := r.writeRaw(dir, msgType, data); err != nil {
				return
			}
			continue
		}
		if err := r.process(dir, data); err != nil {
			return
		}
	}
}

// process 解码、修正、跟踪、折叠并转发一帧
// 解码失败的帧保守转发，代理绝不因无法分类而丢消息
func (r *Relay) process(dir frame.Direction, data []byte) error {
	f, err := frame.Decode(data)
	if err != nil {
		r.logger.Debugf("Passing through unclassified frame: %v", err)
		r.record(dir, data, "")
		return r.writeRaw(dir, websocket.TextMessage, data)
	}

	outcome := r.engine.Apply(dir, f)
	if outcome.Blocked {
		// 拦截不豁免折叠，快照记录的是被命令而非被执行的状态
		r.store.Fold(dir, f, "")
		r.record(dir, data, outcome.Tag)
		_ = r.producer.PublishEvent(events.NewCommandBlockedEvent(r.station, f.Action, string(data)))
		r.logger.Infof("Blocked %s %s", f.Action, f.ID)
		return nil
	}
	out := outcome.Frame

	if dir == frame.WallboxToController {
		switch out.Type {
		case frame.Call:
			r.tracker.ObserveWallboxCall(out)
			r.store.Fold(dir, out, "")
			r.publishWallboxEvent(out)
			if out.Action == string(ocpp16.ActionBootNotification) {
				r.scheduleProvisioning()
			}
		case frame.CallResult, frame.CallError:
			// 转发与否都先折叠，代答请求的真实应答仍可能携带新状态
			r.store.Fold(dir, out, r.tracker.ResolveControllerCall(out.ID))
			if r.tracker.ShouldSuppress(dir, out.ID) {
				// 已代答过的请求，壁挂桩的真实应答只记录不转发
				r.record(dir, data, "")
				r.logger.Debugf("Suppressed wallbox reply %s", out.ID)
				return nil
			}
		}
	} else {
		switch out.Type {
		case frame.Call:
			r.store.Fold(dir, out, "")
			if !r.tracker.HandleControllerCall(out) {
				r.record(dir, data, "")
				return nil
			}
		case frame.CallResult, frame.CallError:
			resolved := r.tracker.ResolveWallboxCall(out.ID)
			if r.tracker.ShouldSuppress(dir, out.ID) {
				r.store.Fold(dir, out, resolved)
				r.record(dir, data, "")
				r.logger.Debugf("Suppressed controller reply %s", out.ID)
				return nil
			}
			r.store.Fold(dir, out, resolved)
		}
	}

	encoded, err := out.Encode()
	if err != nil {
		r.logger.Errorf("Failed to encode frame %s, forwarding original: %v", out.ID, err)
		encoded = data
	}
	r.record(dir, encoded, outcome.Tag)
	return r.writeRaw(dir, websocket.TextMessage, encoded)
}

// publishWallboxEvent 把桩侧业务消息映射为导出事件
func (r *Relay) publishWallboxEvent(f *frame.Frame) {
	switch f.Action {
	case string(ocpp16.ActionStatusNotification):
		var req ocpp16.StatusNotificationRequest
		if frame.UnmarshalPayload(f.Payload, &req) == nil {
			_ = r.producer.PublishEvent(events.NewStatusChangedEvent(r.station, req.ConnectorId, string(req.Status), string(req.ErrorCode)))
		}
	case string(ocpp16.ActionStartTransaction):
		var req ocpp16.StartTransactionRequest
		if frame.UnmarshalPayload(f.Payload, &req) == nil {
			_ = r.producer.PublishEvent(events.NewTransactionStartedEvent(r.station, req.ConnectorId, req.IdTag, req.MeterStart))
		}
	case string(ocpp16.ActionStopTransaction):
		var req ocpp16.StopTransactionRequest
		if frame.UnmarshalPayload(f.Payload, &req) == nil {
			_ = r.producer.PublishEvent(events.NewTransactionStoppedEvent(r.station, req.TransactionId, req.MeterStop, req.Reason))
		}
	case string(ocpp16.ActionMeterValues):
		snap := r.store.Snapshot()
		_ = r.producer.PublishEvent(events.NewMeterValuesReceivedEvent(r.station, snap.Wallbox.ConnectorID, snap.Wallbox.PowerTotal, snap.Wallbox.Energy))
	}
}

// SendToController 以壁挂桩的名义向中央系统注入一帧
func (r *Relay) SendToController(f *frame.Frame, tag string) error {
	encoded, err := f.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode injected frame: %w", err)
	}
	r.store.Fold(frame.WallboxToController, f, "")
	r.record(frame.WallboxToController, encoded, tag)

	r.controllerWriteMu.Lock()
	defer r.controllerWriteMu.Unlock()
	return r.controller.WriteMessage(websocket.TextMessage, encoded)
}

// SendToWallbox 以中央系统的名义向壁挂桩注入一帧
// 调用方负责抑制壁挂桩对该帧的应答
func (r *Relay) SendToWallbox(f *frame.Frame, tag string) error {
	encoded, err := f.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode injected frame: %w", err)
	}
	r.store.Fold(frame.ControllerToWallbox, f, "")
	r.record(frame.ControllerToWallbox, encoded, tag)

	r.wallboxWriteMu.Lock()
	defer r.wallboxWriteMu.Unlock()
	return r.wallbox.WriteMessage(websocket.TextMessage, encoded)
}

// InjectCommand 下发一条运维指令给壁挂桩
// 壁挂桩的应答只记录，不会被转发给并未发问的中央系统
func (r *Relay) InjectCommand(f *frame.Frame) error {
	r.tracker.SuppressWallboxReply(f.ID)
	if err := r.SendToWallbox(f, status.TagSynthetic); err != nil {
		return err
	}
	metrics.SyntheticMessages.WithLabelValues("operator_command").Inc()
	r.logger.Infof("Injected %s %s to wallbox", f.Action, f.ID)
	return nil
}

// scheduleProvisioning 启动通知后安排一次性延迟配置下发
// 绑定中继上下文，连接断开时未完成的下发取消
func (r *Relay) scheduleProvisioning() {
	if !r.cfg.ProvisionEnabled || len(r.cfg.ProvisionSettings) == 0 {
		return
	}
	r.bootOnce.Do(func() {
		go r.provision()
	})
}

// provision 固定延迟后按固定间隔下发配置序列，尽力而为
func (r *Relay) provision() {
	select {
	case <-r.ctx.Done():
		return
	case <-time.After(r.cfg.ProvisionDelay):
	}

	r.logger.Infof("Starting post-boot provisioning: %d settings", len(r.cfg.ProvisionSettings))
	for i, setting := range r.cfg.ProvisionSettings {
		if i > 0 {
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(r.cfg.ProvisionSpacing):
			}
		}

		f, err := frame.NewCall(string(ocpp16.ActionChangeConfiguration), ocpp16.ChangeConfigurationRequest{
			Key:   setting.Key,
			Value: setting.Value,
		})
		if err != nil {
			continue
		}
		r.tracker.SuppressWallboxReply(f.ID)
		if err := r.SendToWallbox(f, status.TagSynthetic); err != nil {
			r.logger.Errorf("Provisioning write failed at %s: %v", setting.Key, err)
			return
		}
		metrics.SyntheticMessages.WithLabelValues("provisioning").Inc()
	}
	r.logger.Info("Post-boot provisioning complete")
}

func (r *Relay) writeRaw(dir frame.Direction, msgType int, data []byte) error {
	var mu *sync.Mutex
	var conn *websocket.Conn
	if dir == frame.WallboxToController {
		mu, conn = &r.controllerWriteMu, r.controller
	} else {
		mu, conn = &r.wallboxWriteMu, r.wallbox
	}

	mu.Lock()
	defer mu.Unlock()
	if err := conn.WriteMessage(msgType, data); err != nil {
		metrics.RelayErrors.WithLabelValues(dir.String()).Inc()
		return err
	}
	metrics.MessagesRelayed.WithLabelValues(dir.String()).Inc()
	return nil
}

// record 同时写入环形消息日志与轮转审计日志
func (r *Relay) record(dir frame.Direction, raw []byte, tag string) {
	r.msgLog.Append(r.station, dir, raw, tag)
	r.audit.Log(dir, raw, tag)
}

func (r *Relay) cancelRelay() {
	if r.cancel != nil {
		r.cancel()
	}
	// 关闭两侧连接解除对端泵的阻塞读
	_ = r.wallbox.Close()
	if r.controller != nil {
		_ = r.controller.Close()
	}
}

// teardown 中继整体拆除，取消定时器并发布断开事件
func (r *Relay) teardown(reason string) {
	r.closeOnce.Do(func() {
		r.cancelRelay()
		r.tracker.Stop()
		metrics.ActiveRelays.Dec()
		_ = r.producer.PublishEvent(events.NewStationDisconnectedEvent(r.station, reason))
		r.logger.Infof("Relay closed: %s", reason)
		close(r.done)
	})
}
