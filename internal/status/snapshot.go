package status

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
)

// WallboxStatus 从桩侧流量折叠出的实时遥测
// 三相数组下标0/1/2对应L1/L2/L3
type WallboxStatus struct {
	Voltage       [3]float64        `json:"voltage"`
	Current       [3]float64        `json:"current"`
	Power         [3]float64        `json:"power"`
	PowerTotal    float64           `json:"powerTotal"`
	Energy        float64           `json:"energy"`
	Status        string            `json:"status"`
	ConnectorID   int               `json:"connectorId"`
	ErrorCode     string            `json:"errorCode"`
	Info          string            `json:"info"`
	VendorID      string            `json:"vendorId"`
	VendorError   string            `json:"vendorErrorCode"`
	TransactionID *int              `json:"transactionId"`
	Configuration map[string]string `json:"configuration"`
	LastUpdate    time.Time         `json:"lastUpdate"`
}

// ControllerStatus 从中央系统下行流量折叠出的指令状态
type ControllerStatus struct {
	ChargingLimit float64   `json:"chargingLimit"`
	ChargingUnit  string    `json:"chargingUnit"`
	LastCommand   string    `json:"lastCommand"`
	LastUpdate    time.Time `json:"lastUpdate"`
}

// Snapshot 对外暴露的快照，深拷贝，读取方可以随意持有
type Snapshot struct {
	Wallbox    WallboxStatus    `json:"wallbox"`
	Controller ControllerStatus `json:"controller"`
}

// Store 实时状态存储
// 所有中继并发写入，单锁保护，更新频率是人类时间尺度
type Store struct {
	mu         sync.Mutex
	wallbox    WallboxStatus
	controller ControllerStatus
	now        func() time.Time
}

// NewStore 创建初始为零值/Unknown的状态存储
func NewStore() *Store {
	return &Store{
		wallbox: WallboxStatus{
			Status:        string(ocpp16.ChargePointStatusUnknown),
			Configuration: make(map[string]string),
		},
		now: time.Now,
	}
}

// Fold 把一帧折叠进快照
// 对每个成功解码的帧调用，与转发决策无关；字段缺失时跳过，绝不报错
// resolvedAction是CallResult对应请求的动作名，帧本身不携带
func (s *Store) Fold(dir frame.Direction, f *frame.Frame, resolvedAction string) {
	var payload map[string]interface{}
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		return
	}

	action := f.Action
	if f.Type == frame.CallResult {
		action = resolvedAction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir == frame.WallboxToController {
		s.foldWallbox(f.Type, action, payload)
	} else {
		s.foldController(f.Type, action, payload)
	}
}

func (s *Store) foldWallbox(t frame.Type, action string, payload map[string]interface{}) {
	switch {
	case t == frame.Call && action == string(ocpp16.ActionMeterValues):
		s.foldMeterValues(payload)
	case t == frame.Call && action == string(ocpp16.ActionStatusNotification):
		s.foldStatusNotification(payload)
	case t == frame.Call && action == string(ocpp16.ActionStartTransaction):
		s.wallbox.Status = string(ocpp16.ChargePointStatusCharging)
		s.touchWallbox()
	case t == frame.Call && action == string(ocpp16.ActionStopTransaction):
		s.wallbox.TransactionID = nil
		s.wallbox.Status = string(ocpp16.ChargePointStatusAvailable)
		s.touchWallbox()
	case t == frame.CallResult:
		// GetConfiguration的应答带configurationKey，与动作名解析无关都合并
		s.mergeConfigurationKeys(payload)
	}
}

func (s *Store) foldController(t frame.Type, action string, payload map[string]interface{}) {
	switch {
	case t == frame.Call && action == string(ocpp16.ActionChangeConfiguration):
		key, _ := payload["key"].(string)
		value, _ := payload["value"].(string)
		if key != "" {
			s.wallbox.Configuration[key] = value
			s.touchWallbox()
		}
	case t == frame.Call && action == string(ocpp16.ActionSetChargingProfile):
		s.foldChargingProfile(payload)
	case t == frame.Call && action == string(ocpp16.ActionRemoteStartTransaction):
		s.controller.LastCommand = string(ocpp16.ActionRemoteStartTransaction)
		s.touchController()
	case t == frame.Call && action == string(ocpp16.ActionRemoteStopTransaction):
		s.controller.LastCommand = string(ocpp16.ActionRemoteStopTransaction)
		s.controller.ChargingLimit = 0
		s.touchController()
	case t == frame.CallResult && action == string(ocpp16.ActionStartTransaction):
		if id, ok := asInt(payload["transactionId"]); ok {
			s.wallbox.TransactionID = &id
			s.touchWallbox()
		}
	}
}

// foldMeterValues 按(measurand, phase)把采样值分拣到三相桶
// 总功率只由本条消息携带的Power.Active.Import样本重新求和，不从电压电流推导
func (s *Store) foldMeterValues(payload map[string]interface{}) {
	meterValues, ok := payload["meterValue"].([]interface{})
	if !ok {
		return
	}

	powerSeen := false
	for _, mv := range meterValues {
		entry, ok := mv.(map[string]interface{})
		if !ok {
			continue
		}
		samples, ok := entry["sampledValue"].([]interface{})
		if !ok {
			continue
		}
		for _, sv := range samples {
			sample, ok := sv.(map[string]interface{})
			if !ok {
				continue
			}
			value, ok := sampleFloat(sample["value"])
			if !ok {
				continue
			}
			measurand, _ := sample["measurand"].(string)
			phase, _ := sample["phase"].(string)

			switch measurand {
			case string(ocpp16.MeasurandVoltage):
				if idx, ok := phaseIndex(phase); ok {
					s.wallbox.Voltage[idx] = value
				}
			case string(ocpp16.MeasurandCurrentImport):
				if idx, ok := phaseIndex(phase); ok {
					s.wallbox.Current[idx] = value
				}
			case string(ocpp16.MeasurandPowerActiveImport):
				if idx, ok := phaseIndex(phase); ok {
					s.wallbox.Power[idx] = value
					powerSeen = true
				}
			case string(ocpp16.MeasurandEnergyActiveImportRegister):
				s.wallbox.Energy = value
			}
		}
	}

	if powerSeen {
		s.wallbox.PowerTotal = s.wallbox.Power[0] + s.wallbox.Power[1] + s.wallbox.Power[2]
	}
	s.touchWallbox()
}

func (s *Store) foldStatusNotification(payload map[string]interface{}) {
	if v, ok := payload["status"].(string); ok {
		s.wallbox.Status = v
	}
	if v, ok := asInt(payload["connectorId"]); ok {
		s.wallbox.ConnectorID = v
	}
	if v, ok := payload["errorCode"].(string); ok {
		s.wallbox.ErrorCode = v
	}
	if v, ok := payload["info"].(string); ok {
		s.wallbox.Info = v
	}
	if v, ok := payload["vendorId"].(string); ok {
		s.wallbox.VendorID = v
	}
	if v, ok := payload["vendorErrorCode"].(string); ok {
		s.wallbox.VendorError = v
	}
	s.touchWallbox()
}

func (s *Store) mergeConfigurationKeys(payload map[string]interface{}) {
	keys, ok := payload["configurationKey"].([]interface{})
	if !ok {
		return
	}
	for _, kv := range keys {
		entry, ok := kv.(map[string]interface{})
		if !ok {
			continue
		}
		key, _ := entry["key"].(string)
		if key == "" {
			continue
		}
		value, _ := entry["value"].(string)
		s.wallbox.Configuration[key] = value
	}
	s.touchWallbox()
}

func (s *Store) foldChargingProfile(payload map[string]interface{}) {
	profile, ok := payload["csChargingProfiles"].(map[string]interface{})
	if !ok {
		return
	}
	schedule, ok := profile["chargingSchedule"].(map[string]interface{})
	if !ok {
		return
	}
	if unit, ok := schedule["chargingRateUnit"].(string); ok {
		s.controller.ChargingUnit = unit
	}
	if periods, ok := schedule["chargingSchedulePeriod"].([]interface{}); ok && len(periods) > 0 {
		if period, ok := periods[0].(map[string]interface{}); ok {
			if limit, ok := sampleFloat(period["limit"]); ok {
				s.controller.ChargingLimit = limit
			}
		}
	}
	s.controller.LastCommand = string(ocpp16.ActionSetChargingProfile)
	s.touchController()
}

// Snapshot 返回当前状态的深拷贝
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallbox := s.wallbox
	wallbox.Configuration = make(map[string]string, len(s.wallbox.Configuration))
	for k, v := range s.wallbox.Configuration {
		wallbox.Configuration[k] = v
	}
	if s.wallbox.TransactionID != nil {
		id := *s.wallbox.TransactionID
		wallbox.TransactionID = &id
	}

	return Snapshot{Wallbox: wallbox, Controller: s.controller}
}

// TransactionID 当前已知的交易号
func (s *Store) TransactionID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallbox.TransactionID == nil {
		return 0, false
	}
	return *s.wallbox.TransactionID, true
}

// ConnectorStatus 最后一次观测到的连接器状态，用于合成StatusNotification
func (s *Store) ConnectorStatus() (connectorID int, status, errorCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	connectorID = s.wallbox.ConnectorID
	if connectorID == 0 {
		connectorID = 1
	}
	status = s.wallbox.Status
	if status == "" || status == string(ocpp16.ChargePointStatusUnknown) {
		status = string(ocpp16.ChargePointStatusAvailable)
	}
	errorCode = s.wallbox.ErrorCode
	if errorCode == "" {
		errorCode = string(ocpp16.ErrorCodeNoError)
	}
	return connectorID, status, errorCode
}

func (s *Store) touchWallbox()    { s.wallbox.LastUpdate = s.now() }
func (s *Store) touchController() { s.controller.LastUpdate = s.now() }

// phaseIndex L1/L2/L3及其L1-N写法映射到数组下标
func phaseIndex(phase string) (int, bool) {
	switch {
	case phase == "" || strings.HasPrefix(phase, string(ocpp16.PhaseL1)):
		return 0, true
	case strings.HasPrefix(phase, string(ocpp16.PhaseL2)):
		return 1, true
	case strings.HasPrefix(phase, string(ocpp16.PhaseL3)):
		return 2, true
	}
	return 0, false
}

// sampleFloat 采样值既可能是字符串也可能是数字
func sampleFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func asInt(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
