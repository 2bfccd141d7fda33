package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/charging-platform/ocpp-proxy/internal/domain/station"
)

// EventType 事件类型
type EventType string

const (
	EventTypeStationConnected    EventType = "station.connected"
	EventTypeStationDisconnected EventType = "station.disconnected"
	EventTypeStatusChanged       EventType = "station.status_changed"
	EventTypeTransactionStarted  EventType = "transaction.started"
	EventTypeTransactionStopped  EventType = "transaction.stopped"
	EventTypeMeterValuesReceived EventType = "meter_values.received"
	EventTypeCommandBlocked      EventType = "command.blocked"
)

// Event 统一业务事件接口
type Event interface {
	// GetID 获取事件ID
	GetID() string
	// GetType 获取事件类型
	GetType() EventType
	// GetStationID 获取站点标识
	GetStationID() string
	// GetTimestamp 获取事件时间戳
	GetTimestamp() time.Time
	// ToJSON 序列化为JSON
	ToJSON() ([]byte, error)
}

// BaseEvent 基础事件结构
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	StationID string    `json:"station_id"`
	Timestamp time.Time `json:"timestamp"`
}

// GetID 实现Event接口
func (e *BaseEvent) GetID() string { return e.ID }

// GetType 实现Event接口
func (e *BaseEvent) GetType() EventType { return e.Type }

// GetStationID 实现Event接口
func (e *BaseEvent) GetStationID() string { return e.StationID }

// GetTimestamp 实现Event接口
func (e *BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType EventType, st station.Identity) *BaseEvent {
	return &BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		StationID: string(st),
		Timestamp: time.Now().UTC(),
	}
}

// StationConnectedEvent 站点接入事件
type StationConnectedEvent struct {
	*BaseEvent
	RemoteAddr string `json:"remote_addr"`
}

// ToJSON 实现Event接口
func (e *StationConnectedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// NewStationConnectedEvent 创建站点接入事件
func NewStationConnectedEvent(st station.Identity, remoteAddr string) *StationConnectedEvent {
	return &StationConnectedEvent{
		BaseEvent:  NewBaseEvent(EventTypeStationConnected, st),
		RemoteAddr: remoteAddr,
	}
}

// StationDisconnectedEvent 站点断开事件
type StationDisconnectedEvent struct {
	*BaseEvent
	Reason string `json:"reason"`
}

// ToJSON 实现Event接口
func (e *StationDisconnectedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// NewStationDisconnectedEvent 创建站点断开事件
func NewStationDisconnectedEvent(st station.Identity, reason string) *StationDisconnectedEvent {
	return &StationDisconnectedEvent{
		BaseEvent: NewBaseEvent(EventTypeStationDisconnected, st),
		Reason:    reason,
	}
}

// StatusChangedEvent 充电桩状态变更事件
type StatusChangedEvent struct {
	*BaseEvent
	ConnectorID int    `json:"connector_id"`
	Status      string `json:"status"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// ToJSON 实现Event接口
func (e *StatusChangedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// NewStatusChangedEvent 创建状态变更事件
func NewStatusChangedEvent(st station.Identity, connectorID int, status, errorCode string) *StatusChangedEvent {
	return &StatusChangedEvent{
		BaseEvent:   NewBaseEvent(EventTypeStatusChanged, st),
		ConnectorID: connectorID,
		Status:      status,
		ErrorCode:   errorCode,
	}
}

// TransactionStartedEvent 交易开始事件
type TransactionStartedEvent struct {
	*BaseEvent
	ConnectorID int    `json:"connector_id"`
	IdTag       string `json:"id_tag"`
	MeterStart  int    `json:"meter_start"`
}

// ToJSON 实现Event接口
func (e *TransactionStartedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// NewTransactionStartedEvent 创建交易开始事件
func NewTransactionStartedEvent(st station.Identity, connectorID int, idTag string, meterStart int) *TransactionStartedEvent {
	return &TransactionStartedEvent{
		BaseEvent:   NewBaseEvent(EventTypeTransactionStarted, st),
		ConnectorID: connectorID,
		IdTag:       idTag,
		MeterStart:  meterStart,
	}
}

// TransactionStoppedEvent 交易停止事件
type TransactionStoppedEvent struct {
	*BaseEvent
	TransactionID int    `json:"transaction_id"`
	MeterStop     int    `json:"meter_stop"`
	Reason        string `json:"reason,omitempty"`
}

// ToJSON 实现Event接口
func (e *TransactionStoppedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// NewTransactionStoppedEvent 创建交易停止事件
func NewTransactionStoppedEvent(st station.Identity, transactionID, meterStop int, reason string) *TransactionStoppedEvent {
	return &TransactionStoppedEvent{
		BaseEvent:     NewBaseEvent(EventTypeTransactionStopped, st),
		TransactionID: transactionID,
		MeterStop:     meterStop,
		Reason:        reason,
	}
}

// MeterValuesReceivedEvent 电表数据事件
type MeterValuesReceivedEvent struct {
	*BaseEvent
	ConnectorID int     `json:"connector_id"`
	PowerTotal  float64 `json:"power_total"`
	Energy      float64 `json:"energy"`
}

// ToJSON 实现Event接口
func (e *MeterValuesReceivedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// NewMeterValuesReceivedEvent 创建电表数据事件
func NewMeterValuesReceivedEvent(st station.Identity, connectorID int, powerTotal, energy float64) *MeterValuesReceivedEvent {
	return &MeterValuesReceivedEvent{
		BaseEvent:   NewBaseEvent(EventTypeMeterValuesReceived, st),
		ConnectorID: connectorID,
		PowerTotal:  powerTotal,
		Energy:      energy,
	}
}

// CommandBlockedEvent 指令被拦截事件
type CommandBlockedEvent struct {
	*BaseEvent
	Action string `json:"action"`
	Raw    string `json:"raw"`
}

// ToJSON 实现Event接口
func (e *CommandBlockedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// NewCommandBlockedEvent 创建指令拦截事件
func NewCommandBlockedEvent(st station.Identity, action, raw string) *CommandBlockedEvent {
	return &CommandBlockedEvent{
		BaseEvent: NewBaseEvent(EventTypeCommandBlocked, st),
		Action:    action,
		Raw:       raw,
	}
}
