package ocpp16

// SubprotocolName OCPP 1.6J的WebSocket子协议标识
const SubprotocolName = "ocpp1.6"

// Action OCPP动作类型
type Action string

const (
	// Core Profile Actions
	ActionAuthorize              Action = "Authorize"
	ActionBootNotification       Action = "BootNotification"
	ActionChangeAvailability     Action = "ChangeAvailability"
	ActionChangeConfiguration    Action = "ChangeConfiguration"
	ActionDataTransfer           Action = "DataTransfer"
	ActionGetConfiguration       Action = "GetConfiguration"
	ActionHeartbeat              Action = "Heartbeat"
	ActionMeterValues            Action = "MeterValues"
	ActionRemoteStartTransaction Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction  Action = "RemoteStopTransaction"
	ActionReset                  Action = "Reset"
	ActionStartTransaction       Action = "StartTransaction"
	ActionStatusNotification     Action = "StatusNotification"
	ActionStopTransaction        Action = "StopTransaction"

	// Smart Charging Profile Actions
	ActionClearChargingProfile Action = "ClearChargingProfile"
	ActionSetChargingProfile   Action = "SetChargingProfile"

	// Trigger Message Profile Actions
	ActionTriggerMessage Action = "TriggerMessage"
)

// ChargePointStatus 充电桩状态
type ChargePointStatus string

const (
	ChargePointStatusAvailable     ChargePointStatus = "Available"
	ChargePointStatusPreparing     ChargePointStatus = "Preparing"
	ChargePointStatusCharging      ChargePointStatus = "Charging"
	ChargePointStatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	ChargePointStatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	ChargePointStatusFinishing     ChargePointStatus = "Finishing"
	ChargePointStatusReserved      ChargePointStatus = "Reserved"
	ChargePointStatusUnavailable   ChargePointStatus = "Unavailable"
	ChargePointStatusFaulted       ChargePointStatus = "Faulted"
	ChargePointStatusUnknown       ChargePointStatus = "Unknown"
)

// ChargePointErrorCode 充电桩错误代码
type ChargePointErrorCode string

const (
	ErrorCodeNoError       ChargePointErrorCode = "NoError"
	ErrorCodeOtherError    ChargePointErrorCode = "OtherError"
	ErrorCodeInternalError ChargePointErrorCode = "InternalError"
	ErrorCodeGroundFailure ChargePointErrorCode = "GroundFailure"
	ErrorCodeOverVoltage   ChargePointErrorCode = "OverVoltage"
	ErrorCodeUnderVoltage  ChargePointErrorCode = "UnderVoltage"
	ErrorCodeWeakSignal    ChargePointErrorCode = "WeakSignal"
)

// RegistrationStatus 注册状态
type RegistrationStatus string

const (
	RegistrationStatusAccepted RegistrationStatus = "Accepted"
	RegistrationStatusPending  RegistrationStatus = "Pending"
	RegistrationStatusRejected RegistrationStatus = "Rejected"
)

// TriggerMessageStatus 触发消息状态
type TriggerMessageStatus string

const (
	TriggerMessageStatusAccepted       TriggerMessageStatus = "Accepted"
	TriggerMessageStatusRejected       TriggerMessageStatus = "Rejected"
	TriggerMessageStatusNotImplemented TriggerMessageStatus = "NotImplemented"
)

// MessageTrigger 可以被TriggerMessage请求的消息类型
type MessageTrigger string

const (
	MessageTriggerBootNotification   MessageTrigger = "BootNotification"
	MessageTriggerHeartbeat          MessageTrigger = "Heartbeat"
	MessageTriggerMeterValues        MessageTrigger = "MeterValues"
	MessageTriggerStatusNotification MessageTrigger = "StatusNotification"
)

// ResetType 重置类型
type ResetType string

const (
	ResetTypeHard ResetType = "Hard"
	ResetTypeSoft ResetType = "Soft"
)

// AvailabilityType 可用性类型
type AvailabilityType string

const (
	AvailabilityTypeOperative   AvailabilityType = "Operative"
	AvailabilityTypeInoperative AvailabilityType = "Inoperative"
)

// AvailabilityStatus 可用性状态
type AvailabilityStatus string

const (
	AvailabilityStatusAccepted  AvailabilityStatus = "Accepted"
	AvailabilityStatusRejected  AvailabilityStatus = "Rejected"
	AvailabilityStatusScheduled AvailabilityStatus = "Scheduled"
)

// ConfigurationStatus 配置状态
type ConfigurationStatus string

const (
	ConfigurationStatusAccepted       ConfigurationStatus = "Accepted"
	ConfigurationStatusRejected       ConfigurationStatus = "Rejected"
	ConfigurationStatusRebootRequired ConfigurationStatus = "RebootRequired"
	ConfigurationStatusNotSupported   ConfigurationStatus = "NotSupported"
)

// ChargingProfilePurpose 充电曲线用途
type ChargingProfilePurpose string

const (
	ChargingProfilePurposeChargePointMaxProfile ChargingProfilePurpose = "ChargePointMaxProfile"
	ChargingProfilePurposeTxDefaultProfile      ChargingProfilePurpose = "TxDefaultProfile"
	ChargingProfilePurposeTxProfile             ChargingProfilePurpose = "TxProfile"
)

// ChargingProfileKind 充电曲线类型
type ChargingProfileKind string

const (
	ChargingProfileKindAbsolute  ChargingProfileKind = "Absolute"
	ChargingProfileKindRecurring ChargingProfileKind = "Recurring"
	ChargingProfileKindRelative  ChargingProfileKind = "Relative"
)

// ChargingRateUnit 充电速率单位
type ChargingRateUnit string

const (
	ChargingRateUnitWatts   ChargingRateUnit = "W"
	ChargingRateUnitAmperes ChargingRateUnit = "A"
)

// Measurand 测量值类型
type Measurand string

const (
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandCurrentImport              Measurand = "Current.Import"
	MeasurandVoltage                    Measurand = "Voltage"
)

// Phase 相位
type Phase string

const (
	PhaseL1 Phase = "L1"
	PhaseL2 Phase = "L2"
	PhaseL3 Phase = "L3"
)

// TimestampLayout OCPP 1.6J使用的带毫秒的UTC时间格式
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// MaxIdTagLength IdTag的长度上限（CiString20Type）
const MaxIdTagLength = 20
