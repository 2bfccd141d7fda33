package ocpp16

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
}

// StatusNotificationRequest 状态通知请求
type StatusNotificationRequest struct {
	ConnectorId     int                  `json:"connectorId"`
	Status          ChargePointStatus    `json:"status"`
	ErrorCode       ChargePointErrorCode `json:"errorCode"`
	Info            string               `json:"info,omitempty"`
	Timestamp       string               `json:"timestamp,omitempty"`
	VendorId        string               `json:"vendorId,omitempty"`
	VendorErrorCode string               `json:"vendorErrorCode,omitempty"`
}

// MeterValuesRequest 电表值请求
type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

// MeterValue 单个时间点的采样集合
type MeterValue struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// SampledValue 采样值
type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// StartTransactionRequest 开始交易请求
type StartTransactionRequest struct {
	ConnectorId   int    `json:"connectorId"`
	IdTag         string `json:"idTag"`
	MeterStart    int    `json:"meterStart"`
	ReservationId *int   `json:"reservationId,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// StartTransactionResponse 开始交易响应
type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
	TransactionId int       `json:"transactionId"`
}

// StopTransactionRequest 结束交易请求
type StopTransactionRequest struct {
	IdTag         string `json:"idTag,omitempty"`
	MeterStop     int    `json:"meterStop"`
	Timestamp     string `json:"timestamp"`
	TransactionId int    `json:"transactionId"`
	Reason        string `json:"reason,omitempty"`
}

// IdTagInfo ID标签信息
type IdTagInfo struct {
	Status      string `json:"status"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	ParentIdTag string `json:"parentIdTag,omitempty"`
}

// SetChargingProfileRequest 下发充电曲线请求
type SetChargingProfileRequest struct {
	ConnectorId        int             `json:"connectorId"`
	CsChargingProfiles ChargingProfile `json:"csChargingProfiles"`
}

// ChargingProfile 充电曲线
type ChargingProfile struct {
	ChargingProfileId      int                    `json:"chargingProfileId"`
	TransactionId          *int                   `json:"transactionId,omitempty"`
	StackLevel             int                    `json:"stackLevel"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose"`
	ChargingProfileKind    ChargingProfileKind    `json:"chargingProfileKind"`
	ChargingSchedule       ChargingSchedule       `json:"chargingSchedule"`
}

// ChargingSchedule 充电计划
type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty"`
	StartSchedule          string                   `json:"startSchedule,omitempty"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod"`
}

// ChargingSchedulePeriod 充电计划时段
type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod"`
	Limit        float64 `json:"limit"`
	NumberPhases *int    `json:"numberPhases,omitempty"`
}

// ChangeConfigurationRequest 修改配置请求
type ChangeConfigurationRequest struct {
	Key   string `json:"key" validate:"required,max=50"`
	Value string `json:"value" validate:"max=500"`
}

// ChangeConfigurationResponse 修改配置响应
type ChangeConfigurationResponse struct {
	Status ConfigurationStatus `json:"status"`
}

// GetConfigurationRequest 查询配置请求
type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

// GetConfigurationResponse 查询配置响应
type GetConfigurationResponse struct {
	ConfigurationKey []KeyValue `json:"configurationKey,omitempty"`
	UnknownKey       []string   `json:"unknownKey,omitempty"`
}

// KeyValue 配置键值对
type KeyValue struct {
	Key      string `json:"key"`
	Readonly bool   `json:"readonly"`
	Value    string `json:"value,omitempty"`
}

// TriggerMessageRequest 触发消息请求
type TriggerMessageRequest struct {
	RequestedMessage MessageTrigger `json:"requestedMessage" validate:"required"`
	ConnectorId      *int           `json:"connectorId,omitempty"`
}

// TriggerMessageResponse 触发消息响应
type TriggerMessageResponse struct {
	Status TriggerMessageStatus `json:"status"`
}

// ResetRequest 重置请求
type ResetRequest struct {
	Type ResetType `json:"type" validate:"required"`
}

// ChangeAvailabilityRequest 修改可用性请求
type ChangeAvailabilityRequest struct {
	ConnectorId int              `json:"connectorId"`
	Type        AvailabilityType `json:"type" validate:"required"`
}

// ChangeAvailabilityResponse 修改可用性响应
type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status"`
}

// RemoteStartTransactionRequest 远程启动交易请求
type RemoteStartTransactionRequest struct {
	ConnectorId     *int             `json:"connectorId,omitempty"`
	IdTag           string           `json:"idTag" validate:"required,max=20"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

// RemoteStopTransactionRequest 远程停止交易请求
type RemoteStopTransactionRequest struct {
	TransactionId int `json:"transactionId"`
}

// GenericStatusResponse 多数指令共用的状态响应
type GenericStatusResponse struct {
	Status string `json:"status"`
}
