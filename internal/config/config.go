package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构
type Config struct {
	InstanceID string           `mapstructure:"instance_id"`
	Listener   ListenerConfig   `mapstructure:"listener"`
	Controller ControllerConfig `mapstructure:"controller"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Provision  ProvisionConfig  `mapstructure:"provision"`
	MessageLog MessageLogConfig `mapstructure:"message_log"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ListenerConfig 壁挂充电桩侧监听配置
type ListenerConfig struct {
	Host             string        `mapstructure:"host" validate:"required"`
	Port             int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	CollapseSlashes  bool          `mapstructure:"collapse_slashes"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`
	WriteBufferSize  int           `mapstructure:"write_buffer_size"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
}

// ControllerConfig 中央系统侧拨号配置
type ControllerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	Subprotocol  string        `mapstructure:"subprotocol"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DashboardConfig 监控面板API配置
type DashboardConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// RulesConfig 消息修正规则开关与常量
// 每条规则独立开关，历史上不同部署会单独启停个别规则
type RulesConfig struct {
	TimestampRepair    bool    `mapstructure:"timestamp_repair"`
	IdTagRepair        bool    `mapstructure:"idtag_repair"`
	AmpereConversion   bool    `mapstructure:"ampere_conversion"`
	ProfileStandardize bool    `mapstructure:"profile_standardize"`
	ConfigFilter       bool    `mapstructure:"config_filter"`
	MeterWattScale     bool    `mapstructure:"meter_watt_scale"`
	AmpereWattFactor   float64 `mapstructure:"ampere_watt_factor" validate:"gt=0"`
	MeterWattFactor    float64 `mapstructure:"meter_watt_factor" validate:"gt=0"`
	// AllowedConfigKeys 为空时使用规则内置的白名单
	AllowedConfigKeys []string `mapstructure:"allowed_config_keys"`
}

// TrackerConfig 挂起请求跟踪配置
type TrackerConfig struct {
	TriggerTimeout  time.Duration     `mapstructure:"trigger_timeout" validate:"gt=0"`
	Vendor          string            `mapstructure:"vendor"`
	Model           string            `mapstructure:"model"`
	SerialNumber    string            `mapstructure:"serial_number"`
	FirmwareVersion string            `mapstructure:"firmware_version"`
	ConfigKeys      map[string]string `mapstructure:"config_keys"`
}

// ProvisionConfig 启动后配置下发
type ProvisionConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Delay    time.Duration     `mapstructure:"delay"`
	Interval time.Duration     `mapstructure:"interval"`
	Settings []ProvisionSetting `mapstructure:"settings"`
}

// ProvisionSetting 单条启动后配置项
type ProvisionSetting struct {
	Key   string `mapstructure:"key"`
	Value string `mapstructure:"value"`
}

// MessageLogConfig 消息环形缓冲配置
type MessageLogConfig struct {
	Size int `mapstructure:"size" validate:"min=1"`
}

// AuditConfig 审计日志配置
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// RedisConfig 站点在线注册表配置
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig 事件导出配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MetricsConfig 监控指标配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults 注册所有配置默认值
func SetDefaults() {
	viper.SetDefault("instance_id", "proxy-1")

	viper.SetDefault("listener.host", "0.0.0.0")
	viper.SetDefault("listener.port", 8888)
	viper.SetDefault("listener.collapse_slashes", true)
	viper.SetDefault("listener.handshake_timeout", "10s")
	viper.SetDefault("listener.read_buffer_size", 4096)
	viper.SetDefault("listener.write_buffer_size", 4096)
	viper.SetDefault("listener.max_message_size", 1024*1024)

	viper.SetDefault("controller.host", "192.168.0.150")
	viper.SetDefault("controller.port", 8887)
	viper.SetDefault("controller.subprotocol", "ocpp1.6")
	viper.SetDefault("controller.dial_timeout", "10s")
	viper.SetDefault("controller.write_timeout", "10s")

	viper.SetDefault("dashboard.addr", ":8889")

	viper.SetDefault("rules.timestamp_repair", true)
	viper.SetDefault("rules.idtag_repair", true)
	viper.SetDefault("rules.ampere_conversion", true)
	viper.SetDefault("rules.profile_standardize", true)
	viper.SetDefault("rules.config_filter", true)
	viper.SetDefault("rules.meter_watt_scale", false)
	viper.SetDefault("rules.ampere_watt_factor", 690.0)
	viper.SetDefault("rules.meter_watt_factor", 10.0)

	viper.SetDefault("tracker.trigger_timeout", "3s")
	viper.SetDefault("tracker.vendor", "AcTec")
	viper.SetDefault("tracker.model", "Wallbox")
	viper.SetDefault("tracker.serial_number", "AcTec001")
	viper.SetDefault("tracker.firmware_version", "1.0")
	viper.SetDefault("tracker.config_keys", map[string]string{
		"HeartbeatInterval":        "300",
		"MeterValueSampleInterval": "10",
		"NumberOfConnectors":       "1",
		"SupportedFeatureProfiles": "Core,SmartCharging",
	})

	viper.SetDefault("provision.enabled", true)
	viper.SetDefault("provision.delay", "5s")
	viper.SetDefault("provision.interval", "500ms")
	viper.SetDefault("provision.settings", []map[string]interface{}{
		{"key": "HeartbeatInterval", "value": "300"},
		{"key": "MeterValueSampleInterval", "value": "10"},
		{"key": "MeterValuesSampledData", "value": "Energy.Active.Import.Register,Power.Active.Import,Current.Import,Voltage"},
		{"key": "ClockAlignedDataInterval", "value": "0"},
	})

	viper.SetDefault("message_log.size", 500)

	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("audit.path", "ocpp_messages.log")
	viper.SetDefault("audit.max_size_mb", 10)
	viper.SetDefault("audit.max_backups", 5)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", "5m")

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "ocpp-proxy-events")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.async", false)

	viper.SetDefault("metrics.addr", ":9100")
}

// Load 加载配置
// 优先级: 环境变量(PROXY_*) > 配置文件(proxy.yaml) > 默认值
func Load() (*Config, error) {
	SetDefaults()

	viper.SetConfigName("proxy")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/ocpp-proxy")

	if err := viper.ReadInConfig(); err != nil {
		// 配置文件可选，缺失时使用默认值和环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("PROXY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetListenerAddr 获取监听地址
func (c *Config) GetListenerAddr() string {
	return fmt.Sprintf("%s:%d", c.Listener.Host, c.Listener.Port)
}

// GetControllerAddr 获取中央系统地址
func (c *Config) GetControllerAddr() string {
	return fmt.Sprintf("%s:%d", c.Controller.Host, c.Controller.Port)
}

// GetMetricsAddr 获取监控地址
func (c *Config) GetMetricsAddr() string {
	return c.Metrics.Addr
}
