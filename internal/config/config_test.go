package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		cleanup  func()
		wantErr  bool
		validate func(*testing.T, *Config)
	}{
		{
			name: "load default config",
			setup: func() {
				viper.Reset()
			},
			cleanup: func() {
				viper.Reset()
			},
			wantErr: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.Listener.Host)
				assert.Equal(t, 8888, cfg.Listener.Port)
				assert.Equal(t, 8887, cfg.Controller.Port)
				assert.Equal(t, "ocpp1.6", cfg.Controller.Subprotocol)
				assert.Equal(t, ":8889", cfg.Dashboard.Addr)
				assert.Equal(t, 500, cfg.MessageLog.Size)
				assert.Equal(t, 3*time.Second, cfg.Tracker.TriggerTimeout)
				assert.Equal(t, 690.0, cfg.Rules.AmpereWattFactor)
				assert.True(t, cfg.Rules.TimestampRepair)
				assert.False(t, cfg.Rules.MeterWattScale)
				assert.True(t, cfg.Listener.CollapseSlashes)
				assert.False(t, cfg.Redis.Enabled)
				assert.False(t, cfg.Kafka.Enabled)
				assert.Equal(t, []ProvisionSetting{
					{Key: "HeartbeatInterval", Value: "300"},
					{Key: "MeterValueSampleInterval", Value: "10"},
					{Key: "MeterValuesSampledData", Value: "Energy.Active.Import.Register,Power.Active.Import,Current.Import,Voltage"},
					{Key: "ClockAlignedDataInterval", Value: "0"},
				}, cfg.Provision.Settings)
			},
		},
		{
			name: "load config with environment variables",
			setup: func() {
				viper.Reset()
				os.Setenv("PROXY_LISTENER_PORT", "9999")
				os.Setenv("PROXY_CONTROLLER_HOST", "evcc.local")
			},
			cleanup: func() {
				os.Unsetenv("PROXY_LISTENER_PORT")
				os.Unsetenv("PROXY_CONTROLLER_HOST")
				viper.Reset()
			},
			wantErr: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9999, cfg.Listener.Port)
				assert.Equal(t, "evcc.local", cfg.Controller.Host)
			},
		},
		{
			name: "load config with custom values",
			setup: func() {
				viper.Reset()
				SetDefaults()
				viper.Set("rules.ampere_conversion", false)
				viper.Set("rules.ampere_watt_factor", 230.0)
				viper.Set("provision.delay", "2s")
				viper.Set("tracker.trigger_timeout", "5s")
			},
			cleanup: func() {
				viper.Reset()
			},
			wantErr: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Rules.AmpereConversion)
				assert.Equal(t, 230.0, cfg.Rules.AmpereWattFactor)
				assert.Equal(t, 2*time.Second, cfg.Provision.Delay)
				assert.Equal(t, 5*time.Second, cfg.Tracker.TriggerTimeout)
			},
		},
		{
			name: "invalid port rejected",
			setup: func() {
				viper.Reset()
				SetDefaults()
				viper.Set("listener.port", 0)
			},
			cleanup: func() {
				viper.Reset()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.cleanup()

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.validate(t, cfg)
		})
	}
}

func TestConfig_GetListenerAddr(t *testing.T) {
	cfg := &Config{
		Listener: ListenerConfig{Host: "localhost", Port: 8888},
	}
	assert.Equal(t, "localhost:8888", cfg.GetListenerAddr())
}

func TestConfig_GetControllerAddr(t *testing.T) {
	cfg := &Config{
		Controller: ControllerConfig{Host: "192.168.0.150", Port: 8887},
	}
	assert.Equal(t, "192.168.0.150:8887", cfg.GetControllerAddr())
}

func TestConfig_DefaultProvisionSequence(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	require.NotEmpty(t, cfg.Provision.Settings)
	assert.Equal(t, "MeterValueSampleInterval", cfg.Provision.Settings[0].Key)
	assert.Equal(t, 5*time.Second, cfg.Provision.Delay)
	assert.Equal(t, 500*time.Millisecond, cfg.Provision.Interval)
}
