package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config uses defaults",
			config:  nil,
			wantErr: false,
		},
		{
			name: "json format",
			config: &Config{
				Level:  "debug",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "console format to stderr",
			config: &Config{
				Level:  "warn",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "invalid level",
			config: &Config{
				Level:  "verbose",
				Format: "json",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			config: &Config{
				Level:  "info",
				Format: "xml",
				Output: "stdout",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "proxy.log")

	log, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: path,
	})
	require.NoError(t, err)

	log.Info("hello")
	assert.FileExists(t, path)
}

func TestLogger_WithStation(t *testing.T) {
	log, err := New(&Config{Level: "info", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	child := log.WithStation("AcTec001")
	assert.NotNil(t, child)
	assert.Equal(t, "info", child.GetLevel())
}
