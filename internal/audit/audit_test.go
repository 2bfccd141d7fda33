package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
)

func TestWriterLogFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	w := New(&Config{Enabled: true, Path: path, MaxSizeMB: 1, MaxBackups: 1})
	require.NotNil(t, w)
	w.now = func() time.Time { return time.Date(2024, 5, 17, 9, 30, 0, 123000000, time.UTC) }

	w.Log(frame.WallboxToController, []byte(`[2,"1","Heartbeat",{}]`), "")
	w.Log(frame.ControllerToWallbox, []byte(`[2,"2","ChangeConfiguration",{"key":"VendorX","value":"1"}]`), "BLOCKED")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `2024-05-17 09:30:00.123 - [wallbox->controller] [2,"1","Heartbeat",{}]`, lines[0])
	assert.Equal(t, `2024-05-17 09:30:00.123 - [controller->wallbox-BLOCKED] [2,"2","ChangeConfiguration",{"key":"VendorX","value":"1"}]`, lines[1])
}

func TestWriterDisabled(t *testing.T) {
	w := New(&Config{Enabled: false})
	assert.Nil(t, w)

	// nil写入器可安全调用
	w.Log(frame.WallboxToController, []byte(`[2,"1","Heartbeat",{}]`), "")
	assert.NoError(t, w.Close())
}
