package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/relay"
	"github.com/charging-platform/ocpp-proxy/internal/status"
)

func newTestServer(t *testing.T) (*Server, *status.Store, *status.MessageLog) {
	t.Helper()
	store := status.NewStore()
	msgLog := status.NewMessageLog(10)
	srv := New(&Config{Addr: ":0"}, store, msgLog, relay.NewManager(), nil)
	return srv, store, msgLog
}

func doRequest(t *testing.T, srv *Server, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.Router().ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestGetMessages(t *testing.T) {
	srv, _, msgLog := newTestServer(t)
	msgLog.Append("/AcTec001", frame.WallboxToController, []byte(`[2,"1","Heartbeat",{}]`), "")
	msgLog.Append("/AcTec002", frame.WallboxToController, []byte(`[2,"2","Heartbeat",{}]`), "")

	w, body := doRequest(t, srv, http.MethodGet, "/messages")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["messages"], 2)

	w, body = doRequest(t, srv, http.MethodGet, "/messages?station=/AcTec001")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["messages"], 1)
}

func TestClearMessages(t *testing.T) {
	srv, _, msgLog := newTestServer(t)
	msgLog.Append("/AcTec001", frame.WallboxToController, []byte(`[2,"1","Heartbeat",{}]`), "")

	w, body := doRequest(t, srv, http.MethodPost, "/clear")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body["status"])
	assert.Zero(t, msgLog.Len())
}

func TestGetStatus(t *testing.T) {
	srv, store, _ := newTestServer(t)
	f, err := frame.Decode([]byte(`[2,"1","StatusNotification",{"connectorId":1,"status":"Charging","errorCode":"NoError"}]`))
	require.NoError(t, err)
	store.Fold(frame.WallboxToController, f, "")

	for _, path := range []string{"/status", "/api/status"} {
		w, body := doRequest(t, srv, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, w.Code)
		wallbox := body["wallbox"].(map[string]interface{})
		assert.Equal(t, "Charging", wallbox["status"])
	}
}

func TestGetWallboxesEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w, body := doRequest(t, srv, http.MethodGet, "/wallboxes")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["wallboxes"])
}

func TestCommandsWithoutActiveRelay(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/api/reboot", "/api/get-configuration"} {
		w, body := doRequest(t, srv, http.MethodPost, path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, "error", body["status"], path)
	}
}

func TestStopTransactionWithoutKnownTransaction(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w, body := doRequest(t, srv, http.MethodPost, "/api/stop-transaction")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "no active transaction")
}

func TestReadinessLabel(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"Available", "ready"},
		{"Preparing", "ready"},
		{"Charging", "charging"},
		{"Finishing", "charging"},
		{"Faulted", "fault"},
		{"Unknown", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, readinessLabel(tt.status), tt.status)
	}
}
