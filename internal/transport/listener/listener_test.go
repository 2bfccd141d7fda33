package listener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/ocpp-proxy/internal/domain/station"
	"github.com/charging-platform/ocpp-proxy/internal/logger"
	"github.com/charging-platform/ocpp-proxy/internal/registry"
	"github.com/charging-platform/ocpp-proxy/internal/relay"
	"github.com/charging-platform/ocpp-proxy/internal/rules"
	"github.com/charging-platform/ocpp-proxy/internal/status"
	"github.com/charging-platform/ocpp-proxy/internal/tracker"
)

// newControllerStub 假中央系统，把升级后的服务端连接交给测试
func newControllerStub(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{
		Subprotocols: []string{"ocpp1.6"},
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func TestListenerAcceptSpawnsRelay(t *testing.T) {
	controllerSrv, controllerConns := newControllerStub(t)

	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)

	db, mock := redismock.NewClientMock()
	reg := &registry.RedisRegistry{Client: db, Prefix: "station:", TTL: 5 * time.Minute}
	mock.ExpectSet("station:/Box42", "proxy-test", 5*time.Minute).SetVal("OK")
	mock.ExpectDel("station:/Box42").SetVal(1)

	relayCfg := relay.DefaultConfig()
	relayCfg.ControllerAddr = strings.TrimPrefix(controllerSrv.URL, "http://")
	relayCfg.ProvisionEnabled = false

	manager := relay.NewManager()
	deps := relay.Deps{
		Engine:  rules.NewEngine(rules.DefaultConfig(), log),
		Tracker: tracker.DefaultConfig(),
		Store:   status.NewStore(),
		MsgLog:  status.NewMessageLog(16),
		Logger:  log,
	}

	l := New(&Config{Addr: ":0", CollapseSlashes: true, InstanceID: "proxy-test"}, relayCfg, deps, manager, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(l.acceptHandler(ctx))
	defer srv.Close()

	// 重复斜杠的路径折叠为站点标识
	dialer := websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	wallbox, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"//Box42", nil)
	require.NoError(t, err)
	defer wallbox.Close()

	var controller *websocket.Conn
	select {
	case controller = <-controllerConns:
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not spawn a relay dialing the controller")
	}
	defer controller.Close()

	require.Eventually(t, func() bool { return manager.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []station.Identity{"/Box42"}, manager.Stations())

	// 帧经由新建的中继到达中央系统
	require.NoError(t, wallbox.WriteMessage(websocket.TextMessage, []byte(`[2,"hb1","Heartbeat",{}]`)))
	require.NoError(t, controller.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := controller.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "Heartbeat")

	// 断开后中继被移除，在线记录删除
	require.NoError(t, wallbox.Close())
	require.Eventually(t, func() bool { return manager.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestListenerUpgradeFailure(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)

	manager := relay.NewManager()
	l := New(&Config{Addr: ":0", InstanceID: "proxy-test"}, relay.DefaultConfig(), relay.Deps{Logger: log}, manager, nil)

	srv := httptest.NewServer(l.acceptHandler(context.Background()))
	defer srv.Close()

	// 普通HTTP请求不是WebSocket握手，不得产生中继
	resp, err := http.Get(srv.URL + "/Box42")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, manager.Len())
}
