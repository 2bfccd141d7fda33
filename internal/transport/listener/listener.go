package listener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
	"github.com/charging-platform/ocpp-proxy/internal/domain/station"
	"github.com/charging-platform/ocpp-proxy/internal/logger"
	"github.com/charging-platform/ocpp-proxy/internal/registry"
	"github.com/charging-platform/ocpp-proxy/internal/relay"
)

// Config 监听器配置
type Config struct {
	Addr            string
	CollapseSlashes bool
	InstanceID      string
}

// Listener 壁挂桩侧WebSocket接入点
// 任意路径都可接入，路径即站点标识，每个连接派生一条中继
type Listener struct {
	cfg      *Config
	relayCfg *relay.Config
	deps     relay.Deps
	manager  *relay.Manager
	registry registry.Registry
	logger   *logger.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// New 创建监听器
func New(cfg *Config, relayCfg *relay.Config, deps relay.Deps, manager *relay.Manager, reg registry.Registry) *Listener {
	if reg == nil {
		reg = registry.Noop{}
	}
	return &Listener{
		cfg:      cfg,
		relayCfg: relayCfg,
		deps:     deps,
		manager:  manager,
		registry: reg,
		logger:   deps.Logger,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{ocpp16.SubprotocolName},
			// 站点来自封闭网段，不做Origin校验
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start 启动监听，阻塞直到服务器退出
func (l *Listener) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", l.acceptHandler(ctx))

	l.server = &http.Server{
		Addr:    l.cfg.Addr,
		Handler: mux,
	}

	l.logger.Infof("WebSocket listener starting on %s", l.cfg.Addr)
	if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listener failed: %w", err)
	}
	return nil
}

// Shutdown 优雅停机
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.server == nil {
		return nil
	}
	return l.server.Shutdown(ctx)
}

// acceptHandler 把每个升级成功的连接交给一条新中继
func (l *Listener) acceptHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := station.FromPath(r.URL.Path, l.cfg.CollapseSlashes)

		conn, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			l.logger.Errorf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
			return
		}
		l.logger.Infof("Station %s connected from %s", st, r.RemoteAddr)

		rl := relay.New(st, conn, l.relayCfg, l.deps)
		l.manager.Add(rl)
		l.registerStation(st)
		go l.refreshStation(st, rl.Done())

		go func() {
			defer func() {
				l.manager.Remove(rl)
				l.deregisterStation(st)
			}()
			if err := rl.Run(ctx); err != nil {
				l.logger.Errorf("Relay for %s ended with error: %v", st, err)
			}
		}()
	})
}

func (l *Listener) registerStation(st station.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.registry.Set(ctx, st, l.cfg.InstanceID); err != nil {
		l.logger.Warnf("Failed to register station %s: %v", st, err)
	}
}

// refreshStation 会话存续期间周期性续期在线记录，会话结束即停
func (l *Listener) refreshStation(st station.Identity, done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := l.registry.Refresh(ctx, st, l.cfg.InstanceID); err != nil {
				l.logger.Warnf("Failed to refresh station %s: %v", st, err)
			}
			cancel()
		}
	}
}

func (l *Listener) deregisterStation(st station.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.registry.Delete(ctx, st); err != nil {
		l.logger.Warnf("Failed to deregister station %s: %v", st, err)
	}
}
