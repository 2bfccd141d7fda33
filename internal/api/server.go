package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
	"github.com/charging-platform/ocpp-proxy/internal/domain/station"
	"github.com/charging-platform/ocpp-proxy/internal/logger"
	"github.com/charging-platform/ocpp-proxy/internal/relay"
	"github.com/charging-platform/ocpp-proxy/internal/status"
)

// Config API服务配置
type Config struct {
	Addr string
}

// Server 快照与运维指令API
// 仪表盘的只读视图加少量注入式指令，无鉴权，仅限内网
type Server struct {
	cfg     *Config
	store   *status.Store
	msgLog  *status.MessageLog
	manager *relay.Manager
	logger  *logger.Logger
	server  *http.Server
}

// New 创建API服务
func New(cfg *Config, store *status.Store, msgLog *status.MessageLog, manager *relay.Manager, log *logger.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		msgLog:  msgLog,
		manager: manager,
		logger:  log,
	}
}

// Router 组装gin路由，独立出来便于测试
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/messages", s.handleMessages)
	router.POST("/clear", s.handleClear)
	router.GET("/status", s.handleStatus)
	router.GET("/wallboxes", s.handleWallboxes)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.POST("/reboot", s.handleReboot)
		apiGroup.POST("/stop-transaction", s.handleStopTransaction)
		apiGroup.POST("/get-configuration", s.handleGetConfiguration)
	}

	return router
}

// Start 启动HTTP服务，阻塞直到退出
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Router(),
	}
	s.logger.Infof("Snapshot API starting on %s", s.cfg.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown 优雅停机
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleMessages(c *gin.Context) {
	st := station.Identity(c.Query("station"))
	c.JSON(http.StatusOK, gin.H{"messages": s.msgLog.Entries(st)})
}

func (s *Server) handleClear(c *gin.Context) {
	s.msgLog.Clear()
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "message log cleared"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot())
}

// handleWallboxes 在线站点列表，附带派生的就绪标签
func (s *Server) handleWallboxes(c *gin.Context) {
	snap := s.store.Snapshot()

	type wallboxInfo struct {
		Station   string `json:"station"`
		Readiness string `json:"readiness"`
	}
	wallboxes := make([]wallboxInfo, 0)
	for _, st := range s.manager.Stations() {
		wallboxes = append(wallboxes, wallboxInfo{
			Station:   string(st),
			Readiness: readinessLabel(snap.Wallbox.Status),
		})
	}
	c.JSON(http.StatusOK, gin.H{"wallboxes": wallboxes})
}

// readinessLabel 把OCPP状态折算为仪表盘就绪标签
func readinessLabel(st string) string {
	switch ocpp16.ChargePointStatus(st) {
	case ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointStatusPreparing:
		return "ready"
	case ocpp16.ChargePointStatusCharging, ocpp16.ChargePointStatusFinishing,
		ocpp16.ChargePointStatusSuspendedEV, ocpp16.ChargePointStatusSuspendedEVSE:
		return "charging"
	case ocpp16.ChargePointStatusFaulted, ocpp16.ChargePointStatusUnavailable:
		return "fault"
	default:
		return "unknown"
	}
}

func (s *Server) handleReboot(c *gin.Context) {
	f, err := frame.NewCall(string(ocpp16.ActionReset), ocpp16.ResetRequest{Type: ocpp16.ResetTypeHard})
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.inject(c, f, "reboot command sent")
}

func (s *Server) handleStopTransaction(c *gin.Context) {
	transactionID, ok := s.store.TransactionID()
	if !ok {
		s.fail(c, http.StatusConflict, errors.New("no active transaction known"))
		return
	}
	f, err := frame.NewCall(string(ocpp16.ActionRemoteStopTransaction), ocpp16.RemoteStopTransactionRequest{
		TransactionId: transactionID,
	})
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.inject(c, f, fmt.Sprintf("stop requested for transaction %d", transactionID))
}

func (s *Server) handleGetConfiguration(c *gin.Context) {
	f, err := frame.NewCall(string(ocpp16.ActionGetConfiguration), ocpp16.GetConfigurationRequest{})
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.inject(c, f, "configuration request sent")
}

// inject 定位站点的活动中继并写入指令帧
func (s *Server) inject(c *gin.Context, f *frame.Frame, okMessage string) {
	st := station.Identity(c.Query("station"))
	rl, err := s.manager.Lookup(st)
	if err != nil {
		s.fail(c, http.StatusServiceUnavailable, err)
		return
	}
	if err := rl.InjectCommand(f); err != nil {
		s.fail(c, http.StatusBadGateway, fmt.Errorf("failed to send %s: %w", f.Action, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": okMessage})
}

func (s *Server) fail(c *gin.Context, code int, err error) {
	if s.logger != nil {
		s.logger.Warnf("API request failed: %v", err)
	}
	c.JSON(code, gin.H{"status": "error", "message": err.Error()})
}
