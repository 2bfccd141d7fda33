package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/ocpp-proxy/internal/api"
	"github.com/charging-platform/ocpp-proxy/internal/audit"
	"github.com/charging-platform/ocpp-proxy/internal/config"
	"github.com/charging-platform/ocpp-proxy/internal/logger"
	"github.com/charging-platform/ocpp-proxy/internal/message"
	"github.com/charging-platform/ocpp-proxy/internal/metrics"
	"github.com/charging-platform/ocpp-proxy/internal/registry"
	"github.com/charging-platform/ocpp-proxy/internal/relay"
	"github.com/charging-platform/ocpp-proxy/internal/rules"
	"github.com/charging-platform/ocpp-proxy/internal/status"
	"github.com/charging-platform/ocpp-proxy/internal/tracker"
	"github.com/charging-platform/ocpp-proxy/internal/transport/listener"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Logger initialized")

	// 3. 初始化审计日志
	auditLog := audit.New(&audit.Config{
		Enabled:    cfg.Audit.Enabled,
		Path:       cfg.Audit.Path,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
	})
	if auditLog != nil {
		log.Infof("Audit log initialized at %s", cfg.Audit.Path)
	}

	// 4. 初始化状态快照与消息环形缓冲
	store := status.NewStore()
	msgLog := status.NewMessageLog(cfg.MessageLog.Size)
	log.Info("Status store initialized")

	// 5. 初始化消息修正规则引擎
	engine := rules.NewEngine(&rules.Config{
		TimestampRepair:    cfg.Rules.TimestampRepair,
		IdTagRepair:        cfg.Rules.IdTagRepair,
		AmpereConversion:   cfg.Rules.AmpereConversion,
		ProfileStandardize: cfg.Rules.ProfileStandardize,
		ConfigFilter:       cfg.Rules.ConfigFilter,
		MeterWattScale:     cfg.Rules.MeterWattScale,
		AmpereWattFactor:   cfg.Rules.AmpereWattFactor,
		MeterWattFactor:    cfg.Rules.MeterWattFactor,
		AllowedConfigKeys:  cfg.Rules.AllowedConfigKeys,
	}, log)
	log.Info("Correction engine initialized")

	// 6. 初始化站点在线注册表
	var reg registry.Registry = registry.Noop{}
	if cfg.Redis.Enabled {
		redisReg, err := registry.NewRedisRegistry(registry.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			log.Fatalf("Failed to initialize Redis registry: %v", err)
		}
		reg = redisReg
		log.Infof("Redis registry initialized at %s", cfg.Redis.Addr)
	}

	// 7. 初始化事件导出
	var producer message.EventProducer = message.NoopProducer{}
	if cfg.Kafka.Enabled {
		kafkaProducer, err := message.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		producer = kafkaProducer
		log.Infof("Kafka producer initialized with brokers: %v", cfg.Kafka.Brokers)
	}

	// 8. 组装中继依赖
	manager := relay.NewManager()
	relayCfg := &relay.Config{
		ControllerAddr:   cfg.GetControllerAddr(),
		DialTimeout:      cfg.Controller.DialTimeout,
		ProvisionEnabled: cfg.Provision.Enabled,
		ProvisionDelay:   cfg.Provision.Delay,
		ProvisionSpacing: cfg.Provision.Interval,
	}
	for _, s := range cfg.Provision.Settings {
		relayCfg.ProvisionSettings = append(relayCfg.ProvisionSettings, relay.ProvisionSetting{
			Key:   s.Key,
			Value: s.Value,
		})
	}
	deps := relay.Deps{
		Engine: engine,
		Tracker: &tracker.Config{
			TriggerTimeout:  cfg.Tracker.TriggerTimeout,
			Vendor:          cfg.Tracker.Vendor,
			Model:           cfg.Tracker.Model,
			SerialNumber:    cfg.Tracker.SerialNumber,
			FirmwareVersion: cfg.Tracker.FirmwareVersion,
			ConfigKeys:      cfg.Tracker.ConfigKeys,
		},
		Store:    store,
		MsgLog:   msgLog,
		Audit:    auditLog,
		Producer: producer,
		Logger:   log,
	}

	// 9. 启动监控服务器
	metrics.RegisterMetrics()
	go startMetricsServer(cfg.GetMetricsAddr(), log)

	// 10. 启动壁挂桩侧监听器
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln := listener.New(&listener.Config{
		Addr:            cfg.GetListenerAddr(),
		CollapseSlashes: cfg.Listener.CollapseSlashes,
		InstanceID:      cfg.InstanceID,
	}, relayCfg, deps, manager, reg)
	go func() {
		if err := ln.Start(ctx); err != nil {
			log.Fatalf("Listener failed: %v", err)
		}
	}()
	log.Infof("Listener starting on %s, relaying to %s", cfg.GetListenerAddr(), cfg.GetControllerAddr())

	// 11. 启动监控面板API
	dashboard := api.New(&api.Config{Addr: cfg.Dashboard.Addr}, store, msgLog, manager, log)
	go func() {
		if err := dashboard.Start(); err != nil {
			log.Fatalf("Dashboard API failed: %v", err)
		}
	}()
	log.Infof("Dashboard API starting on %s", cfg.Dashboard.Addr)

	log.Info("OCPP proxy started successfully")

	// 12. 监听并处理优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down proxy...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := ln.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down listener: %v", err)
	}
	log.Info("Listener shut down")

	if err := dashboard.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down dashboard API: %v", err)
	}
	log.Info("Dashboard API shut down")

	if err := producer.Close(); err != nil {
		log.Errorf("Error closing event producer: %v", err)
	}
	if err := reg.Close(); err != nil {
		log.Errorf("Error closing registry: %v", err)
	}
	if err := auditLog.Close(); err != nil {
		log.Errorf("Error closing audit log: %v", err)
	}

	log.Info("Proxy gracefully stopped.")
}

// startMetricsServer 启动监控服务器
func startMetricsServer(addr string, log *logger.Logger) {
	http.Handle("/metrics", promhttp.Handler())
	log.Infof("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Metrics server failed: %v", err)
	}
}
