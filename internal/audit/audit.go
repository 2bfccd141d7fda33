package audit

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
)

// Config 审计日志配置
type Config struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// DefaultConfig 默认审计日志配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		Path:       "logs/ocpp-proxy.log",
		MaxSizeMB:  10,
		MaxBackups: 5,
	}
}

// Writer 逐帧追加的轮转审计日志
// 每条消息一行，带方向与修正标记，是离线日志工具的输入
type Writer struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	now func() time.Time
}

// New 创建审计日志写入器，Enabled为假时返回nil，调用方判空跳过
func New(cfg *Config) *Writer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return nil
	}
	return &Writer{
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		},
		now: time.Now,
	}
}

// Log 追加一条消息
// 行格式: 时间 - [方向] 原始帧 或 时间 - [方向-标记] 原始帧
func (w *Writer) Log(dir frame.Direction, raw []byte, tag string) {
	if w == nil {
		return
	}

	label := dir.String()
	if tag != "" {
		label = label + "-" + tag
	}
	line := fmt.Sprintf("%s - [%s] %s\n", w.now().UTC().Format("2006-01-02 15:04:05.000"), label, raw)

	w.mu.Lock()
	defer w.mu.Unlock()
	// 轮转写入器自身的失败无处上报，审计尽力而为
	_, _ = w.out.Write([]byte(line))
}

// Close 关闭底层文件
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}
