package status

import (
	"sync"
	"time"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/station"
)

// 消息日志的附加标记
// 空标记表示原样转发; CONVERTED/BLOCKED/STANDARDIZED来自规则引擎,
// SYNTHETIC/AUTO-RESPONSE来自跟踪器的代答
const (
	TagSynthetic    = "SYNTHETIC"
	TagAutoResponse = "AUTO-RESPONSE"
)

// DefaultLogSize 环形缓冲默认容量
const DefaultLogSize = 500

// Entry 一条被观测到的消息
type Entry struct {
	Timestamp time.Time        `json:"timestamp"`
	Direction string           `json:"direction"`
	Raw       string           `json:"message"`
	Tag       string           `json:"tag,omitempty"`
	Station   station.Identity `json:"stationId"`
}

// MessageLog 有界环形消息日志
// 写满后最旧条目被淘汰，插入顺序即到达顺序
type MessageLog struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	now     func() time.Time
}

// NewMessageLog 创建容量为size的消息日志
func NewMessageLog(size int) *MessageLog {
	if size <= 0 {
		size = DefaultLogSize
	}
	return &MessageLog{
		entries: make([]Entry, 0, size),
		size:    size,
		now:     time.Now,
	}
}

// Append 记录一条消息，缓冲已满时淘汰最旧条目
func (l *MessageLog) Append(st station.Identity, dir frame.Direction, raw []byte, tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: l.now(),
		Direction: dir.String(),
		Raw:       string(raw),
		Tag:       tag,
		Station:   st,
	}

	if len(l.entries) >= l.size {
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = entry
		return
	}
	l.entries = append(l.entries, entry)
}

// Entries 按到达顺序返回全部条目的副本，最新在末尾
// st非零值时只返回该站点的条目
func (l *MessageLog) Entries(st station.Identity) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if !st.IsZero() && e.Station != st {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len 当前条目数
func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear 清空缓冲
func (l *MessageLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}
