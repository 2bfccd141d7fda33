package relay

import (
	"errors"
	"sync"

	"github.com/charging-platform/ocpp-proxy/internal/domain/station"
)

// ErrNoActiveRelay 站点当前没有活动中继
var ErrNoActiveRelay = errors.New("no active relay for station")

// Manager 活动中继登记表
// 监听器注册，Snapshot API据此定位注入目标
type Manager struct {
	mu     sync.RWMutex
	relays map[station.Identity]*Relay
}

// NewManager 创建中继登记表
func NewManager() *Manager {
	return &Manager{relays: make(map[station.Identity]*Relay)}
}

// Add 注册一条中继，同站点的旧中继被顶替
func (m *Manager) Add(r *Relay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relays[r.Station()] = r
}

// Remove 注销中继，仅当登记的还是同一条时删除
func (m *Manager) Remove(r *Relay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.relays[r.Station()]; ok && current == r {
		delete(m.relays, r.Station())
	}
}

// Stations 当前在线站点列表
func (m *Manager) Stations() []station.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]station.Identity, 0, len(m.relays))
	for st := range m.relays {
		out = append(out, st)
	}
	return out
}

// Lookup 定位一个站点的活动中继
// st为零值且恰有一个站点在线时回退到该站点，沿用单站部署的习惯
func (m *Manager) Lookup(st station.Identity) (*Relay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if st.IsZero() {
		if len(m.relays) == 1 {
			for _, r := range m.relays {
				return r, nil
			}
		}
		return nil, ErrNoActiveRelay
	}
	r, ok := m.relays[st]
	if !ok {
		return nil, ErrNoActiveRelay
	}
	return r, nil
}

// Len 当前活动中继数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relays)
}
