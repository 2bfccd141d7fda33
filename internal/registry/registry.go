package registry

import (
	"context"

	"github.com/charging-platform/ocpp-proxy/internal/domain/station"
)

// Registry 站点在线注册表
// 记录站点当前由哪个代理实例服务，用于多实例部署时的查询
type Registry interface {
	// Set 注册或刷新一个站点的在线记录，TTL到期自动清理僵尸记录
	Set(ctx context.Context, st station.Identity, instanceID string) error

	// Get 查询站点当前所在的代理实例，不在线时返回redis.Nil
	Get(ctx context.Context, st station.Identity) (string, error)

	// Refresh 会话存续期间周期性续期在线记录
	Refresh(ctx context.Context, st station.Identity, instanceID string) error

	// Delete 站点正常断开时删除在线记录
	Delete(ctx context.Context, st station.Identity) error

	// Close 关闭与存储后端的连接
	Close() error
}

// Noop 未启用注册表时的空实现
type Noop struct{}

// Set 实现Registry接口
func (Noop) Set(context.Context, station.Identity, string) error { return nil }

// Get 实现Registry接口
func (Noop) Get(context.Context, station.Identity) (string, error) { return "", nil }

// Refresh 实现Registry接口
func (Noop) Refresh(context.Context, station.Identity, string) error { return nil }

// Delete 实现Registry接口
func (Noop) Delete(context.Context, station.Identity) error { return nil }

// Close 实现Registry接口
func (Noop) Close() error { return nil }
