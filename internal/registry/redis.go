package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/charging-platform/ocpp-proxy/internal/domain/station"
)

// RedisRegistry 基于Redis的在线注册表
type RedisRegistry struct {
	Client *redis.Client // 公共字段，便于测试注入mock客户端
	Prefix string
	TTL    time.Duration
}

// Config Redis注册表配置
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisRegistry 创建并验证Redis连接
func NewRedisRegistry(cfg Config) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisRegistry{Client: client, Prefix: "station:", TTL: ttl}, nil
}

// Set 实现Registry接口
func (r *RedisRegistry) Set(ctx context.Context, st station.Identity, instanceID string) error {
	return r.Client.Set(ctx, r.key(st), instanceID, r.TTL).Err()
}

// Get 实现Registry接口
func (r *RedisRegistry) Get(ctx context.Context, st station.Identity) (string, error) {
	val, err := r.Client.Get(ctx, r.key(st)).Result()
	if err == redis.Nil {
		return "", redis.Nil
	}
	return val, err
}

// Refresh 实现Registry接口
// 记录已被TTL清理时重新注册，避免长连接期间掉出注册表
func (r *RedisRegistry) Refresh(ctx context.Context, st station.Identity, instanceID string) error {
	ok, err := r.Client.Expire(ctx, r.key(st), r.TTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return r.Set(ctx, st, instanceID)
	}
	return nil
}

// Delete 实现Registry接口
func (r *RedisRegistry) Delete(ctx context.Context, st station.Identity) error {
	return r.Client.Del(ctx, r.key(st)).Err()
}

// Close 实现Registry接口
func (r *RedisRegistry) Close() error {
	return r.Client.Close()
}

func (r *RedisRegistry) key(st station.Identity) string {
	return r.Prefix + string(st)
}
