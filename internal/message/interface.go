package message

import "github.com/charging-platform/ocpp-proxy/internal/events"

// EventProducer 定义了向消息队列发布统一业务事件的接口
type EventProducer interface {
	// PublishEvent 异步发布一个事件
	PublishEvent(event events.Event) error
	// Close 关闭生产者
	Close() error
}

// NoopProducer 未启用Kafka时的空实现
type NoopProducer struct{}

// PublishEvent 实现EventProducer接口
func (NoopProducer) PublishEvent(events.Event) error { return nil }

// Close 实现EventProducer接口
func (NoopProducer) Close() error { return nil }
