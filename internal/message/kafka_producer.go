package message

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/charging-platform/ocpp-proxy/internal/events"
	"github.com/charging-platform/ocpp-proxy/internal/logger"
)

// KafkaProducer 把代理观测到的充电事件异步发往Kafka
type KafkaProducer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *logger.Logger
}

// NewKafkaProducer 创建一个新的 KafkaProducer
func NewKafkaProducer(brokers []string, topic string, log *logger.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal       // 只等待本地确认
	config.Producer.Compression = sarama.CompressionSnappy   // 压缩
	config.Producer.Flush.Frequency = 500 * time.Millisecond // 刷新频率
	config.Producer.Return.Successes = true                  // 开启成功交付通知
	config.Producer.Return.Errors = true                     // 开启错误通知

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka async producer: %w", err)
	}

	kp := &KafkaProducer{
		producer: producer,
		topic:    topic,
		logger:   log,
	}

	// 处理成功和失败的交付通知
	go kp.handleSuccesses()
	go kp.handleErrors()

	return kp, nil
}

// PublishEvent 实现EventProducer接口
// 站点标识作为Key，同一站点的事件落入同一分区保持有序
func (p *KafkaProducer) PublishEvent(event events.Event) error {
	eventData, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.GetStationID()),
		Value: sarama.ByteEncoder(eventData),
	}

	p.producer.Input() <- msg
	return nil
}

// Close 实现EventProducer接口
func (p *KafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (p *KafkaProducer) handleSuccesses() {
	for msg := range p.producer.Successes() {
		if p.logger != nil {
			p.logger.Debugf("Kafka message sent to %s key=%s", msg.Topic, msg.Key)
		}
	}
}

func (p *KafkaProducer) handleErrors() {
	for err := range p.producer.Errors() {
		if p.logger != nil {
			p.logger.Errorf("Failed to send Kafka message to %s: %v", err.Msg.Topic, err.Err)
		}
	}
}
