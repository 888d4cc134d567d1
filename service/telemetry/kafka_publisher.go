/*
 * @module service/telemetry/kafka_publisher
 * @description Kafka检测结果发布器，将检测记录与告警推送到下游消费方
 * @architecture 适配器模式 - 封装kafka-go生产者，提供统一的发布接口
 * @dependencies github.com/segmentio/kafka-go, encoding/json
 * @refs service/telemetry/mqtt_source.go, service/init.go
 */

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisherConfig Kafka发布器配置
type KafkaPublisherConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisherConfigFromEnv 从环境变量读取Kafka配置，未配置brokers时返回nil
func KafkaPublisherConfigFromEnv() *KafkaPublisherConfig {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		return nil
	}

	topic := os.Getenv("KAFKA_DETECTION_TOPIC")
	if topic == "" {
		topic = "uavsec.detections"
	}

	return &KafkaPublisherConfig{
		Brokers: strings.Split(brokers, ","),
		Topic:   topic,
	}
}

// KafkaPublisher Kafka检测结果发布器
type KafkaPublisher struct {
	writer *kafka.Writer
	mu     sync.Mutex
	closed bool
}

// NewKafkaPublisher 创建Kafka发布器
func NewKafkaPublisher(config *KafkaPublisherConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
	}

	slog.Info("Kafka检测结果发布器已创建", "brokers", config.Brokers, "topic", config.Topic)

	return &KafkaPublisher{writer: writer}
}

// Publish 发布一条检测结果消息，key为检测记录ID
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload interface{}) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("发布器已关闭")
	}
	p.mu.Unlock()

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化检测结果失败: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发布检测结果失败: %w", err)
	}

	return nil
}

// Close 关闭发布器
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
