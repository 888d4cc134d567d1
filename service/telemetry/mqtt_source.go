/*
 * @module service/telemetry/mqtt_source
 * @description MQTT遥测接入，订阅UAV流量特征消息并送入威胁检测流水线
 * @architecture 发布订阅模式 - 连接MQTT broker并订阅遥测主题
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 连接 -> 订阅主题 -> 接收消息 -> 特征解析 -> 威胁检测 -> Kafka转发
 * @rules 支持自动重连，消息通道满时丢弃并计数，解析失败不中断消费
 * @dependencies github.com/eclipse/paho.mqtt.golang, service/monitoring
 * @refs service/detection_service.go, service/telemetry/kafka_publisher.go
 */

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
	"uavsec-service/service/monitoring"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TelemetryMessage 一条UAV遥测消息的流量特征载荷
type TelemetryMessage struct {
	DroneID            string  `json:"drone_id"`
	PacketSize         float64 `json:"packet_size"`
	InterArrivalTime   float64 `json:"inter_arrival_time"`
	PacketRate         float64 `json:"packet_rate"`
	ConnectionDuration float64 `json:"connection_duration"`
	FailedLogins       float64 `json:"failed_logins"`
}

// Detector 遥测消息的下游检测接口，由DetectionService实现适配
type Detector interface {
	DetectTelemetry(msg TelemetryMessage) (interface{}, string, error)
}

// MQTTSourceConfig MQTT遥测源配置
type MQTTSourceConfig struct {
	Broker   string
	Port     int
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// MQTTSourceConfigFromEnv 从环境变量读取MQTT配置，未配置broker时返回nil
func MQTTSourceConfigFromEnv() *MQTTSourceConfig {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		return nil
	}

	port := 1883
	if portStr := os.Getenv("MQTT_PORT"); portStr != "" {
		if parsed, err := strconv.Atoi(portStr); err == nil {
			port = parsed
		}
	}

	topic := os.Getenv("MQTT_TELEMETRY_TOPIC")
	if topic == "" {
		topic = "uav/telemetry/#"
	}

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = fmt.Sprintf("uavsec-telemetry-%d", time.Now().Unix())
	}

	return &MQTTSourceConfig{
		Broker:   broker,
		Port:     port,
		ClientID: clientID,
		Username: os.Getenv("MQTT_USERNAME"),
		Password: os.Getenv("MQTT_PASSWORD"),
		Topic:    topic,
		QoS:      1,
	}
}

// MQTTSource MQTT遥测接入源
type MQTTSource struct {
	config    *MQTTSourceConfig
	client    mqtt.Client
	detector  Detector
	publisher *KafkaPublisher // 可选，配置了Kafka时转发检测结果

	msgChannel chan TelemetryMessage
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewMQTTSource 创建遥测接入源，publisher可为nil
func NewMQTTSource(config *MQTTSourceConfig, detector Detector, publisher *KafkaPublisher) *MQTTSource {
	ctx, cancel := context.WithCancel(context.Background())

	return &MQTTSource{
		config:     config,
		detector:   detector,
		publisher:  publisher,
		msgChannel: make(chan TelemetryMessage, 1000), // 缓冲通道
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 连接broker、订阅主题并启动消息处理协程
func (m *MQTTSource) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", m.config.Broker, m.config.Port))
	opts.SetClientID(m.config.ClientID)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(30 * time.Second)

	if m.config.Username != "" {
		opts.SetUsername(m.config.Username)
	}
	if m.config.Password != "" {
		opts.SetPassword(m.config.Password)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		slog.Error("MQTT遥测连接丢失，等待自动重连", "error", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		slog.Info("MQTT遥测连接成功", "broker", m.config.Broker, "topic", m.config.Topic)
	})

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(5 * time.Second)

	m.client = mqtt.NewClient(opts)

	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("连接MQTT broker失败: %v", token.Error())
	}

	if token := m.client.Subscribe(m.config.Topic, m.config.QoS, m.messageHandler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("订阅主题 %s 失败: %v", m.config.Topic, token.Error())
	}

	go m.processMessages()

	slog.Info("MQTT遥测接入已启动",
		"broker", m.config.Broker,
		"port", m.config.Port,
		"client_id", m.config.ClientID,
		"topic", m.config.Topic)
	return nil
}

// messageHandler MQTT消息处理器，解析特征载荷后投递到消息通道
func (m *MQTTSource) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var telemetry TelemetryMessage
	if err := json.Unmarshal(msg.Payload(), &telemetry); err != nil {
		slog.Warn("遥测消息解析失败，已丢弃", "topic", msg.Topic(), "error", err)
		monitoring.IncTelemetryMessage("parse_error")
		return
	}

	select {
	case m.msgChannel <- telemetry:
		// 消息投递成功
	default:
		// 通道满了，记录警告但不阻塞
		slog.Warn("遥测消息通道已满，丢弃消息", "topic", msg.Topic())
		monitoring.IncTelemetryMessage("dropped")
	}
}

// processMessages 消费遥测消息并执行威胁检测
func (m *MQTTSource) processMessages() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case telemetry := <-m.msgChannel:
			result, recordID, err := m.detector.DetectTelemetry(telemetry)
			if err != nil {
				slog.Error("遥测消息检测失败", "drone_id", telemetry.DroneID, "error", err)
				monitoring.IncTelemetryMessage("detect_error")
				continue
			}
			monitoring.IncTelemetryMessage("processed")

			if m.publisher != nil {
				if pubErr := m.publisher.Publish(m.ctx, recordID, result); pubErr != nil {
					slog.Error("检测结果转发Kafka失败", "record_id", recordID, "error", pubErr)
				}
			}
		}
	}
}

// Stop 停止遥测接入
func (m *MQTTSource) Stop() {
	m.cancel()

	if m.client != nil && m.client.IsConnected() {
		m.client.Unsubscribe(m.config.Topic)
		m.client.Disconnect(250)
	}

	slog.Info("MQTT遥测接入已停止")
}
