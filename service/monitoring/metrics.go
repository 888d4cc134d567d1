/*
 * @module service/monitoring/metrics
 * @description Prometheus指标定义与上报，覆盖训练、检测、告警与SSE连接
 * @architecture 分层架构 - 监控层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 业务事件触发 -> 指标上报 -> /metrics拉取
 * @rules 指标注册使用promauto，随包初始化完成，无需显式Register
 * @dependencies github.com/prometheus/client_golang
 * @refs main.go, service/training_service.go, service/detection_service.go
 */

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// trainingTotal 训练任务计数，按算法与终态分类
	trainingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uavsec",
		Subsystem: "training",
		Name:      "runs_total",
		Help:      "模型训练任务总数，按算法和最终状态统计",
	}, []string{"algorithm", "status"})

	// trainingDuration 训练耗时分布
	trainingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "uavsec",
		Subsystem: "training",
		Name:      "duration_seconds",
		Help:      "模型训练耗时（秒）",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"algorithm"})

	// predictionTotal 检测请求计数，按来源与判定结果分类
	predictionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uavsec",
		Subsystem: "detection",
		Name:      "predictions_total",
		Help:      "威胁检测请求总数，按来源和判定结果统计",
	}, []string{"source", "prediction"})

	// alertTotal 告警计数，按严重级别分类
	alertTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uavsec",
		Subsystem: "detection",
		Name:      "alerts_total",
		Help:      "生成的告警总数，按威胁级别统计",
	}, []string{"severity"})

	// sseConnections 当前活跃SSE连接数
	sseConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "uavsec",
		Subsystem: "events",
		Name:      "sse_connections",
		Help:      "当前活跃的SSE连接数",
	})

	// telemetryMessages MQTT遥测消息计数
	telemetryMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uavsec",
		Subsystem: "telemetry",
		Name:      "messages_total",
		Help:      "接收的MQTT遥测消息总数，按处理结果统计",
	}, []string{"result"})
)

// IncTrainingTotal 记录一次训练任务终态
func IncTrainingTotal(algorithm, status string) {
	trainingTotal.WithLabelValues(algorithm, status).Inc()
}

// ObserveTrainingDuration 记录训练耗时
func ObserveTrainingDuration(algorithm string, d time.Duration) {
	trainingDuration.WithLabelValues(algorithm).Observe(d.Seconds())
}

// IncPredictionTotal 记录一次检测请求
func IncPredictionTotal(source, prediction string) {
	predictionTotal.WithLabelValues(source, prediction).Inc()
}

// IncAlertTotal 记录一次告警生成
func IncAlertTotal(severity string) {
	alertTotal.WithLabelValues(severity).Inc()
}

// SSEConnectionOpened SSE连接建立
func SSEConnectionOpened() {
	sseConnections.Inc()
}

// SSEConnectionClosed SSE连接断开
func SSEConnectionClosed() {
	sseConnections.Dec()
}

// IncTelemetryMessage 记录一条遥测消息的处理结果
func IncTelemetryMessage(result string) {
	telemetryMessages.WithLabelValues(result).Inc()
}
