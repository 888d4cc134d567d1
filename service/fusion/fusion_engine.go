/*
 * @module service/fusion/fusion_engine
 * @description 多传感器威胁融合引擎，将RF异常分数与GNSS欺骗分数加权合成统一威胁评估
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 分项评分输入 -> 权重归一化 -> 加权合成 -> 威胁定级 -> 响应建议
 * @rules 权重和自动归一化，合成分数裁剪到[0,1]并保留4位小数
 * @dependencies log/slog
 * @refs api/controllers/detection_controller.go
 */

package fusion

import (
	"log/slog"
	"math"
	"strings"
)

// 威胁等级划分阈值
const (
	ThresholdSuspicious = 0.3
	ThresholdLowAttack  = 0.5
	ThresholdHighAttack = 0.7
	ThresholdCritical   = 0.85
)

// 默认融合权重
const (
	DefaultWeightRF    = 0.6
	DefaultWeightGNSS  = 0.4
	DefaultWeightOther = 0.0
)

// threatLevelDescriptions 各威胁等级描述
var threatLevelDescriptions = map[int]string{
	0: "Normal operation",
	1: "Suspicious activity",
	2: "Confirmed low-severity attack",
	3: "Confirmed high-severity attack",
	4: "Critical multi-vector attack",
}

// threatLevelResponses 各威胁等级的推荐响应动作
var threatLevelResponses = map[int][]string{
	0: {"continue_normal_logging"},
	1: {"increase_monitoring", "log_detailed_telemetry", "alert_operator", "reduce_speed_30pct"},
	2: {"activate_backup_navigation", "return_to_home", "increase_logging_verbosity", "send_emergency_alert"},
	3: {"emergency_rth_or_imu_hover", "activate_emergency_comms", "disable_vulnerable_sensors"},
	4: {"immediate_landing", "imu_barometer_only", "cut_external_links", "log_forensic_data"},
}

// Weights 融合权重，总和会被归一化为1
type Weights struct {
	RF    float64 `json:"rf"`
	GNSS  float64 `json:"gnss"`
	Other float64 `json:"other"`
}

// DefaultWeights 返回默认融合权重
func DefaultWeights() Weights {
	return Weights{RF: DefaultWeightRF, GNSS: DefaultWeightGNSS, Other: DefaultWeightOther}
}

// Assessment 融合评估结果
type Assessment struct {
	CombinedScore      float64  `json:"combined_score"`
	ThreatLevel        int      `json:"threat_level"`
	ThreatDescription  string   `json:"threat_description"`
	RecommendedActions []string `json:"recommended_actions"`
	AttackTypes        []string `json:"attack_types"`
}

// Engine 威胁融合引擎
type Engine struct{}

// NewEngine 创建融合引擎
func NewEngine() *Engine {
	return &Engine{}
}

// CombinedScore 计算加权合成威胁分数
// S_combined = w_RF × S_RF + w_GNSS × S_GNSS + w_other × S_other
func (e *Engine) CombinedScore(rfScore, gnssScore float64, otherIndicators map[string]float64, weights *Weights) float64 {
	w := DefaultWeights()
	if weights != nil {
		w = *weights
	}

	total := w.RF + w.GNSS + w.Other
	if total > 0 {
		w.RF /= total
		w.GNSS /= total
		w.Other /= total
	}

	otherScore := 0.0
	if len(otherIndicators) > 0 {
		// 各项指标等权平均
		sum := 0.0
		for _, v := range otherIndicators {
			sum += v
		}
		otherScore = sum / float64(len(otherIndicators))
	}

	combined := w.RF*rfScore + w.GNSS*gnssScore + w.Other*otherScore
	combined = math.Min(math.Max(combined, 0), 1)
	return math.Round(combined*10000) / 10000
}

// ThreatLevel 将合成分数映射为0-4威胁等级
func (e *Engine) ThreatLevel(combinedScore float64) int {
	switch {
	case combinedScore >= ThresholdCritical:
		return 4
	case combinedScore >= ThresholdHighAttack:
		return 3
	case combinedScore >= ThresholdLowAttack:
		return 2
	case combinedScore >= ThresholdSuspicious:
		return 1
	default:
		return 0
	}
}

// RecommendedActions 返回指定威胁等级的推荐响应动作
func (e *Engine) RecommendedActions(threatLevel int) []string {
	actions, ok := threatLevelResponses[threatLevel]
	if !ok {
		actions = threatLevelResponses[0]
	}
	result := make([]string, len(actions))
	copy(result, actions)
	return result
}

// Assess 完整融合流程: 合成分数 -> 威胁定级 -> 响应建议
func (e *Engine) Assess(rfScore, gnssScore float64, attackType string, otherIndicators map[string]float64) *Assessment {
	combined := e.CombinedScore(rfScore, gnssScore, otherIndicators, nil)
	level := e.ThreatLevel(combined)

	attackTypes := []string{}
	if attackType != "" && strings.ToLower(attackType) != "normal" {
		attackTypes = append(attackTypes, attackType)
	}

	description, ok := threatLevelDescriptions[level]
	if !ok {
		description = "Unknown"
	}

	slog.Info("威胁融合评估完成",
		"rf_score", rfScore,
		"gnss_score", gnssScore,
		"combined_score", combined,
		"threat_level", level,
		"description", description)

	return &Assessment{
		CombinedScore:      combined,
		ThreatLevel:        level,
		ThreatDescription:  description,
		RecommendedActions: e.RecommendedActions(level),
		AttackTypes:        attackTypes,
	}
}
