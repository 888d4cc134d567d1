/*
 * @module service/fusion/fusion_engine_test
 * @description 威胁融合引擎单元测试
 * @architecture 测试层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 构造评分输入 -> 执行融合 -> 断言分数、等级与响应动作
 * @rules 覆盖权重归一化、阈值边界与完整评估流程
 * @dependencies github.com/stretchr/testify
 * @refs service/fusion/fusion_engine.go
 */

package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombinedScoreDefaultWeights(t *testing.T) {
	engine := NewEngine()

	// 0.6*0.5 + 0.4*0.5 = 0.5
	score := engine.CombinedScore(0.5, 0.5, nil, nil)
	assert.InDelta(t, 0.5, score, 1e-9)

	// RF权重更高，RF分数主导
	score = engine.CombinedScore(1.0, 0.0, nil, nil)
	assert.InDelta(t, 0.6, score, 1e-9)
}

func TestCombinedScoreWeightNormalization(t *testing.T) {
	engine := NewEngine()

	// 权重和为2，归一化后等价于0.5/0.5
	weights := &Weights{RF: 1.0, GNSS: 1.0}
	score := engine.CombinedScore(0.8, 0.4, nil, weights)
	assert.InDelta(t, 0.6, score, 1e-9)
}

func TestCombinedScoreOtherIndicators(t *testing.T) {
	engine := NewEngine()

	// other权重生效时取各指标平均值
	weights := &Weights{RF: 0.5, GNSS: 0.3, Other: 0.2}
	indicators := map[string]float64{"acoustic": 1.0, "visual": 0.0}
	score := engine.CombinedScore(0.0, 0.0, indicators, weights)
	assert.InDelta(t, 0.1, score, 1e-9)
}

func TestCombinedScoreClamped(t *testing.T) {
	engine := NewEngine()

	score := engine.CombinedScore(2.0, 2.0, nil, nil)
	assert.LessOrEqual(t, score, 1.0)

	score = engine.CombinedScore(-1.0, -1.0, nil, nil)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestThreatLevelThresholds(t *testing.T) {
	engine := NewEngine()

	cases := []struct {
		score float64
		level int
	}{
		{0.0, 0},
		{0.29, 0},
		{0.3, 1},
		{0.49, 1},
		{0.5, 2},
		{0.69, 2},
		{0.7, 3},
		{0.84, 3},
		{0.85, 4},
		{1.0, 4},
	}

	for _, c := range cases {
		assert.Equal(t, c.level, engine.ThreatLevel(c.score), "score=%v", c.score)
	}
}

func TestRecommendedActions(t *testing.T) {
	engine := NewEngine()

	actions := engine.RecommendedActions(4)
	assert.Contains(t, actions, "immediate_landing")

	// 未知等级回退到正常响应
	actions = engine.RecommendedActions(99)
	assert.Equal(t, []string{"continue_normal_logging"}, actions)
}

func TestAssessFullPipeline(t *testing.T) {
	engine := NewEngine()

	result := engine.Assess(0.9, 0.8, "gps_spoofing", nil)

	// 0.6*0.9 + 0.4*0.8 = 0.86 -> 等级4
	assert.InDelta(t, 0.86, result.CombinedScore, 1e-9)
	assert.Equal(t, 4, result.ThreatLevel)
	assert.Equal(t, "Critical multi-vector attack", result.ThreatDescription)
	assert.Contains(t, result.RecommendedActions, "immediate_landing")
	assert.Equal(t, []string{"gps_spoofing"}, result.AttackTypes)
}

func TestAssessNormalAttackTypeExcluded(t *testing.T) {
	engine := NewEngine()

	result := engine.Assess(0.1, 0.1, "Normal", nil)
	assert.Equal(t, 0, result.ThreatLevel)
	assert.Empty(t, result.AttackTypes)
}
