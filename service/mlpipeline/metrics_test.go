/*
 * @module service/mlpipeline/metrics_test
 * @description 评估指标计算的单元测试
 * @architecture 测试层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 已知标签构造 -> 指标计算 -> 数值断言
 * @rules 覆盖除零、单一类别AUC未定义等边界场景
 * @dependencies testing, stretchr/testify
 */

package mlpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfusionMatrix 测试混淆矩阵计数和派生指标
func TestConfusionMatrix(t *testing.T) {
	yTrue := []int{1, 1, 1, 0, 0, 0, 1, 0}
	yPred := []int{1, 1, 0, 0, 0, 1, 1, 0}

	cm := NewConfusionMatrix(yTrue, yPred)

	assert.Equal(t, 3, cm.TruePositive)
	assert.Equal(t, 1, cm.FalseNegative)
	assert.Equal(t, 1, cm.FalsePositive)
	assert.Equal(t, 3, cm.TrueNegative)

	assert.InDelta(t, 0.75, cm.Accuracy(), 1e-9)
	assert.InDelta(t, 0.75, cm.Precision(), 1e-9)
	assert.InDelta(t, 0.75, cm.Recall(), 1e-9)
	assert.InDelta(t, 0.75, cm.F1Score(), 1e-9)
}

// TestMetricsZeroDivision 测试全预测为负类时精确率、召回率取0
func TestMetricsZeroDivision(t *testing.T) {
	yTrue := []int{1, 1, 0}
	yPred := []int{0, 0, 0}

	cm := NewConfusionMatrix(yTrue, yPred)

	assert.Equal(t, 0.0, cm.Precision())
	assert.Equal(t, 0.0, cm.Recall())
	assert.Equal(t, 0.0, cm.F1Score())
}

// TestROCAUCPerfect 测试完全可分时AUC为1
func TestROCAUCPerfect(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1}
	probas := []float64{0.1, 0.2, 0.3, 0.8, 0.9}

	auc, ok := ROCAUC(yTrue, probas)
	require.True(t, ok)
	assert.InDelta(t, 1.0, auc, 1e-9)
}

// TestROCAUCRandom 测试随机打分时AUC约为0.5
func TestROCAUCRandom(t *testing.T) {
	yTrue := []int{0, 1, 0, 1}
	probas := []float64{0.5, 0.5, 0.5, 0.5}

	auc, ok := ROCAUC(yTrue, probas)
	require.True(t, ok)
	assert.InDelta(t, 0.5, auc, 1e-9)
}

// TestROCAUCSingleClass 测试单一类别时AUC未定义
func TestROCAUCSingleClass(t *testing.T) {
	yTrue := []int{1, 1, 1}
	probas := []float64{0.8, 0.9, 0.7}

	_, ok := ROCAUC(yTrue, probas)
	assert.False(t, ok)
}

// TestEvaluateAllMetricsInRange 测试Evaluate输出的指标均在[0,1]区间
func TestEvaluateAllMetricsInRange(t *testing.T) {
	yTrue := []int{0, 1, 1, 0, 1, 0}
	yPred := []int{0, 1, 0, 0, 1, 1}
	probas := []float64{0.2, 0.9, 0.4, 0.1, 0.8, 0.6}

	metrics, cm := Evaluate(yTrue, yPred, probas)

	for name, value := range map[string]float64{
		"accuracy":  metrics.Accuracy,
		"precision": metrics.Precision,
		"recall":    metrics.Recall,
		"f1_score":  metrics.F1Score,
	} {
		assert.GreaterOrEqual(t, value, 0.0, name)
		assert.LessOrEqual(t, value, 1.0, name)
	}

	require.NotNil(t, metrics.ROCAUC)
	assert.GreaterOrEqual(t, *metrics.ROCAUC, 0.0)
	assert.LessOrEqual(t, *metrics.ROCAUC, 1.0)

	total := cm.TruePositive + cm.TrueNegative + cm.FalsePositive + cm.FalseNegative
	assert.Equal(t, len(yTrue), total)
}
