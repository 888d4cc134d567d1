/*
 * @module service/mlpipeline/metrics
 * @description 分类评估指标计算，包括准确率、精确率、召回率、F1、ROC-AUC和混淆矩阵
 * @architecture 分层架构 - 训练流水线评估层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 预测结果 -> 混淆矩阵 -> 指标计算
 * @rules 除零场景指标取0；测试集只含单一类别时ROC-AUC未定义并省略
 * @dependencies sort
 * @refs service/mlpipeline/trainer.go
 */

package mlpipeline

import "sort"

// ConfusionMatrix 二分类混淆矩阵
type ConfusionMatrix struct {
	TrueNegative  int `json:"true_negative"`
	FalsePositive int `json:"false_positive"`
	FalseNegative int `json:"false_negative"`
	TruePositive  int `json:"true_positive"`
}

// EvalMetrics 评估指标集合，ROC-AUC在非二分类场景下为空
type EvalMetrics struct {
	Accuracy  float64  `json:"accuracy"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1Score   float64  `json:"f1_score"`
	ROCAUC    *float64 `json:"roc_auc,omitempty"`
}

// Evaluate 在真实标签、预测标签和预测概率上计算全部指标
func Evaluate(yTrue, yPred []int, probas []float64) (EvalMetrics, ConfusionMatrix) {
	cm := NewConfusionMatrix(yTrue, yPred)

	metrics := EvalMetrics{
		Accuracy:  cm.Accuracy(),
		Precision: cm.Precision(),
		Recall:    cm.Recall(),
		F1Score:   cm.F1Score(),
	}

	if auc, ok := ROCAUC(yTrue, probas); ok {
		metrics.ROCAUC = &auc
	}

	return metrics, cm
}

// NewConfusionMatrix 由真实标签和预测标签构建混淆矩阵
func NewConfusionMatrix(yTrue, yPred []int) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			cm.TruePositive++
		case yTrue[i] == 1 && yPred[i] == 0:
			cm.FalseNegative++
		case yTrue[i] == 0 && yPred[i] == 1:
			cm.FalsePositive++
		default:
			cm.TrueNegative++
		}
	}
	return cm
}

// Accuracy 准确率
func (cm ConfusionMatrix) Accuracy() float64 {
	total := cm.TruePositive + cm.TrueNegative + cm.FalsePositive + cm.FalseNegative
	if total == 0 {
		return 0
	}
	return float64(cm.TruePositive+cm.TrueNegative) / float64(total)
}

// Precision 精确率，除零时返回0
func (cm ConfusionMatrix) Precision() float64 {
	denom := cm.TruePositive + cm.FalsePositive
	if denom == 0 {
		return 0
	}
	return float64(cm.TruePositive) / float64(denom)
}

// Recall 召回率，除零时返回0
func (cm ConfusionMatrix) Recall() float64 {
	denom := cm.TruePositive + cm.FalseNegative
	if denom == 0 {
		return 0
	}
	return float64(cm.TruePositive) / float64(denom)
}

// F1Score 精确率与召回率的调和平均，除零时返回0
func (cm ConfusionMatrix) F1Score() float64 {
	p, r := cm.Precision(), cm.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// ToJSON 转换为可入库的映射
func (cm ConfusionMatrix) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"true_negative":  cm.TrueNegative,
		"false_positive": cm.FalsePositive,
		"false_negative": cm.FalseNegative,
		"true_positive":  cm.TruePositive,
	}
}

// ROCAUC 用秩和法（Mann-Whitney U统计量）计算ROC曲线下面积
// 测试集中只存在单一类别时AUC未定义，第二个返回值为false
func ROCAUC(yTrue []int, probas []float64) (float64, bool) {
	positive, negative := 0, 0
	for _, label := range yTrue {
		if label == 1 {
			positive++
		} else {
			negative++
		}
	}
	if positive == 0 || negative == 0 {
		return 0, false
	}

	type scored struct {
		proba float64
		label int
	}
	items := make([]scored, len(yTrue))
	for i := range yTrue {
		items[i] = scored{probas[i], yTrue[i]}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].proba < items[j].proba
	})

	// 并列分数取平均秩
	ranks := make([]float64, len(items))
	for i := 0; i < len(items); {
		j := i
		for j < len(items) && items[j].proba == items[i].proba {
			j++
		}
		avgRank := float64(i+j+1) / 2 // 1-based秩的平均
		for k := i; k < j; k++ {
			ranks[k] = avgRank
		}
		i = j
	}

	rankSum := 0.0
	for i, item := range items {
		if item.label == 1 {
			rankSum += ranks[i]
		}
	}

	auc := (rankSum - float64(positive)*float64(positive+1)/2) /
		(float64(positive) * float64(negative))
	return auc, true
}
