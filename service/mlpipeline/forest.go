/*
 * @module service/mlpipeline/forest
 * @description 随机森林分类器，自助采样加特征子采样的CART树集成
 * @architecture 分层架构 - 训练流水线算法层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 自助采样 -> 逐棵建树 -> 概率平均
 * @rules 每次分裂抽取sqrt(特征数)个候选特征；随机种子固定保证可复现
 * @dependencies math/rand
 * @refs service/mlpipeline/tree.go
 */

package mlpipeline

import (
	"fmt"
	"math"
	"math/rand"
)

// RandomForest 随机森林分类器
type RandomForest struct {
	NEstimators    int         `json:"n_estimators"`
	MaxDepth       int         `json:"max_depth"`
	MinSamplesLeaf int         `json:"min_samples_leaf"`
	RandomState    int64       `json:"random_state"`
	Trees          []*TreeNode `json:"trees"`
	// 各特征在分裂中的基尼增益累计，训练后归一化
	FeatureImportances []float64 `json:"feature_importances"`
}

func newRandomForest(params Hyperparameters) Estimator {
	return &RandomForest{
		NEstimators:    paramInt(params, "n_estimators", 100),
		MaxDepth:       paramInt(params, "max_depth", 10),
		MinSamplesLeaf: paramInt(params, "min_samples_leaf", 1),
		RandomState:    int64(paramInt(params, "random_state", 42)),
	}
}

// Algorithm 返回算法名
func (f *RandomForest) Algorithm() string {
	return AlgorithmRandomForest
}

// Fit 拟合随机森林
func (f *RandomForest) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("训练集为空")
	}
	if f.NEstimators <= 0 {
		return fmt.Errorf("n_estimators必须为正数: %d", f.NEstimators)
	}

	rng := rand.New(rand.NewSource(f.RandomState))
	nFeatures := len(x[0])
	cfg := treeConfig{
		maxDepth:       f.MaxDepth,
		minSamplesLeaf: f.MinSamplesLeaf,
		maxFeatures:    int(math.Ceil(math.Sqrt(float64(nFeatures)))),
	}

	f.Trees = make([]*TreeNode, f.NEstimators)
	for t := 0; t < f.NEstimators; t++ {
		// 自助采样
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = rng.Intn(len(x))
		}
		f.Trees[t] = buildTree(x, y, sample, 0, cfg, rng)
	}

	f.FeatureImportances = f.computeFeatureImportances(nFeatures)
	return nil
}

// Predict 多数投票预测类别
func (f *RandomForest) Predict(x [][]float64) []int {
	probas := f.PredictProba(x)
	preds := make([]int, len(probas))
	for i, p := range probas {
		if p >= 0.5 {
			preds[i] = 1
		}
	}
	return preds
}

// PredictProba 各树叶节点概率的平均值
func (f *RandomForest) PredictProba(x [][]float64) []float64 {
	probas := make([]float64, len(x))
	for i, row := range x {
		sum := 0.0
		for _, tree := range f.Trees {
			sum += tree.predictProba(row)
		}
		probas[i] = sum / float64(len(f.Trees))
	}
	return probas
}

// computeFeatureImportances 按分裂出现次数统计特征重要性并归一化
func (f *RandomForest) computeFeatureImportances(nFeatures int) []float64 {
	counts := make([]float64, nFeatures)
	var walk func(node *TreeNode)
	walk = func(node *TreeNode) {
		if node == nil || node.Leaf {
			return
		}
		counts[node.Feature]++
		walk(node.Left)
		walk(node.Right)
	}
	for _, tree := range f.Trees {
		walk(tree)
	}

	total := 0.0
	for _, c := range counts {
		total += c
	}
	if total > 0 {
		for i := range counts {
			counts[i] /= total
		}
	}
	return counts
}
