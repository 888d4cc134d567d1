/*
 * @module service/mlpipeline/boosting
 * @description 梯度提升分类器，对数几率损失下逐轮拟合残差的回归树集成
 * @architecture 分层架构 - 训练流水线算法层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 初始对数几率 -> 负梯度计算 -> 回归树拟合 -> 叶节点牛顿步更新
 * @rules 回归树按方差减少分裂；叶节点输出用一阶/二阶梯度比值
 * @dependencies math, sort
 * @refs service/mlpipeline/trainer.go
 */

package mlpipeline

import (
	"fmt"
	"math"
	"sort"
)

// RegressionNode 回归树节点，叶节点存储提升步长
type RegressionNode struct {
	Feature   int             `json:"feature,omitempty"`
	Threshold float64         `json:"threshold,omitempty"`
	Left      *RegressionNode `json:"left,omitempty"`
	Right     *RegressionNode `json:"right,omitempty"`
	Leaf      bool            `json:"leaf,omitempty"`
	Value     float64         `json:"value"`
}

func (n *RegressionNode) predict(row []float64) float64 {
	node := n
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// GradientBoosting 梯度提升分类器
type GradientBoosting struct {
	NEstimators  int               `json:"n_estimators"`
	LearningRate float64           `json:"learning_rate"`
	MaxDepth     int               `json:"max_depth"`
	RandomState  int64             `json:"random_state"`
	InitScore    float64           `json:"init_score"` // 初始对数几率
	Trees        []*RegressionNode `json:"trees"`
}

func newGradientBoosting(params Hyperparameters) Estimator {
	return &GradientBoosting{
		NEstimators:  paramInt(params, "n_estimators", 100),
		LearningRate: paramFloat(params, "learning_rate", 0.1),
		MaxDepth:     paramInt(params, "max_depth", 3),
		RandomState:  int64(paramInt(params, "random_state", 42)),
	}
}

// Algorithm 返回算法名
func (g *GradientBoosting) Algorithm() string {
	return AlgorithmGradientBoosting
}

// Fit 拟合梯度提升模型
func (g *GradientBoosting) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("训练集为空")
	}
	if g.NEstimators <= 0 {
		return fmt.Errorf("n_estimators必须为正数: %d", g.NEstimators)
	}
	if g.LearningRate <= 0 {
		return fmt.Errorf("learning_rate必须为正数: %v", g.LearningRate)
	}

	positive := 0
	for _, label := range y {
		positive += label
	}
	// 初始分数取先验对数几率，端点处截断避免无穷
	p := math.Min(math.Max(float64(positive)/float64(len(y)), 1e-6), 1-1e-6)
	g.InitScore = math.Log(p / (1 - p))

	scores := make([]float64, len(x))
	for i := range scores {
		scores[i] = g.InitScore
	}

	indices := make([]int, len(x))
	for i := range indices {
		indices[i] = i
	}

	gradients := make([]float64, len(x))
	hessians := make([]float64, len(x))
	g.Trees = make([]*RegressionNode, 0, g.NEstimators)

	for t := 0; t < g.NEstimators; t++ {
		for i := range x {
			prob := sigmoid(scores[i])
			gradients[i] = float64(y[i]) - prob // 负梯度
			hessians[i] = prob * (1 - prob)
		}

		tree := buildRegressionTree(x, gradients, hessians, indices, 0, g.MaxDepth)
		g.Trees = append(g.Trees, tree)

		for i, row := range x {
			scores[i] += g.LearningRate * tree.predict(row)
		}
	}

	return nil
}

// Predict 预测类别
func (g *GradientBoosting) Predict(x [][]float64) []int {
	probas := g.PredictProba(x)
	preds := make([]int, len(probas))
	for i, p := range probas {
		if p >= 0.5 {
			preds[i] = 1
		}
	}
	return preds
}

// PredictProba 预测类别1概率
func (g *GradientBoosting) PredictProba(x [][]float64) []float64 {
	probas := make([]float64, len(x))
	for i, row := range x {
		score := g.InitScore
		for _, tree := range g.Trees {
			score += g.LearningRate * tree.predict(row)
		}
		probas[i] = sigmoid(score)
	}
	return probas
}

// buildRegressionTree 按方差减少准则递归构建回归树
// 叶节点输出为 sum(grad)/sum(hess)，即对数几率损失下的牛顿步
func buildRegressionTree(x [][]float64, gradients, hessians []float64, indices []int, depth, maxDepth int) *RegressionNode {
	leafValue := func(idx []int) float64 {
		gradSum, hessSum := 0.0, 0.0
		for _, i := range idx {
			gradSum += gradients[i]
			hessSum += hessians[i]
		}
		if hessSum < 1e-12 {
			return 0
		}
		return gradSum / hessSum
	}

	if depth >= maxDepth || len(indices) < 2 {
		return &RegressionNode{Leaf: true, Value: leafValue(indices)}
	}

	feature, threshold, ok := bestVarianceSplit(x, gradients, indices)
	if !ok {
		return &RegressionNode{Leaf: true, Value: leafValue(indices)}
	}

	var left, right []int
	for _, idx := range indices {
		if x[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &RegressionNode{Leaf: true, Value: leafValue(indices)}
	}

	return &RegressionNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      buildRegressionTree(x, gradients, hessians, left, depth+1, maxDepth),
		Right:     buildRegressionTree(x, gradients, hessians, right, depth+1, maxDepth),
	}
}

// bestVarianceSplit 搜索残差平方和下降最大的分裂点
func bestVarianceSplit(x [][]float64, targets []float64, indices []int) (int, float64, bool) {
	nFeatures := len(x[indices[0]])

	totalSum := 0.0
	for _, idx := range indices {
		totalSum += targets[idx]
	}
	total := float64(len(indices))

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	sorted := make([]int, len(indices))
	for feature := 0; feature < nFeatures; feature++ {
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool {
			return x[sorted[i]][feature] < x[sorted[j]][feature]
		})

		leftSum, leftCount := 0.0, 0.0
		for i := 0; i < len(sorted)-1; i++ {
			leftSum += targets[sorted[i]]
			leftCount++

			cur, next := x[sorted[i]][feature], x[sorted[i+1]][feature]
			if cur == next {
				continue
			}

			rightSum := totalSum - leftSum
			rightCount := total - leftCount
			// 分裂增益：两侧均值平方和相对父节点的提升
			gain := leftSum*leftSum/leftCount + rightSum*rightSum/rightCount - totalSum*totalSum/total
			if gain > bestGain {
				bestGain = gain
				bestFeature = feature
				bestThreshold = (cur + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
