/*
 * @module service/mlpipeline/tree
 * @description CART分类树实现，基尼不纯度分裂，作为随机森林的基学习器
 * @architecture 分层架构 - 训练流水线算法层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 节点样本 -> 最优分裂搜索 -> 递归建树 -> 叶节点概率
 * @rules 分裂候选取相邻特征值中点；达到深度上限或叶样本下限时停止
 * @dependencies math/rand, sort
 * @refs service/mlpipeline/forest.go
 */

package mlpipeline

import (
	"math"
	"math/rand"
	"sort"
)

// TreeNode 决策树节点，导出字段用于JSON序列化
type TreeNode struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
	Leaf      bool      `json:"leaf,omitempty"`
	Proba     float64   `json:"proba"` // 节点内类别1的占比
}

// predictProba 返回样本落入叶节点的类别1概率
func (n *TreeNode) predictProba(row []float64) float64 {
	node := n
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Proba
}

// treeConfig 建树参数
type treeConfig struct {
	maxDepth       int
	minSamplesLeaf int
	// 每次分裂随机抽取的特征数，0表示使用全部特征
	maxFeatures int
}

// buildTree 在indices指定的样本子集上递归构建分类树
func buildTree(x [][]float64, y []int, indices []int, depth int, cfg treeConfig, rng *rand.Rand) *TreeNode {
	positive := 0
	for _, idx := range indices {
		positive += y[idx]
	}
	proba := float64(positive) / float64(len(indices))

	// 纯节点、深度上限或样本不足时收叶
	if positive == 0 || positive == len(indices) ||
		depth >= cfg.maxDepth || len(indices) < 2*cfg.minSamplesLeaf {
		return &TreeNode{Leaf: true, Proba: proba}
	}

	feature, threshold, ok := bestGiniSplit(x, y, indices, cfg, rng)
	if !ok {
		return &TreeNode{Leaf: true, Proba: proba}
	}

	var left, right []int
	for _, idx := range indices {
		if x[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) < cfg.minSamplesLeaf || len(right) < cfg.minSamplesLeaf {
		return &TreeNode{Leaf: true, Proba: proba}
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      buildTree(x, y, left, depth+1, cfg, rng),
		Right:     buildTree(x, y, right, depth+1, cfg, rng),
		Proba:     proba,
	}
}

// bestGiniSplit 搜索基尼不纯度下降最大的分裂点
func bestGiniSplit(x [][]float64, y []int, indices []int, cfg treeConfig, rng *rand.Rand) (int, float64, bool) {
	nFeatures := len(x[indices[0]])
	features := candidateFeatures(nFeatures, cfg.maxFeatures, rng)

	bestGini := math.Inf(1)
	bestFeature := -1
	bestThreshold := 0.0

	total := len(indices)
	totalPositive := 0
	for _, idx := range indices {
		totalPositive += y[idx]
	}

	// 按特征值排序后扫一遍前缀计数即可评估所有候选阈值
	sorted := make([]int, len(indices))
	for _, feature := range features {
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool {
			return x[sorted[i]][feature] < x[sorted[j]][feature]
		})

		leftCount, leftPositive := 0, 0
		for i := 0; i < len(sorted)-1; i++ {
			leftCount++
			leftPositive += y[sorted[i]]

			cur, next := x[sorted[i]][feature], x[sorted[i+1]][feature]
			if cur == next {
				continue
			}

			gini := weightedGini(leftCount, leftPositive, total-leftCount, totalPositive-leftPositive)
			if gini < bestGini {
				bestGini = gini
				bestFeature = feature
				bestThreshold = (cur + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

// candidateFeatures 返回本次分裂考察的特征集合
func candidateFeatures(nFeatures, maxFeatures int, rng *rand.Rand) []int {
	if maxFeatures <= 0 || maxFeatures >= nFeatures || rng == nil {
		features := make([]int, nFeatures)
		for i := range features {
			features[i] = i
		}
		return features
	}

	perm := rng.Perm(nFeatures)
	return perm[:maxFeatures]
}

// weightedGini 两个子节点的加权基尼不纯度
func weightedGini(leftCount, leftPositive, rightCount, rightPositive int) float64 {
	total := float64(leftCount + rightCount)
	return float64(leftCount)/total*gini(leftCount, leftPositive) +
		float64(rightCount)/total*gini(rightCount, rightPositive)
}

// gini 单节点基尼不纯度
func gini(count, positive int) float64 {
	if count == 0 {
		return 0
	}
	p := float64(positive) / float64(count)
	return 2 * p * (1 - p)
}
