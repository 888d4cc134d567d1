/*
 * @module service/mlpipeline/preprocess
 * @description 特征预处理，包括标准化缩放和分层训练/测试集划分
 * @architecture 分层架构 - 训练流水线数据层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 特征/标签分离 -> 分层划分 -> 缩放器拟合 -> 特征变换
 * @rules 缩放器仅在训练集上拟合；划分按类别分层且随机种子固定可复现
 * @dependencies gonum.org/v1/gonum/stat, math/rand
 * @refs service/mlpipeline/trainer.go
 */

package mlpipeline

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler 标准化缩放器，按列减均值除标准差
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Fit 在训练集上拟合均值和标准差
func (s *StandardScaler) Fit(x [][]float64) {
	if len(x) == 0 {
		return
	}

	cols := len(x[0])
	s.Mean = make([]float64, cols)
	s.Std = make([]float64, cols)

	column := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			column[i] = x[i][j]
		}
		s.Mean[j] = stat.Mean(column, nil)
		s.Std[j] = stat.StdDev(column, nil)
		// 常量列标准差为0，置1避免除零
		if s.Std[j] == 0 || math.IsNaN(s.Std[j]) {
			s.Std[j] = 1
		}
	}
}

// Transform 按已拟合的参数变换特征矩阵，返回新矩阵
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = scaled
	}
	return out
}

// TransformRow 变换单个特征向量
func (s *StandardScaler) TransformRow(row []float64) []float64 {
	scaled := make([]float64, len(row))
	for j, v := range row {
		scaled[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return scaled
}

// FitTransform 拟合并变换
func (s *StandardScaler) FitTransform(x [][]float64) [][]float64 {
	s.Fit(x)
	return s.Transform(x)
}

// SplitResult 训练/测试集划分结果
type SplitResult struct {
	XTrain [][]float64
	XTest  [][]float64
	YTrain []int
	YTest  []int
}

// TrainTestSplit 分层训练/测试集划分
// 按类别分层，保证两个类别在训练集和测试集中的比例与整体一致；
// 每个类别至少需要2个样本，否则返回错误
func TrainTestSplit(x [][]float64, y []int, testSize float64, seed int64) (*SplitResult, error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, fmt.Errorf("测试集比例必须在(0,1)之间: %v", testSize)
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("特征与标签数量不一致: %d != %d", len(x), len(y))
	}

	// 按类别分组
	classIndices := map[int][]int{}
	for i, label := range y {
		classIndices[label] = append(classIndices[label], i)
	}
	for label, indices := range classIndices {
		if len(indices) < 2 {
			return nil, fmt.Errorf("类别 %d 样本不足: 至少需要2个样本, 实际%d个", label, len(indices))
		}
	}

	rng := rand.New(rand.NewSource(seed))
	result := &SplitResult{}

	// 类别按固定顺序处理，保证同一种子下划分可复现
	for label := 0; label <= 1; label++ {
		indices, ok := classIndices[label]
		if !ok {
			continue
		}
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		testCount := int(math.Round(float64(len(indices)) * testSize))
		if testCount < 1 {
			testCount = 1
		}
		if testCount >= len(indices) {
			testCount = len(indices) - 1
		}

		for i, idx := range indices {
			if i < testCount {
				result.XTest = append(result.XTest, x[idx])
				result.YTest = append(result.YTest, y[idx])
			} else {
				result.XTrain = append(result.XTrain, x[idx])
				result.YTrain = append(result.YTrain, y[idx])
			}
		}
	}

	// 打乱训练集，避免类别成块影响依赖样本顺序的算法
	perm := rng.Perm(len(result.XTrain))
	shuffledX := make([][]float64, len(result.XTrain))
	shuffledY := make([]int, len(result.YTrain))
	for i, p := range perm {
		shuffledX[i] = result.XTrain[p]
		shuffledY[i] = result.YTrain[p]
	}
	result.XTrain = shuffledX
	result.YTrain = shuffledY

	return result, nil
}
