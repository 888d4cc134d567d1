/*
 * @module service/mlpipeline/linear
 * @description 线性分类器实现，包括逻辑回归和线性SVM（Pegasos次梯度法）
 * @architecture 分层架构 - 训练流水线算法层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 权重初始化 -> 轮次迭代 -> 梯度更新 -> 收敛
 * @rules 输入特征须已标准化；SVM置信度通过间隔的sigmoid映射近似
 * @dependencies gonum.org/v1/gonum/floats, math/rand
 * @refs service/mlpipeline/estimator.go
 */

package mlpipeline

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegression 逻辑回归分类器，L2正则化批量梯度下降
type LogisticRegression struct {
	LearningRate float64   `json:"learning_rate"`
	MaxIter      int       `json:"max_iter"`
	L2           float64   `json:"l2"`
	RandomState  int64     `json:"random_state"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
}

func newLogisticRegression(params Hyperparameters) Estimator {
	return &LogisticRegression{
		LearningRate: paramFloat(params, "learning_rate", 0.1),
		MaxIter:      paramInt(params, "max_iter", 1000),
		L2:           paramFloat(params, "l2", 0.0001),
		RandomState:  int64(paramInt(params, "random_state", 42)),
	}
}

// Algorithm 返回算法名
func (m *LogisticRegression) Algorithm() string {
	return AlgorithmLogisticRegression
}

// Fit 批量梯度下降拟合
func (m *LogisticRegression) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("训练集为空")
	}
	if m.MaxIter <= 0 {
		return fmt.Errorf("max_iter必须为正数: %d", m.MaxIter)
	}

	n := len(x)
	dim := len(x[0])
	m.Weights = make([]float64, dim)
	m.Bias = 0

	grad := make([]float64, dim)
	for iter := 0; iter < m.MaxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		biasGrad := 0.0

		for i, row := range x {
			err := sigmoid(floats.Dot(m.Weights, row)+m.Bias) - float64(y[i])
			floats.AddScaled(grad, err, row)
			biasGrad += err
		}

		scale := m.LearningRate / float64(n)
		for j := range m.Weights {
			m.Weights[j] -= scale*grad[j] + m.LearningRate*m.L2*m.Weights[j]
		}
		m.Bias -= scale * biasGrad
	}

	return nil
}

// Predict 预测类别
func (m *LogisticRegression) Predict(x [][]float64) []int {
	probas := m.PredictProba(x)
	preds := make([]int, len(probas))
	for i, p := range probas {
		if p >= 0.5 {
			preds[i] = 1
		}
	}
	return preds
}

// PredictProba 预测类别1概率
func (m *LogisticRegression) PredictProba(x [][]float64) []float64 {
	probas := make([]float64, len(x))
	for i, row := range x {
		probas[i] = sigmoid(floats.Dot(m.Weights, row) + m.Bias)
	}
	return probas
}

// LinearSVM 线性支持向量机，Pegasos次梯度法求解
type LinearSVM struct {
	C           float64   `json:"c"`
	MaxIter     int       `json:"max_iter"` // 全量数据的迭代轮数
	RandomState int64     `json:"random_state"`
	Weights     []float64 `json:"weights"`
	Bias        float64   `json:"bias"`
}

func newLinearSVM(params Hyperparameters) Estimator {
	return &LinearSVM{
		C:           paramFloat(params, "c", 1.0),
		MaxIter:     paramInt(params, "max_iter", 200),
		RandomState: int64(paramInt(params, "random_state", 42)),
	}
}

// Algorithm 返回算法名
func (m *LinearSVM) Algorithm() string {
	return AlgorithmSVM
}

// Fit Pegasos训练，正则系数lambda = 1/(C*n)
func (m *LinearSVM) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("训练集为空")
	}
	if m.C <= 0 {
		return fmt.Errorf("惩罚系数c必须为正数: %v", m.C)
	}
	if m.MaxIter <= 0 {
		return fmt.Errorf("max_iter必须为正数: %d", m.MaxIter)
	}

	n := len(x)
	dim := len(x[0])
	m.Weights = make([]float64, dim)
	m.Bias = 0

	lambda := 1 / (m.C * float64(n))
	rng := rand.New(rand.NewSource(m.RandomState))

	step := 0
	for epoch := 0; epoch < m.MaxIter; epoch++ {
		for _, i := range rng.Perm(n) {
			step++
			eta := 1 / (lambda * float64(step))

			// 标签映射到±1
			target := float64(2*y[i] - 1)
			margin := target * (floats.Dot(m.Weights, x[i]) + m.Bias)

			floats.Scale(1-eta*lambda, m.Weights)
			if margin < 1 {
				floats.AddScaled(m.Weights, eta*target, x[i])
				m.Bias += eta * target
			}
		}
	}

	return nil
}

// Predict 预测类别
func (m *LinearSVM) Predict(x [][]float64) []int {
	preds := make([]int, len(x))
	for i, row := range x {
		if floats.Dot(m.Weights, row)+m.Bias >= 0 {
			preds[i] = 1
		}
	}
	return preds
}

// PredictProba 将决策函数间隔经sigmoid映射为概率近似
func (m *LinearSVM) PredictProba(x [][]float64) []float64 {
	probas := make([]float64, len(x))
	for i, row := range x {
		probas[i] = sigmoid(floats.Dot(m.Weights, row) + m.Bias)
	}
	return probas
}
