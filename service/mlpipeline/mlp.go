/*
 * @module service/mlpipeline/mlp
 * @description 多层感知机分类器，ReLU隐藏层加sigmoid输出，小批量随机梯度下降
 * @architecture 分层架构 - 训练流水线算法层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 权重初始化 -> 前向传播 -> 反向传播 -> 批量权重更新
 * @rules 权重用固定种子的缩放均匀分布初始化，保证训练可复现
 * @dependencies math/rand, gonum.org/v1/gonum/floats
 * @refs service/mlpipeline/estimator.go
 */

package mlpipeline

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// mlpLayer 全连接层，Weights[i]为第i个输出神经元的权重向量
type mlpLayer struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// MLPClassifier 多层感知机二分类器
type MLPClassifier struct {
	HiddenLayerSizes []int      `json:"hidden_layer_sizes"`
	LearningRate     float64    `json:"learning_rate"`
	MaxIter          int        `json:"max_iter"`
	RandomState      int64      `json:"random_state"`
	Layers           []mlpLayer `json:"layers"`
}

func newMLPClassifier(params Hyperparameters) Estimator {
	return &MLPClassifier{
		HiddenLayerSizes: paramIntSlice(params, "hidden_layer_sizes", []int{100, 50}),
		LearningRate:     paramFloat(params, "learning_rate", 0.01),
		MaxIter:          paramInt(params, "max_iter", 500),
		RandomState:      int64(paramInt(params, "random_state", 42)),
	}
}

// Algorithm 返回算法名
func (m *MLPClassifier) Algorithm() string {
	return AlgorithmNeuralNetwork
}

// Fit 随机梯度下降训练
func (m *MLPClassifier) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("训练集为空")
	}
	if m.MaxIter <= 0 {
		return fmt.Errorf("max_iter必须为正数: %d", m.MaxIter)
	}
	for _, size := range m.HiddenLayerSizes {
		if size <= 0 {
			return fmt.Errorf("隐藏层神经元数必须为正数: %v", m.HiddenLayerSizes)
		}
	}

	rng := rand.New(rand.NewSource(m.RandomState))
	m.initLayers(len(x[0]), rng)

	n := len(x)
	for epoch := 0; epoch < m.MaxIter; epoch++ {
		for _, i := range rng.Perm(n) {
			activations := m.forward(x[i])
			m.backward(x[i], float64(y[i]), activations)
		}
	}

	return nil
}

// Predict 预测类别
func (m *MLPClassifier) Predict(x [][]float64) []int {
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
func (m *MLPClassifier) PredictProba(x [][]float64) []float64 {
	probas := make([]float64, len(x))
	for i, row := range x {
		activations := m.forward(row)
		probas[i] = activations[len(activations)-1][0]
	}
	return probas
}

// initLayers 按网络结构初始化各层权重
func (m *MLPClassifier) initLayers(inputDim int, rng *rand.Rand) {
	sizes := append([]int{inputDim}, m.HiddenLayerSizes...)
	sizes = append(sizes, 1) // 输出层单神经元

	m.Layers = make([]mlpLayer, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2 / float64(in))

		layer := mlpLayer{
			Weights: make([][]float64, out),
			Biases:  make([]float64, out),
		}
		for j := 0; j < out; j++ {
			layer.Weights[j] = make([]float64, in)
			for k := range layer.Weights[j] {
				layer.Weights[j][k] = (rng.Float64()*2 - 1) * scale
			}
		}
		m.Layers[l] = layer
	}
}

// forward 前向传播，返回各层输出（含输入层）
func (m *MLPClassifier) forward(row []float64) [][]float64 {
	activations := make([][]float64, len(m.Layers)+1)
	activations[0] = row

	for l, layer := range m.Layers {
		out := make([]float64, len(layer.Weights))
		last := l == len(m.Layers)-1
		for j, weights := range layer.Weights {
			z := floats.Dot(weights, activations[l]) + layer.Biases[j]
			if last {
				out[j] = sigmoid(z)
			} else {
				out[j] = math.Max(0, z) // ReLU
			}
		}
		activations[l+1] = out
	}

	return activations
}

// backward 反向传播并就地更新权重
func (m *MLPClassifier) backward(row []float64, target float64, activations [][]float64) {
	// 输出层delta：sigmoid加交叉熵损失的组合梯度
	deltas := []float64{activations[len(activations)-1][0] - target}

	for l := len(m.Layers) - 1; l >= 0; l-- {
		layer := &m.Layers[l]
		input := activations[l]

		// 先算传给前一层的delta，再更新本层权重
		var prevDeltas []float64
		if l > 0 {
			prevDeltas = make([]float64, len(input))
			for k := range input {
				sum := 0.0
				for j, weights := range layer.Weights {
					sum += deltas[j] * weights[k]
				}
				if input[k] <= 0 { // ReLU导数
					sum = 0
				}
				prevDeltas[k] = sum
			}
		}

		for j, weights := range layer.Weights {
			floats.AddScaled(weights, -m.LearningRate*deltas[j], input)
			layer.Biases[j] -= m.LearningRate * deltas[j]
		}

		deltas = prevDeltas
	}
}
