/*
 * @module service/mlpipeline/estimator
 * @description 分类器统一接口与算法分发表，负责超参数默认值合并与校验
 * @architecture 分层架构 - 训练流水线算法层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 算法名校验 -> 默认超参数合并 -> 分类器实例化
 * @rules 未知算法名和未知超参数键均返回校验错误，不做静默忽略
 * @dependencies github.com/spf13/cast
 * @refs service/mlpipeline/trainer.go
 */

package mlpipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// 支持的算法名常量
const (
	AlgorithmRandomForest       = "RandomForest"
	AlgorithmGradientBoosting   = "GradientBoosting"
	AlgorithmSVM                = "SVM"
	AlgorithmNeuralNetwork      = "NeuralNetwork"
	AlgorithmLogisticRegression = "LogisticRegression"
)

// Estimator 二分类器统一接口
type Estimator interface {
	// Fit 在已缩放的训练集上拟合
	Fit(x [][]float64, y []int) error
	// Predict 返回每个样本的预测类别（0或1）
	Predict(x [][]float64) []int
	// PredictProba 返回每个样本属于类别1的概率
	PredictProba(x [][]float64) []float64
	// Algorithm 返回算法名
	Algorithm() string
}

// Hyperparameters 算法超参数映射
type Hyperparameters map[string]interface{}

// estimatorSpec 单个算法的构造器和默认超参数
type estimatorSpec struct {
	defaults    Hyperparameters
	constructor func(params Hyperparameters) Estimator
}

// 算法分发表，算法名 -> 构造器
var estimatorRegistry = map[string]estimatorSpec{
	AlgorithmRandomForest: {
		defaults: Hyperparameters{
			"n_estimators":     100,
			"max_depth":        10,
			"min_samples_leaf": 1,
			"random_state":     42,
		},
		constructor: newRandomForest,
	},
	AlgorithmGradientBoosting: {
		defaults: Hyperparameters{
			"n_estimators":  100,
			"learning_rate": 0.1,
			"max_depth":     3,
			"random_state":  42,
		},
		constructor: newGradientBoosting,
	},
	AlgorithmSVM: {
		defaults: Hyperparameters{
			"c":            1.0,
			"max_iter":     200,
			"random_state": 42,
		},
		constructor: newLinearSVM,
	},
	AlgorithmNeuralNetwork: {
		defaults: Hyperparameters{
			"hidden_layer_sizes": []int{100, 50},
			"learning_rate":      0.01,
			"max_iter":           500,
			"random_state":       42,
		},
		constructor: newMLPClassifier,
	},
	AlgorithmLogisticRegression: {
		defaults: Hyperparameters{
			"learning_rate": 0.1,
			"max_iter":      1000,
			"l2":            0.0001,
			"random_state":  42,
		},
		constructor: newLogisticRegression,
	},
}

// SupportedAlgorithms 返回所有支持的算法名，按字典序排序
func SupportedAlgorithms() []string {
	names := make([]string, 0, len(estimatorRegistry))
	for name := range estimatorRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupportedAlgorithm 判断算法名是否受支持
func IsSupportedAlgorithm(name string) bool {
	_, ok := estimatorRegistry[name]
	return ok
}

// DefaultHyperparameters 返回算法的默认超参数副本
func DefaultHyperparameters(algorithm string) (Hyperparameters, error) {
	spec, ok := estimatorRegistry[algorithm]
	if !ok {
		return nil, fmt.Errorf("不支持的算法: %s", algorithm)
	}

	defaults := make(Hyperparameters, len(spec.defaults))
	for k, v := range spec.defaults {
		defaults[k] = v
	}
	return defaults, nil
}

// MergeHyperparameters 将用户覆盖项合并到默认超参数上
// 未知的超参数键返回校验错误
func MergeHyperparameters(algorithm string, overrides map[string]interface{}) (Hyperparameters, error) {
	merged, err := DefaultHyperparameters(algorithm)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for k, v := range overrides {
		if _, ok := merged[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		merged[k] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("算法 %s 不支持的超参数: %s", algorithm, strings.Join(unknown, ", "))
	}

	return merged, nil
}

// NewEstimator 按算法名创建分类器实例
func NewEstimator(algorithm string, overrides map[string]interface{}) (Estimator, error) {
	spec, ok := estimatorRegistry[algorithm]
	if !ok {
		return nil, fmt.Errorf("不支持的算法: %s", algorithm)
	}

	params, err := MergeHyperparameters(algorithm, overrides)
	if err != nil {
		return nil, err
	}

	return spec.constructor(params), nil
}

// 超参数取值辅助函数，容忍JSON反序列化产生的float64等类型

func paramInt(params Hyperparameters, key string, fallback int) int {
	if v, ok := params[key]; ok {
		if n, err := cast.ToIntE(v); err == nil {
			return n
		}
	}
	return fallback
}

func paramFloat(params Hyperparameters, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
	}
	return fallback
}

func paramIntSlice(params Hyperparameters, key string, fallback []int) []int {
	if v, ok := params[key]; ok {
		if ns, err := cast.ToIntSliceE(v); err == nil && len(ns) > 0 {
			return ns
		}
	}
	return fallback
}
