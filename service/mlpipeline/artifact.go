/*
 * @module service/mlpipeline/artifact
 * @description 模型与缩放器产物的持久化，JSON信封格式按算法名还原具体类型
 * @architecture 分层架构 - 训练流水线持久化层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 模型序列化 -> 信封写盘 -> 按算法名反序列化还原
 * @rules 产物文件名由算法名和时间戳确定；同一产物重新加载后预测结果一致
 * @dependencies encoding/json, os
 * @refs service/registry_service.go, service/detection_service.go
 */

package mlpipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// modelEnvelope 模型产物信封，Payload按Algorithm还原为具体分类器
type modelEnvelope struct {
	Algorithm string          `json:"algorithm"`
	TrainedAt time.Time       `json:"trained_at"`
	Payload   json.RawMessage `json:"payload"`
}

// ArtifactPaths 一次训练输出的产物路径
type ArtifactPaths struct {
	ModelPath  string `json:"model_path"`
	ScalerPath string `json:"scaler_path"`
}

// ArtifactNames 按算法名和时间戳生成确定性的产物文件名
func ArtifactNames(dir, algorithm string, trainedAt time.Time) ArtifactPaths {
	timestamp := trainedAt.Format("20060102_150405")
	return ArtifactPaths{
		ModelPath:  filepath.Join(dir, fmt.Sprintf("%s_%s.model.json", algorithm, timestamp)),
		ScalerPath: filepath.Join(dir, fmt.Sprintf("scaler_%s_%s.json", algorithm, timestamp)),
	}
}

// SaveModel 将训练好的分类器序列化到指定路径
func SaveModel(path string, est Estimator, trainedAt time.Time) error {
	payload, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("序列化模型失败: %w", err)
	}

	envelope := modelEnvelope{
		Algorithm: est.Algorithm(),
		TrainedAt: trainedAt,
		Payload:   payload,
	}

	return writeJSONFile(path, envelope)
}

// LoadModel 从产物文件加载分类器，按信封中的算法名还原具体类型
func LoadModel(path string) (Estimator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取模型产物失败: %w", err)
	}

	var envelope modelEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("解析模型产物失败: %w", err)
	}

	var est Estimator
	switch envelope.Algorithm {
	case AlgorithmRandomForest:
		est = &RandomForest{}
	case AlgorithmGradientBoosting:
		est = &GradientBoosting{}
	case AlgorithmSVM:
		est = &LinearSVM{}
	case AlgorithmNeuralNetwork:
		est = &MLPClassifier{}
	case AlgorithmLogisticRegression:
		est = &LogisticRegression{}
	default:
		return nil, fmt.Errorf("模型产物中的算法不受支持: %s", envelope.Algorithm)
	}

	if err := json.Unmarshal(envelope.Payload, est); err != nil {
		return nil, fmt.Errorf("还原%s模型失败: %w", envelope.Algorithm, err)
	}

	return est, nil
}

// SaveScaler 持久化标准化缩放器
func SaveScaler(path string, scaler *StandardScaler) error {
	return writeJSONFile(path, scaler)
}

// LoadScaler 加载标准化缩放器
func LoadScaler(path string) (*StandardScaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取缩放器产物失败: %w", err)
	}

	var scaler StandardScaler
	if err := json.Unmarshal(data, &scaler); err != nil {
		return nil, fmt.Errorf("解析缩放器产物失败: %w", err)
	}
	return &scaler, nil
}

// writeJSONFile 序列化并写入文件，必要时创建目录
func writeJSONFile(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建产物目录失败: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化产物失败: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入产物文件失败: %w", err)
	}
	return nil
}
