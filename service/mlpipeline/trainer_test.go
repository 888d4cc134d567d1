/*
 * @module service/mlpipeline/trainer_test
 * @description 训练流水线端到端单元测试，覆盖全部算法、进度事件和产物往返
 * @architecture 测试层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow 合成数据集 -> 流水线执行 -> 指标/进度/产物断言
 * @rules 使用小规模超参数保证测试速度；固定种子保证可复现
 * @dependencies testing, stretchr/testify
 */

package mlpipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastHyperparameters 各算法的小规模测试超参数
func fastHyperparameters(algorithm string) map[string]interface{} {
	switch algorithm {
	case AlgorithmRandomForest:
		return map[string]interface{}{"n_estimators": 10, "max_depth": 5}
	case AlgorithmGradientBoosting:
		return map[string]interface{}{"n_estimators": 10}
	case AlgorithmSVM:
		return map[string]interface{}{"max_iter": 20}
	case AlgorithmNeuralNetwork:
		return map[string]interface{}{"hidden_layer_sizes": []int{8}, "max_iter": 30}
	case AlgorithmLogisticRegression:
		return map[string]interface{}{"max_iter": 100}
	default:
		return nil
	}
}

// TestTrainAllAlgorithms 测试所有支持的算法都能训练出指标在[0,1]内的模型
func TestTrainAllAlgorithms(t *testing.T) {
	path := syntheticCSV(t, 80, 40)

	for _, algorithm := range SupportedAlgorithms() {
		t.Run(algorithm, func(t *testing.T) {
			var events []ProgressEvent
			trainer := NewTrainer(func(e ProgressEvent) {
				events = append(events, e)
			})

			result, err := trainer.Run(context.Background(), &TrainRequest{
				Algorithm:       algorithm,
				DatasetPath:     path,
				TestSize:        0.2,
				Hyperparameters: fastHyperparameters(algorithm),
				ArtifactDir:     t.TempDir(),
			})
			require.NoError(t, err)

			// 指标均在[0,1]区间
			for name, value := range map[string]float64{
				"accuracy":  result.Metrics.Accuracy,
				"precision": result.Metrics.Precision,
				"recall":    result.Metrics.Recall,
				"f1_score":  result.Metrics.F1Score,
			} {
				assert.GreaterOrEqual(t, value, 0.0, name)
				assert.LessOrEqual(t, value, 1.0, name)
			}
			require.NotNil(t, result.Metrics.ROCAUC)
			assert.GreaterOrEqual(t, *result.Metrics.ROCAUC, 0.0)
			assert.LessOrEqual(t, *result.Metrics.ROCAUC, 1.0)

			// 合成数据线性可分，任何算法的准确率都应远高于随机
			assert.Greater(t, result.Metrics.Accuracy, 0.8)

			// 数据规模
			assert.Equal(t, 120, result.DatasetSize.Total)
			assert.Equal(t, 96, result.DatasetSize.Train)
			assert.Equal(t, 24, result.DatasetSize.Test)

			// 进度事件单调不减且以100收尾
			require.NotEmpty(t, events)
			last := 0
			for _, e := range events {
				assert.GreaterOrEqual(t, e.Percent, last, "进度不允许回退")
				last = e.Percent
			}
			assert.Equal(t, 100, events[len(events)-1].Percent)
			assert.Equal(t, StageComplete, events[len(events)-1].Stage)

			// 产物文件已落盘
			assert.FileExists(t, result.ModelPath)
			assert.FileExists(t, result.ScalerPath)
		})
	}
}

// TestTrainValidationErrors 测试输入校验错误不产生副作用
func TestTrainValidationErrors(t *testing.T) {
	path := syntheticCSV(t, 10, 10)
	trainer := NewTrainer(nil)

	cases := []struct {
		name string
		req  *TrainRequest
	}{
		{"不支持的算法", &TrainRequest{Algorithm: "DecisionTable", DatasetPath: path, TestSize: 0.2}},
		{"非法测试集比例", &TrainRequest{Algorithm: AlgorithmRandomForest, DatasetPath: path, TestSize: 1.2}},
		{"数据集不存在", &TrainRequest{Algorithm: AlgorithmRandomForest, DatasetPath: "/nonexistent.csv", TestSize: 0.2}},
		{"未知超参数", &TrainRequest{
			Algorithm: AlgorithmRandomForest, DatasetPath: path, TestSize: 0.2,
			Hyperparameters: map[string]interface{}{"tree_count": 5},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := trainer.Run(context.Background(), tc.req)
			assert.Error(t, err)
		})
	}
}

// TestTrainInsufficientSamples 测试类别样本不足时训练失败
func TestTrainInsufficientSamples(t *testing.T) {
	content := "packet_size,inter_arrival_time,packet_rate,connection_duration,failed_logins,label\n" +
		"500,0.02,120,20,0,normal\n" +
		"510,0.03,130,22,0,normal\n" +
		"520,0.02,110,18,1,normal\n" +
		"1600,0.5,900,2,8,attack\n"
	path := writeCSV(t, content)

	trainer := NewTrainer(nil)
	_, err := trainer.Run(context.Background(), &TrainRequest{
		Algorithm:   AlgorithmRandomForest,
		DatasetPath: path,
		TestSize:    0.2,
		ArtifactDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "至少需要2个样本")
}

// TestArtifactRoundTrip 测试模型保存后重新加载，与内存中的原模型预测逐样本一致
func TestArtifactRoundTrip(t *testing.T) {
	path := syntheticCSV(t, 60, 30)
	dir := t.TempDir()

	for _, algorithm := range SupportedAlgorithms() {
		t.Run(algorithm, func(t *testing.T) {
			trainer := NewTrainer(nil)
			result, err := trainer.Run(context.Background(), &TrainRequest{
				Algorithm:       algorithm,
				DatasetPath:     path,
				TestSize:        0.25,
				Hyperparameters: fastHyperparameters(algorithm),
				ArtifactDir:     dir,
				Seed:            DefaultSeed,
			})
			require.NoError(t, err)

			// 所有估计器的随机性都由random_state超参数决定，
			// 按相同种子重走一遍流水线得到与产物等价的内存模型
			dataset, err := LoadCSV(path)
			require.NoError(t, err)
			split, err := TrainTestSplit(dataset.Features, dataset.Labels, 0.25, DefaultSeed)
			require.NoError(t, err)

			freshScaler := &StandardScaler{}
			xTrain := freshScaler.FitTransform(split.XTrain)
			xTest := freshScaler.Transform(split.XTest)

			fresh, err := NewEstimator(algorithm, fastHyperparameters(algorithm))
			require.NoError(t, err)
			require.NoError(t, fresh.Fit(xTrain, split.YTrain))

			loaded, err := LoadModel(result.ModelPath)
			require.NoError(t, err)
			assert.Equal(t, algorithm, loaded.Algorithm())

			loadedScaler, err := LoadScaler(result.ScalerPath)
			require.NoError(t, err)
			scaledByLoaded := loadedScaler.Transform(split.XTest)

			// 内存原模型与重新加载的产物在测试集上预测逐样本一致
			assert.Equal(t, fresh.Predict(xTest), loaded.Predict(scaledByLoaded))
			assert.Equal(t, fresh.PredictProba(xTest), loaded.PredictProba(scaledByLoaded))
		})
	}
}

// TestMergeHyperparameters 测试超参数合并与未知键拒绝
func TestMergeHyperparameters(t *testing.T) {
	merged, err := MergeHyperparameters(AlgorithmRandomForest, map[string]interface{}{
		"n_estimators": 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, merged["n_estimators"])
	assert.Equal(t, 10, merged["max_depth"], "未覆盖的键保留默认值")

	_, err = MergeHyperparameters(AlgorithmRandomForest, map[string]interface{}{
		"unknown_key": 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_key")
}

// TestTrainReproducible 测试固定种子下两次训练指标完全一致
func TestTrainReproducible(t *testing.T) {
	path := syntheticCSV(t, 60, 30)

	run := func(dir string) *TrainResult {
		trainer := NewTrainer(nil)
		result, err := trainer.Run(context.Background(), &TrainRequest{
			Algorithm:       AlgorithmRandomForest,
			DatasetPath:     path,
			TestSize:        0.2,
			Hyperparameters: fastHyperparameters(AlgorithmRandomForest),
			ArtifactDir:     dir,
			Seed:            42,
		})
		require.NoError(t, err)
		return result
	}

	first := run(t.TempDir())
	second := run(t.TempDir())

	assert.Equal(t, first.Metrics.Accuracy, second.Metrics.Accuracy)
	assert.Equal(t, first.Metrics.F1Score, second.Metrics.F1Score)
	assert.Equal(t, first.ConfusionMatrix, second.ConfusionMatrix)
}
