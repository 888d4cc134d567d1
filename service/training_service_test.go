/*
 * @module service/training_service_test
 * @description 模型训练编排服务单元测试
 * @architecture 测试层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 构造CSV数据集 -> 发起训练 -> 轮询任务状态 -> 断言模型落库与产物
 * @rules 覆盖请求校验、端到端训练、版本递增与任务查询
 * @dependencies github.com/stretchr/testify, service/mlpipeline, testutil
 * @refs service/training_service.go
 */

package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"uavsec-service/service/config"
	"uavsec-service/service/mlpipeline"
	"uavsec-service/service/models"
	"uavsec-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTrainingTest(t *testing.T) (*TrainingService, *testutil.TestDataFactory, *testutil.TestDB) {
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)

	configSvc := config.NewConfigService(tdb.DB)
	require.NoError(t, configSvc.SetConfig(models.ConfigKeyArtifactDir, t.TempDir(), ""))

	svc := NewTrainingService(tdb.DB, nil, nil, configSvc)
	return svc, testutil.NewTestDataFactory(tdb.DB), tdb
}

// writeTrainingCSV 生成一个两类可分的小数据集
func writeTrainingCSV(t *testing.T, rowsPerClass int) string {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("packet_size,inter_arrival_time,packet_rate,connection_duration,failed_logins,label\n")
	for i := 0; i < rowsPerClass; i++ {
		sb.WriteString(fmt.Sprintf("%d,0.05,%d,30,0,normal\n", 480+i, 50+i))
		sb.WriteString(fmt.Sprintf("%d,0.001,%d,2,%d,attack\n", 1450+i, 850+i, 5+i%5))
	}

	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestStartTrainingRejectsInvalidRequest(t *testing.T) {
	svc, _, tdb := setupTrainingTest(t)
	dataset := writeTrainingCSV(t, 20)

	// 不支持的算法
	_, err := svc.StartTraining(context.Background(), &CreateTrainingRequest{
		Algorithm:   "DecisionTable",
		DatasetPath: dataset,
	})
	assert.Error(t, err)

	// 非法切分比例
	_, err = svc.StartTraining(context.Background(), &CreateTrainingRequest{
		Algorithm:   mlpipeline.AlgorithmLogisticRegression,
		DatasetPath: dataset,
		TestSize:    1.5,
	})
	assert.Error(t, err)

	// 校验失败不留下任务记录
	var count int64
	tdb.DB.Model(&models.TrainingRun{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestStartTrainingEndToEnd(t *testing.T) {
	svc, _, tdb := setupTrainingTest(t)
	dataset := writeTrainingCSV(t, 30)

	run, err := svc.StartTraining(context.Background(), &CreateTrainingRequest{
		Algorithm:   mlpipeline.AlgorithmLogisticRegression,
		DatasetPath: dataset,
		TestSize:    0.2,
		CreatedBy:   "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TrainingStatusPending, run.Status)

	// 训练在后台goroutine执行，轮询至终态
	require.Eventually(t, func() bool {
		current, getErr := svc.GetTrainingRun(run.ID)
		if getErr != nil {
			return false
		}
		return current.Status == models.TrainingStatusCompleted || current.Status == models.TrainingStatusFailed
	}, 30*time.Second, 100*time.Millisecond)

	finished, err := svc.GetTrainingRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, models.TrainingStatusCompleted, finished.Status, "error: %s", finished.ErrorMessage)
	assert.Equal(t, 100, finished.Progress)
	assert.Equal(t, mlpipeline.StageComplete, finished.Stage)
	require.NotNil(t, finished.ModelID)

	model, err := NewRegistryService(tdb.DB).GetModel(*finished.ModelID)
	require.NoError(t, err)
	assert.Equal(t, mlpipeline.AlgorithmLogisticRegression, model.Name)
	assert.Equal(t, "1.0.0", model.Version)
	assert.Equal(t, "tester", model.TrainedBy)
	assert.Equal(t, 60, model.TrainingDatasetSize)
	assert.Equal(t, 48, model.TrainSampleCount)
	assert.Equal(t, 12, model.TestSampleCount)

	// 五项指标都在[0,1]
	for name, metric := range map[string]*float64{
		"accuracy": model.Accuracy, "precision": model.Precision,
		"recall": model.Recall, "f1_score": model.F1Score, "roc_auc": model.ROCAUC,
	} {
		require.NotNil(t, metric, name)
		assert.GreaterOrEqual(t, *metric, 0.0, name)
		assert.LessOrEqual(t, *metric, 1.0, name)
	}

	// 模型与缩放器产物都已写盘
	assert.FileExists(t, model.FilePath)
	assert.FileExists(t, model.ScalerPath)

	var auditCount int64
	tdb.DB.Model(&models.AuditLog{}).Where("action = ?", models.AuditActionModelTraining).Count(&auditCount)
	assert.Equal(t, int64(1), auditCount)
}

func TestTrainingFailureMarksRun(t *testing.T) {
	svc, _, _ := setupTrainingTest(t)

	// 数据集只有单一类别，切分校验在训练阶段失败
	var sb strings.Builder
	sb.WriteString("packet_size,inter_arrival_time,packet_rate,connection_duration,failed_logins,label\n")
	for i := 0; i < 20; i++ {
		sb.WriteString("500,0.05,60,30,0,normal\n")
	}
	path := filepath.Join(t.TempDir(), "one_class.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	run, err := svc.StartTraining(context.Background(), &CreateTrainingRequest{
		Algorithm:   mlpipeline.AlgorithmLogisticRegression,
		DatasetPath: path,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, getErr := svc.GetTrainingRun(run.ID)
		return getErr == nil && current.Status == models.TrainingStatusFailed
	}, 30*time.Second, 100*time.Millisecond)

	failed, err := svc.GetTrainingRun(run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, failed.ErrorMessage)
	assert.Nil(t, failed.ModelID)
}

func TestGetTrainingRunNotFound(t *testing.T) {
	svc, _, _ := setupTrainingTest(t)

	_, err := svc.GetTrainingRun("no-such-run")
	assert.ErrorIs(t, err, ErrTrainingRunNotFound)
}

func TestGetTrainingRunListFilters(t *testing.T) {
	svc, factory, _ := setupTrainingTest(t)

	factory.CreateTrainingRun()
	factory.CreateTrainingRun(func(r *models.TrainingRun) {
		r.Status = models.TrainingStatusCompleted
		r.Algorithm = mlpipeline.AlgorithmSVM
	})

	_, total, err := svc.GetTrainingRunList(1, 10, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = svc.GetTrainingRunList(1, 10, models.TrainingStatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	runs, total, err := svc.GetTrainingRunList(1, 10, "", mlpipeline.AlgorithmSVM)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, mlpipeline.AlgorithmSVM, runs[0].Algorithm)
}

func TestNextVersionIncrements(t *testing.T) {
	svc, factory, _ := setupTrainingTest(t)

	assert.Equal(t, "1.0.0", svc.nextVersion("RandomForest"))

	factory.CreateMLModel()
	factory.CreateMLModel()
	assert.Equal(t, "1.0.2", svc.nextVersion("RandomForest"))
}

func TestGetSupportedAlgorithms(t *testing.T) {
	svc, _, _ := setupTrainingTest(t)

	algorithms := svc.GetSupportedAlgorithms()
	require.Len(t, algorithms, len(mlpipeline.SupportedAlgorithms()))
	for _, entry := range algorithms {
		assert.NotEmpty(t, entry["algorithm"])
		assert.NotNil(t, entry["hyperparameters"])
	}
}
