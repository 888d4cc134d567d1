/*
 * @module service/detection_service_test
 * @description 威胁检测服务单元测试
 * @architecture 测试层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 训练小模型产物 -> 激活 -> 执行检测 -> 断言记录、告警与统计
 * @rules 覆盖威胁定级边界、告警生成与处置、记录查询过滤
 * @dependencies github.com/stretchr/testify, service/mlpipeline, testutil
 * @refs service/detection_service.go
 */

package service

import (
	"path/filepath"
	"testing"
	"time"

	"uavsec-service/service/mlpipeline"
	"uavsec-service/service/models"
	"uavsec-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDetectionTest(t *testing.T) (*DetectionService, *testutil.TestDataFactory, *testutil.TestDB) {
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)
	registry := NewRegistryService(tdb.DB)
	return NewDetectionService(tdb.DB, registry), testutil.NewTestDataFactory(tdb.DB), tdb
}

// trainActiveModel 在临时目录训练并激活一个可区分大流量攻击的小模型
func trainActiveModel(t *testing.T, factory *testutil.TestDataFactory) *models.MLModel {
	t.Helper()

	// 特征顺序: packet_size, inter_arrival_time, packet_rate, connection_duration, failed_logins
	x := [][]float64{
		{500, 0.05, 60, 30, 0},
		{520, 0.04, 70, 25, 0},
		{480, 0.06, 65, 40, 1},
		{510, 0.05, 55, 35, 0},
		{1500, 0.001, 900, 2, 8},
		{1480, 0.002, 950, 3, 9},
		{1520, 0.001, 880, 1, 10},
		{1490, 0.002, 920, 2, 7},
	}
	y := []int{0, 0, 0, 0, 1, 1, 1, 1}

	scaler := &mlpipeline.StandardScaler{}
	scaled := scaler.FitTransform(x)

	est, err := mlpipeline.NewEstimator(mlpipeline.AlgorithmLogisticRegression, nil)
	require.NoError(t, err)
	require.NoError(t, est.Fit(scaled, y))

	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.json")
	scalerPath := filepath.Join(dir, "scaler.json")
	require.NoError(t, mlpipeline.SaveModel(modelPath, est, time.Now()))
	require.NoError(t, mlpipeline.SaveScaler(scalerPath, scaler))

	return factory.CreateMLModel(func(m *models.MLModel) {
		m.Name = mlpipeline.AlgorithmLogisticRegression
		m.FilePath = modelPath
		m.ScalerPath = scalerPath
		m.IsActive = true
	})
}

func TestPredictThreatCreatesAlert(t *testing.T) {
	svc, factory, tdb := setupDetectionTest(t)
	model := trainActiveModel(t, factory)

	result, err := svc.Predict(TrafficFeatures{
		PacketSize:         1500,
		InterArrivalTime:   0.001,
		PacketRate:         900,
		ConnectionDuration: 2,
		FailedLogins:       8,
	}, "api", "10.0.0.1", "tester")
	require.NoError(t, err)

	assert.Equal(t, models.PredictionThreat, result.Prediction)
	assert.GreaterOrEqual(t, result.Confidence, 0.5)
	assert.NotEmpty(t, result.AlertID)
	assert.Equal(t, model.Name+"@"+model.Version, result.ModelVersion)

	var record models.DetectionRecord
	require.NoError(t, tdb.DB.First(&record, "id = ?", result.RecordID).Error)
	assert.Equal(t, "api", record.Source)
	assert.Equal(t, "10.0.0.1", record.IPAddress)

	var alert models.Alert
	require.NoError(t, tdb.DB.First(&alert, "id = ?", result.AlertID).Error)
	assert.Equal(t, result.RecordID, alert.DetectionID)
	assert.Equal(t, models.AlertStatusOpen, alert.Status)
	assert.Equal(t, result.ThreatLevel, alert.Severity)
}

func TestPredictNormalNoAlert(t *testing.T) {
	svc, factory, tdb := setupDetectionTest(t)
	trainActiveModel(t, factory)

	result, err := svc.Predict(TrafficFeatures{
		PacketSize:         500,
		InterArrivalTime:   0.05,
		PacketRate:         60,
		ConnectionDuration: 30,
		FailedLogins:       0,
	}, "", "", "")
	require.NoError(t, err)

	assert.Equal(t, models.PredictionNormal, result.Prediction)
	assert.Equal(t, models.ThreatLevelLow, result.ThreatLevel)
	assert.Empty(t, result.AlertID)

	// 来源和创建者落入默认值
	var record models.DetectionRecord
	require.NoError(t, tdb.DB.First(&record, "id = ?", result.RecordID).Error)
	assert.Equal(t, "api", record.Source)
	assert.Equal(t, "system", record.CreatedBy)

	var alertCount int64
	tdb.DB.Model(&models.Alert{}).Count(&alertCount)
	assert.Equal(t, int64(0), alertCount)
}

func TestPredictNoActiveModel(t *testing.T) {
	svc, _, _ := setupDetectionTest(t)

	_, err := svc.Predict(TrafficFeatures{}, "api", "", "")
	assert.ErrorIs(t, err, ErrNoActiveModel)
}

func TestThreatLevelBoundaries(t *testing.T) {
	assert.Equal(t, models.ThreatLevelLow, threatLevelFor(models.PredictionNormal, 0.99))
	assert.Equal(t, models.ThreatLevelCritical, threatLevelFor(models.PredictionThreat, 0.9))
	assert.Equal(t, models.ThreatLevelHigh, threatLevelFor(models.PredictionThreat, 0.75))
	assert.Equal(t, models.ThreatLevelHigh, threatLevelFor(models.PredictionThreat, 0.89))
	assert.Equal(t, models.ThreatLevelMedium, threatLevelFor(models.PredictionThreat, 0.6))
	assert.Equal(t, models.ThreatLevelLow, threatLevelFor(models.PredictionThreat, 0.59))
}

func TestGetDetectionListFilters(t *testing.T) {
	svc, factory, _ := setupDetectionTest(t)

	factory.CreateDetectionRecord()
	factory.CreateDetectionRecord(func(r *models.DetectionRecord) {
		r.Prediction = models.PredictionThreat
		r.ThreatLevel = models.ThreatLevelHigh
		r.Source = "mqtt"
	})

	records, total, err := svc.GetDetectionList(1, 10, DetectionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, records, 2)

	_, total, err = svc.GetDetectionList(1, 10, DetectionFilter{Prediction: models.PredictionThreat})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = svc.GetDetectionList(1, 10, DetectionFilter{Source: "mqtt", ThreatLevel: models.ThreatLevelHigh})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestDeleteDetectionCascadesAlerts(t *testing.T) {
	svc, factory, tdb := setupDetectionTest(t)

	record := factory.CreateDetectionRecord(func(r *models.DetectionRecord) {
		r.Prediction = models.PredictionThreat
	})
	factory.CreateAlert(record.ID)

	require.NoError(t, svc.DeleteDetection(record.ID))

	_, err := svc.GetDetection(record.ID)
	assert.ErrorIs(t, err, ErrDetectionNotFound)

	var alertCount int64
	tdb.DB.Model(&models.Alert{}).Where("detection_id = ?", record.ID).Count(&alertCount)
	assert.Equal(t, int64(0), alertCount)
}

func TestAlertLifecycle(t *testing.T) {
	svc, factory, _ := setupDetectionTest(t)

	record := factory.CreateDetectionRecord(func(r *models.DetectionRecord) {
		r.Prediction = models.PredictionThreat
	})
	alert := factory.CreateAlert(record.ID)

	acked, err := svc.AcknowledgeAlert(alert.ID, "analyst")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)
	assert.Equal(t, "analyst", acked.AssignedTo)
	assert.NotNil(t, acked.AcknowledgedAt)

	resolved, err := svc.ResolveAlert(alert.ID, "误报，巡检流量", true)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusFalsePositive, resolved.Status)
	assert.Equal(t, "误报，巡检流量", resolved.ResolutionNotes)
	assert.NotNil(t, resolved.ResolvedAt)

	_, err = svc.AcknowledgeAlert("no-such-alert", "analyst")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestGetDetectionStats(t *testing.T) {
	svc, factory, _ := setupDetectionTest(t)

	factory.CreateDetectionRecord()
	threat := factory.CreateDetectionRecord(func(r *models.DetectionRecord) {
		r.Prediction = models.PredictionThreat
		r.ThreatLevel = models.ThreatLevelCritical
	})
	factory.CreateAlert(threat.ID)

	stats, err := svc.GetDetectionStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalDetections)
	assert.Equal(t, int64(1), stats.ThreatCount)
	assert.Equal(t, int64(1), stats.NormalCount)
	assert.Equal(t, int64(1), stats.OpenAlerts)
	assert.Equal(t, int64(1), stats.ByThreatLevel[models.ThreatLevelCritical])
}

func TestInvalidateModelCacheReloads(t *testing.T) {
	svc, factory, _ := setupDetectionTest(t)
	trainActiveModel(t, factory)

	features := TrafficFeatures{PacketSize: 500, InterArrivalTime: 0.05, PacketRate: 60, ConnectionDuration: 30}
	_, err := svc.Predict(features, "api", "", "")
	require.NoError(t, err)

	svc.InvalidateModelCache()

	_, err = svc.Predict(features, "api", "", "")
	require.NoError(t, err)
}
