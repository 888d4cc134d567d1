/*
 * @module service/registry_service_test
 * @description 模型注册表服务单元测试
 * @architecture 测试层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 构造测试模型 -> 执行注册表操作 -> 断言激活互斥、删除与对比结果
 * @rules 覆盖同名激活互斥、审计日志写入与指标并列取先出现者
 * @dependencies github.com/stretchr/testify, testutil
 * @refs service/registry_service.go
 */

package service

import (
	"os"
	"path/filepath"
	"testing"

	"uavsec-service/service/models"
	"uavsec-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRegistryTest(t *testing.T) (*RegistryService, *testutil.TestDataFactory, *testutil.TestDB) {
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)
	return NewRegistryService(tdb.DB), testutil.NewTestDataFactory(tdb.DB), tdb
}

func TestGetModelListFilters(t *testing.T) {
	svc, factory, _ := setupRegistryTest(t)

	factory.CreateMLModel()
	factory.CreateMLModel(func(m *models.MLModel) { m.Name = "LogisticRegression" })
	factory.CreateMLModel(func(m *models.MLModel) { m.IsActive = true })

	list, total, err := svc.GetModelList(1, 10, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 3)

	list, total, err = svc.GetModelList(1, 10, "LogisticRegression", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "LogisticRegression", list[0].Name)

	active := true
	_, total, err = svc.GetModelList(1, 10, "", &active)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestGetModelNotFound(t *testing.T) {
	svc, _, _ := setupRegistryTest(t)

	_, err := svc.GetModel("no-such-model")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestActivateModelDeactivatesSameName(t *testing.T) {
	svc, factory, tdb := setupRegistryTest(t)

	old := factory.CreateMLModel(func(m *models.MLModel) { m.IsActive = true })
	next := factory.CreateMLModel()

	activated, err := svc.ActivateModel(next.ID, "tester")
	require.NoError(t, err)
	assert.True(t, activated.IsActive)

	// 同名旧模型被取消激活
	var reloaded models.MLModel
	require.NoError(t, tdb.DB.First(&reloaded, "id = ?", old.ID).Error)
	assert.False(t, reloaded.IsActive)

	// 激活产生审计日志
	var auditCount int64
	tdb.DB.Model(&models.AuditLog{}).Where("action = ?", models.AuditActionModelActivation).Count(&auditCount)
	assert.Equal(t, int64(1), auditCount)
}

func TestActivateModelKeepsOtherAlgorithmActive(t *testing.T) {
	svc, factory, tdb := setupRegistryTest(t)

	other := factory.CreateMLModel(func(m *models.MLModel) {
		m.Name = "LogisticRegression"
		m.IsActive = true
	})
	rf := factory.CreateMLModel()

	_, err := svc.ActivateModel(rf.ID, "tester")
	require.NoError(t, err)

	// 不同名模型的激活状态不受影响
	var reloaded models.MLModel
	require.NoError(t, tdb.DB.First(&reloaded, "id = ?", other.ID).Error)
	assert.True(t, reloaded.IsActive)
}

func TestGetActiveModelNone(t *testing.T) {
	svc, factory, _ := setupRegistryTest(t)

	factory.CreateMLModel()

	_, err := svc.GetActiveModel()
	assert.ErrorIs(t, err, ErrNoActiveModel)
}

func TestDeleteModel(t *testing.T) {
	svc, factory, tdb := setupRegistryTest(t)

	model := factory.CreateMLModel(func(m *models.MLModel) {
		m.FilePath = "" // 无磁盘产物
	})

	require.NoError(t, svc.DeleteModel(model.ID, "tester"))

	_, err := svc.GetModel(model.ID)
	assert.ErrorIs(t, err, ErrModelNotFound)

	var auditCount int64
	tdb.DB.Model(&models.AuditLog{}).Where("action = ?", models.AuditActionModelDeletion).Count(&auditCount)
	assert.Equal(t, int64(1), auditCount)

	assert.ErrorIs(t, svc.DeleteModel(model.ID, "tester"), ErrModelNotFound)
}

func TestDeleteModelRemovesArtifacts(t *testing.T) {
	svc, factory, _ := setupRegistryTest(t)

	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.json")
	scalerPath := filepath.Join(dir, "scaler.json")
	require.NoError(t, os.WriteFile(modelPath, []byte(`{"algorithm":"RandomForest"}`), 0o644))
	require.NoError(t, os.WriteFile(scalerPath, []byte(`{"means":[0]}`), 0o644))

	model := factory.CreateMLModel(func(m *models.MLModel) {
		m.FilePath = modelPath
		m.ScalerPath = scalerPath
	})

	require.NoError(t, svc.DeleteModel(model.ID, "tester"))

	// 模型与缩放器产物随记录一并清理
	assert.NoFileExists(t, modelPath)
	assert.NoFileExists(t, scalerPath)

	assert.ErrorIs(t, svc.DeleteModel(model.ID, "tester"), ErrModelNotFound)
}

func TestCompareModels(t *testing.T) {
	svc, factory, _ := setupRegistryTest(t)

	accA, f1A := 0.90, 0.88
	accB, f1B := 0.95, 0.91
	a := factory.CreateMLModel(func(m *models.MLModel) {
		m.Accuracy = &accA
		m.F1Score = &f1A
	})
	b := factory.CreateMLModel(func(m *models.MLModel) {
		m.Name = "LogisticRegression"
		m.Accuracy = &accB
		m.F1Score = &f1B
	})

	comparison, err := svc.CompareModels([]string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, comparison.Models, 2)
	assert.Equal(t, b.ID, comparison.Best["accuracy"])
	assert.Equal(t, b.ID, comparison.Best["f1_score"])
	assert.InDelta(t, 0.95, comparison.Values["accuracy"], 1e-9)

	// 请求顺序决定返回顺序
	assert.Equal(t, a.ID, comparison.Models[0].ID)
	assert.Equal(t, b.ID, comparison.Models[1].ID)
}

func TestCompareModelsTieKeepsFirst(t *testing.T) {
	svc, factory, _ := setupRegistryTest(t)

	acc := 0.9
	first := factory.CreateMLModel(func(m *models.MLModel) { m.Accuracy = &acc })
	second := factory.CreateMLModel(func(m *models.MLModel) { m.Accuracy = &acc })

	comparison, err := svc.CompareModels([]string{first.ID, second.ID})
	require.NoError(t, err)
	// 并列时先出现的模型胜出
	assert.Equal(t, first.ID, comparison.Best["accuracy"])
}

func TestCompareModelsValidation(t *testing.T) {
	svc, factory, _ := setupRegistryTest(t)

	model := factory.CreateMLModel()

	_, err := svc.CompareModels([]string{model.ID})
	assert.Error(t, err)

	_, err = svc.CompareModels([]string{model.ID, "no-such-model"})
	assert.ErrorIs(t, err, ErrModelNotFound)
}
