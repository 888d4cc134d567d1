/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference service/models
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"uavsec-service/service/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.MLModel{},
		&models.TrainingRun{},
		&models.DetectionRecord{},
		&models.Alert{},
		&models.SSEEvent{},
		&models.SSEConnection{},
		&models.AuditLog{},
		&models.SystemConfig{},
		&models.APIKey{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	// 清空所有表的数据
	tables := []string{
		"alerts",
		"detection_records",
		"training_runs",
		"ml_models",
		"sse_events",
		"sse_connections",
		"audit_logs",
		"system_configs",
		"api_keys",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// MLModelOption 模型选项函数类型
type MLModelOption func(*models.MLModel)

// CreateMLModel 创建测试模型
func (f *TestDataFactory) CreateMLModel(opts ...MLModelOption) *models.MLModel {
	accuracy := 0.95
	f1 := 0.94
	model := &models.MLModel{
		ID:        generateID("model"),
		Name:      "RandomForest",
		Version:   "1.0." + generateSuffix(),
		Accuracy:  &accuracy,
		F1Score:   &f1,
		FilePath:  "/tmp/test_model.json",
		IsActive:  false,
		TrainedBy: "test",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(model)
	}

	err := f.DB.Create(model).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test ml model: %v", err))
	}

	return model
}

// TrainingRunOption 训练任务选项函数类型
type TrainingRunOption func(*models.TrainingRun)

// CreateTrainingRun 创建测试训练任务
func (f *TestDataFactory) CreateTrainingRun(opts ...TrainingRunOption) *models.TrainingRun {
	run := &models.TrainingRun{
		ID:          generateID("run"),
		Algorithm:   "RandomForest",
		DatasetPath: "/tmp/test_dataset.csv",
		TestSize:    0.2,
		Status:      models.TrainingStatusPending,
		CreatedBy:   "test",
		CreatedAt:   time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(run)
	}

	err := f.DB.Create(run).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test training run: %v", err))
	}

	return run
}

// DetectionRecordOption 检测记录选项函数类型
type DetectionRecordOption func(*models.DetectionRecord)

// CreateDetectionRecord 创建测试检测记录
func (f *TestDataFactory) CreateDetectionRecord(opts ...DetectionRecordOption) *models.DetectionRecord {
	record := &models.DetectionRecord{
		ID:                 generateID("det"),
		Timestamp:          time.Now(),
		PacketSize:         512.0,
		InterArrivalTime:   0.02,
		PacketRate:         80.0,
		ConnectionDuration: 12.5,
		FailedLogins:       0.0,
		Prediction:         models.PredictionNormal,
		Confidence:         0.92,
		ThreatLevel:        models.ThreatLevelLow,
		ModelVersion:       "RandomForest@1.0.0",
		Source:             "api",
		CreatedBy:          "test",
	}

	// 应用选项
	for _, opt := range opts {
		opt(record)
	}

	err := f.DB.Create(record).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test detection record: %v", err))
	}

	return record
}

// AlertOption 告警选项函数类型
type AlertOption func(*models.Alert)

// CreateAlert 创建测试告警
func (f *TestDataFactory) CreateAlert(detectionID string, opts ...AlertOption) *models.Alert {
	alert := &models.Alert{
		ID:          generateID("alert"),
		DetectionID: detectionID,
		Severity:    models.ThreatLevelHigh,
		Status:      models.AlertStatusOpen,
		CreatedAt:   time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(alert)
	}

	err := f.DB.Create(alert).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test alert: %v", err))
	}

	return alert
}

// APIKeyOption API密钥选项函数类型
type APIKeyOption func(*models.APIKey)

// CreateAPIKey 创建测试API密钥
func (f *TestDataFactory) CreateAPIKey(opts ...APIKeyOption) *models.APIKey {
	apiKey := &models.APIKey{
		ID:        generateID("key"),
		Name:      "测试API密钥",
		Prefix:    "testpfx",
		KeyHash:   "test_key_hash_" + generateSuffix(),
		IsActive:  true,
		CreatedBy: "test",
		CreatedAt: time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(apiKey)
	}

	err := f.DB.Create(apiKey).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test api key: %v", err))
	}

	return apiKey
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}

// TestConfig 测试配置
type TestConfig struct {
	Database struct {
		Driver string
		DSN    string
	}
	Timeout time.Duration
	Cleanup bool
}

// DefaultTestConfig 默认测试配置
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		Database: struct {
			Driver string
			DSN    string
		}{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
		Timeout: 30 * time.Second,
		Cleanup: true,
	}
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// AssertJSONResponse 断言JSON响应
func (h *HTTPTestHelper) AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedBody interface{}) {
	assert.Equal(t, expectedStatus, w.Code)

	if expectedBody != nil {
		var actualBody interface{}
		err := json.Unmarshal(w.Body.Bytes(), &actualBody)
		assert.NoError(t, err)

		expectedJSON, _ := json.Marshal(expectedBody)
		actualJSON, _ := json.Marshal(actualBody)

		assert.JSONEq(t, string(expectedJSON), string(actualJSON))
	}
}
