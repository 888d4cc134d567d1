/*
 * @module service/detection_service
 * @description 威胁检测服务，使用激活模型对UAV流量特征做实时预测并维护检测记录与告警
 * @architecture 分层架构 - 服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 特征输入 -> 标准化 -> 模型预测 -> 威胁定级 -> 记录落库 -> 告警生成
 * @rules 预测使用当前激活模型，模型产物按模型ID缓存，激活变更后自动换新
 * @dependencies gorm.io/gorm, service/mlpipeline, service/models, service/monitoring
 * @refs api/controllers/detection_controller.go, service/registry_service.go
 */

package service

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"uavsec-service/service/mlpipeline"
	"uavsec-service/service/models"
	"uavsec-service/service/monitoring"
	"uavsec-service/service/telemetry"

	"gorm.io/gorm"
)

// ErrDetectionNotFound 检测记录不存在
var ErrDetectionNotFound = errors.New("检测记录不存在")

// ErrAlertNotFound 告警不存在
var ErrAlertNotFound = errors.New("告警不存在")

// loadedModel 已加载到内存的模型产物
type loadedModel struct {
	modelID   string
	version   string
	name      string
	estimator mlpipeline.Estimator
	scaler    *mlpipeline.StandardScaler
}

// DetectionService 威胁检测服务
type DetectionService struct {
	db       *gorm.DB
	registry *RegistryService

	mu     sync.RWMutex
	cached *loadedModel
}

// NewDetectionService 创建威胁检测服务
func NewDetectionService(db *gorm.DB, registry *RegistryService) *DetectionService {
	return &DetectionService{db: db, registry: registry}
}

// TrafficFeatures UAV流量特征输入
type TrafficFeatures struct {
	PacketSize         float64 `json:"packet_size"`
	InterArrivalTime   float64 `json:"inter_arrival_time"`
	PacketRate         float64 `json:"packet_rate"`
	ConnectionDuration float64 `json:"connection_duration"`
	FailedLogins       float64 `json:"failed_logins"`
}

// vector 按训练特征顺序展开
func (f TrafficFeatures) vector() []float64 {
	return []float64{f.PacketSize, f.InterArrivalTime, f.PacketRate, f.ConnectionDuration, f.FailedLogins}
}

// PredictionResult 单次检测结果
type PredictionResult struct {
	RecordID     string  `json:"record_id"`
	Prediction   string  `json:"prediction"`
	Confidence   float64 `json:"confidence"`
	ThreatLevel  string  `json:"threat_level"`
	ModelVersion string  `json:"model_version"`
	AlertID      string  `json:"alert_id,omitempty"`
}

// Predict 对一组流量特征执行威胁检测并落库
func (s *DetectionService) Predict(features TrafficFeatures, source, ipAddress, createdBy string) (*PredictionResult, error) {
	loaded, err := s.activeModel()
	if err != nil {
		return nil, err
	}

	row := loaded.scaler.TransformRow(features.vector())
	proba := loaded.estimator.PredictProba([][]float64{row})[0]

	prediction := models.PredictionNormal
	confidence := 1 - proba
	if proba >= 0.5 {
		prediction = models.PredictionThreat
		confidence = proba
	}

	threatLevel := threatLevelFor(prediction, confidence)

	if source == "" {
		source = "api"
	}
	if createdBy == "" {
		createdBy = "system"
	}

	record := &models.DetectionRecord{
		Timestamp:          time.Now(),
		PacketSize:         features.PacketSize,
		InterArrivalTime:   features.InterArrivalTime,
		PacketRate:         features.PacketRate,
		ConnectionDuration: features.ConnectionDuration,
		FailedLogins:       features.FailedLogins,
		Prediction:         prediction,
		Confidence:         confidence,
		ThreatLevel:        threatLevel,
		ModelVersion:       fmt.Sprintf("%s@%s", loaded.name, loaded.version),
		Source:             source,
		IPAddress:          ipAddress,
		CreatedBy:          createdBy,
	}

	var alertID string
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("保存检测记录失败: %w", err)
		}

		// 威胁判定才产生告警
		if prediction == models.PredictionThreat {
			alert := &models.Alert{
				DetectionID: record.ID,
				Severity:    threatLevel,
				Status:      models.AlertStatusOpen,
			}
			if err := tx.Create(alert).Error; err != nil {
				return fmt.Errorf("创建告警失败: %w", err)
			}
			alertID = alert.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.IncPredictionTotal(source, prediction)
	if alertID != "" {
		monitoring.IncAlertTotal(threatLevel)
	}

	return &PredictionResult{
		RecordID:     record.ID,
		Prediction:   prediction,
		Confidence:   confidence,
		ThreatLevel:  threatLevel,
		ModelVersion: record.ModelVersion,
		AlertID:      alertID,
	}, nil
}

// DetectTelemetry 实现telemetry.Detector，MQTT遥测消息走同一条检测链路
func (s *DetectionService) DetectTelemetry(msg telemetry.TelemetryMessage) (interface{}, string, error) {
	features := TrafficFeatures{
		PacketSize:         msg.PacketSize,
		InterArrivalTime:   msg.InterArrivalTime,
		PacketRate:         msg.PacketRate,
		ConnectionDuration: msg.ConnectionDuration,
		FailedLogins:       msg.FailedLogins,
	}

	result, err := s.Predict(features, "mqtt", "", "telemetry")
	if err != nil {
		return nil, "", err
	}
	return result, result.RecordID, nil
}

// threatLevelFor 依据预测结果与置信度映射威胁等级
func threatLevelFor(prediction string, confidence float64) string {
	if prediction == models.PredictionNormal {
		return models.ThreatLevelLow
	}
	switch {
	case confidence >= 0.9:
		return models.ThreatLevelCritical
	case confidence >= 0.75:
		return models.ThreatLevelHigh
	case confidence >= 0.6:
		return models.ThreatLevelMedium
	default:
		return models.ThreatLevelLow
	}
}

// activeModel 返回当前激活模型的内存副本，模型变更时重新加载
func (s *DetectionService) activeModel() (*loadedModel, error) {
	active, err := s.registry.GetActiveModel()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()

	if cached != nil && cached.modelID == active.ID {
		return cached, nil
	}

	estimator, err := mlpipeline.LoadModel(active.FilePath)
	if err != nil {
		return nil, fmt.Errorf("加载模型产物失败: %w", err)
	}
	scaler, err := mlpipeline.LoadScaler(active.ScalerPath)
	if err != nil {
		return nil, fmt.Errorf("加载标准化器失败: %w", err)
	}

	loaded := &loadedModel{
		modelID:   active.ID,
		version:   active.Version,
		name:      active.Name,
		estimator: estimator,
		scaler:    scaler,
	}

	s.mu.Lock()
	s.cached = loaded
	s.mu.Unlock()

	return loaded, nil
}

// InvalidateModelCache 使内存中的模型副本失效，下次预测时重新加载
func (s *DetectionService) InvalidateModelCache() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// FeatureImportance 特征重要性条目
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// GetFeatureImportances 返回激活模型的特征重要性，仅随机森林支持
func (s *DetectionService) GetFeatureImportances() ([]FeatureImportance, error) {
	loaded, err := s.activeModel()
	if err != nil {
		return nil, err
	}

	forest, ok := loaded.estimator.(*mlpipeline.RandomForest)
	if !ok {
		return nil, fmt.Errorf("算法 %s 不支持特征重要性", loaded.estimator.Algorithm())
	}

	importances := forest.FeatureImportances
	result := make([]FeatureImportance, 0, len(importances))
	for i, name := range mlpipeline.FeatureColumns {
		if i >= len(importances) {
			break
		}
		result = append(result, FeatureImportance{Feature: name, Importance: importances[i]})
	}
	return result, nil
}

// DetectionFilter 检测记录查询条件
type DetectionFilter struct {
	Prediction  string
	ThreatLevel string
	Source      string
	StartTime   *time.Time
	EndTime     *time.Time
}

// GetDetectionList 分页查询检测记录
func (s *DetectionService) GetDetectionList(page, pageSize int, filter DetectionFilter) ([]models.DetectionRecord, int64, error) {
	var records []models.DetectionRecord
	var total int64

	query := s.db.Model(&models.DetectionRecord{})
	if filter.Prediction != "" {
		query = query.Where("prediction = ?", filter.Prediction)
	}
	if filter.ThreatLevel != "" {
		query = query.Where("threat_level = ?", filter.ThreatLevel)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}
	if filter.StartTime != nil {
		query = query.Where("timestamp >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("timestamp <= ?", *filter.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("timestamp DESC").Offset(offset).Limit(pageSize).Find(&records).Error
	return records, total, err
}

// GetDetection 查询检测记录详情，含关联告警
func (s *DetectionService) GetDetection(recordID string) (*models.DetectionRecord, error) {
	var record models.DetectionRecord
	if err := s.db.Preload("Alerts").First(&record, "id = ?", recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDetectionNotFound
		}
		return nil, err
	}
	return &record, nil
}

// DeleteDetection 删除检测记录及其关联告警
func (s *DetectionService) DeleteDetection(recordID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var record models.DetectionRecord
		if err := tx.First(&record, "id = ?", recordID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDetectionNotFound
			}
			return err
		}

		if err := tx.Delete(&models.Alert{}, "detection_id = ?", recordID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.DetectionRecord{}, "id = ?", recordID).Error
	})
}

// === 告警处置 ===

// GetAlertList 分页查询告警列表
func (s *DetectionService) GetAlertList(page, pageSize int, status, severity string) ([]models.Alert, int64, error) {
	var alerts []models.Alert
	var total int64

	query := s.db.Model(&models.Alert{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if severity != "" {
		query = query.Where("severity = ?", severity)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Preload("Detection").Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&alerts).Error
	return alerts, total, err
}

// AcknowledgeAlert 确认告警
func (s *DetectionService) AcknowledgeAlert(alertID, assignedTo string) (*models.Alert, error) {
	return s.updateAlert(alertID, map[string]interface{}{
		"status":          models.AlertStatusAcknowledged,
		"assigned_to":     assignedTo,
		"acknowledged_at": time.Now(),
	})
}

// ResolveAlert 解决告警，falsePositive为真时标记为误报
func (s *DetectionService) ResolveAlert(alertID, notes string, falsePositive bool) (*models.Alert, error) {
	status := models.AlertStatusResolved
	if falsePositive {
		status = models.AlertStatusFalsePositive
	}
	return s.updateAlert(alertID, map[string]interface{}{
		"status":           status,
		"resolved_at":      time.Now(),
		"resolution_notes": notes,
	})
}

// updateAlert 更新告警字段并返回最新记录
func (s *DetectionService) updateAlert(alertID string, updates map[string]interface{}) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.First(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	if err := s.db.Model(&alert).Updates(updates).Error; err != nil {
		return nil, err
	}

	if err := s.db.First(&alert, "id = ?", alertID).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// DetectionStats 检测统计概览
type DetectionStats struct {
	TotalDetections int64            `json:"total_detections"`
	ThreatCount     int64            `json:"threat_count"`
	NormalCount     int64            `json:"normal_count"`
	ByThreatLevel   map[string]int64 `json:"by_threat_level"`
	OpenAlerts      int64            `json:"open_alerts"`
}

// GetDetectionStats 聚合检测统计，用于仪表盘
func (s *DetectionService) GetDetectionStats() (*DetectionStats, error) {
	stats := &DetectionStats{ByThreatLevel: make(map[string]int64)}

	if err := s.db.Model(&models.DetectionRecord{}).Count(&stats.TotalDetections).Error; err != nil {
		return nil, err
	}
	s.db.Model(&models.DetectionRecord{}).Where("prediction = ?", models.PredictionThreat).Count(&stats.ThreatCount)
	s.db.Model(&models.DetectionRecord{}).Where("prediction = ?", models.PredictionNormal).Count(&stats.NormalCount)
	s.db.Model(&models.Alert{}).Where("status = ?", models.AlertStatusOpen).Count(&stats.OpenAlerts)

	type levelCount struct {
		ThreatLevel string
		Count       int64
	}
	var levels []levelCount
	s.db.Model(&models.DetectionRecord{}).
		Select("threat_level, count(*) as count").
		Where("prediction = ?", models.PredictionThreat).
		Group("threat_level").
		Scan(&levels)
	for _, lc := range levels {
		stats.ByThreatLevel[lc.ThreatLevel] = lc.Count
	}

	return stats, nil
}
