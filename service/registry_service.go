/*
 * @module service/registry_service
 * @description 模型注册表服务，提供已训练模型的查询、激活、删除与横向对比
 * @architecture 分层架构 - 服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 模型落库 -> 激活(同名互斥) -> 服务于检测 -> 删除(记录+产物)
 * @rules 同名模型同一时刻最多一个激活，删除模型时一并清理磁盘产物
 * @dependencies gorm.io/gorm, service/models
 * @refs api/controllers/model_controller.go, service/detection_service.go
 */

package service

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
	"uavsec-service/service/models"

	"gorm.io/gorm"
)

// ErrModelNotFound 模型不存在
var ErrModelNotFound = errors.New("模型不存在")

// ErrNoActiveModel 没有激活的模型
var ErrNoActiveModel = errors.New("没有激活的模型")

// RegistryService 模型注册表服务
type RegistryService struct {
	db *gorm.DB
}

// NewRegistryService 创建模型注册表服务
func NewRegistryService(db *gorm.DB) *RegistryService {
	return &RegistryService{db: db}
}

// GetModelList 分页查询模型列表
func (s *RegistryService) GetModelList(page, pageSize int, name string, isActive *bool) ([]models.MLModel, int64, error) {
	var list []models.MLModel
	var total int64

	query := s.db.Model(&models.MLModel{})
	if name != "" {
		query = query.Where("name = ?", name)
	}
	if isActive != nil {
		query = query.Where("is_active = ?", *isActive)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&list).Error
	return list, total, err
}

// GetModel 查询模型详情
func (s *RegistryService) GetModel(modelID string) (*models.MLModel, error) {
	var model models.MLModel
	if err := s.db.First(&model, "id = ?", modelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, err
	}
	return &model, nil
}

// GetActiveModel 查询当前激活的模型，多个激活时取最近更新的
func (s *RegistryService) GetActiveModel() (*models.MLModel, error) {
	var model models.MLModel
	err := s.db.Where("is_active = ?", true).Order("updated_at DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveModel
		}
		return nil, err
	}
	return &model, nil
}

// ActivateModel 激活模型，同名模型在同一事务内取消激活
func (s *RegistryService) ActivateModel(modelID, operator string) (*models.MLModel, error) {
	var model models.MLModel

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", modelID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrModelNotFound
			}
			return err
		}

		// 同名模型先全部取消激活
		if err := tx.Model(&models.MLModel{}).
			Where("name = ? AND is_active = ?", model.Name, true).
			Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error; err != nil {
			return fmt.Errorf("取消同名模型激活失败: %w", err)
		}

		if err := tx.Model(&model).
			Updates(map[string]interface{}{"is_active": true, "updated_at": time.Now()}).Error; err != nil {
			return fmt.Errorf("激活模型失败: %w", err)
		}
		model.IsActive = true

		audit := &models.AuditLog{
			UserName: operator,
			Action:   models.AuditActionModelActivation,
			Details:  models.JSONB{"model_id": model.ID, "name": model.Name, "version": model.Version},
		}
		return tx.Create(audit).Error
	})
	if err != nil {
		return nil, err
	}

	return &model, nil
}

// DeleteModel 删除模型记录与磁盘产物
// 产物删除失败只记录日志，不回滚数据库删除
func (s *RegistryService) DeleteModel(modelID, operator string) error {
	var model models.MLModel

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", modelID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrModelNotFound
			}
			return err
		}

		if err := tx.Delete(&models.MLModel{}, "id = ?", modelID).Error; err != nil {
			return fmt.Errorf("删除模型记录失败: %w", err)
		}

		audit := &models.AuditLog{
			UserName: operator,
			Action:   models.AuditActionModelDeletion,
			Details:  models.JSONB{"model_id": model.ID, "name": model.Name, "version": model.Version},
		}
		return tx.Create(audit).Error
	})
	if err != nil {
		return err
	}

	for _, path := range []string{model.FilePath, model.ScalerPath} {
		if path == "" {
			continue
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			slog.Warn("删除模型产物文件失败", "path", path, "error", removeErr)
		}
	}

	return nil
}

// ModelComparison 模型对比结果
type ModelComparison struct {
	Models []models.MLModel   `json:"models"`
	Best   map[string]string  `json:"best"`   // 指标名 -> 最优模型ID
	Values map[string]float64 `json:"values"` // 指标名 -> 最优值
}

// CompareModels 横向对比多个模型的评估指标
// 每项指标取最大值，出现并列时保留先出现的模型
func (s *RegistryService) CompareModels(modelIDs []string) (*ModelComparison, error) {
	if len(modelIDs) < 2 {
		return nil, fmt.Errorf("模型对比至少需要2个模型")
	}

	var list []models.MLModel
	if err := s.db.Where("id IN ?", modelIDs).Find(&list).Error; err != nil {
		return nil, err
	}
	if len(list) != len(modelIDs) {
		return nil, ErrModelNotFound
	}

	// 按请求顺序排列，保证并列时先出现者胜出
	byID := make(map[string]models.MLModel, len(list))
	for _, m := range list {
		byID[m.ID] = m
	}
	ordered := make([]models.MLModel, 0, len(modelIDs))
	for _, id := range modelIDs {
		ordered = append(ordered, byID[id])
	}

	comparison := &ModelComparison{
		Models: ordered,
		Best:   make(map[string]string),
		Values: make(map[string]float64),
	}

	metricOf := func(m models.MLModel, metric string) *float64 {
		switch metric {
		case "accuracy":
			return m.Accuracy
		case "precision":
			return m.Precision
		case "recall":
			return m.Recall
		case "f1_score":
			return m.F1Score
		case "roc_auc":
			return m.ROCAUC
		}
		return nil
	}

	for _, metric := range []string{"accuracy", "precision", "recall", "f1_score", "roc_auc"} {
		for _, m := range ordered {
			value := metricOf(m, metric)
			if value == nil {
				continue
			}
			best, exists := comparison.Values[metric]
			if !exists || *value > best {
				comparison.Values[metric] = *value
				comparison.Best[metric] = m.ID
			}
		}
	}

	return comparison, nil
}
