/*
 * @module service/models/audit
 * @description 审计日志模型，记录数据集上传、训练、模型激活删除等关键操作
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference dev_docs/model.md
 * @stateFlow 操作触发 -> 审计记录落库 -> 定期清理
 * @rules 审计日志为追加模式，仅由清理服务按保留策略删除
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs dev_docs/requirements.md
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 审计操作类型常量
const (
	AuditActionDatasetUpload   = "dataset_upload"
	AuditActionModelTraining   = "model_training"
	AuditActionModelActivation = "model_activation"
	AuditActionModelDeletion   = "model_deletion"
	AuditActionDetection       = "detection"
)

// AuditLog 审计日志模型
type AuditLog struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserName  string    `json:"user_name" gorm:"not null;size:100;index"`
	Action    string    `json:"action" gorm:"not null;size:100;index"`
	Details   JSONB     `json:"details" gorm:"type:jsonb"`
	IPAddress string    `json:"ip_address" gorm:"size:50"`
	UserAgent string    `json:"user_agent" gorm:"size:255"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
