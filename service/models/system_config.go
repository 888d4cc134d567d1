/*
 * @module service/models/system_config
 * @description 系统配置模型，用于存储应用程序配置信息
 * @architecture 数据模型层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 配置存储 -> 配置读取 -> 配置更新
 * @rules 确保配置数据的安全性和一致性
 * @dependencies gorm.io/gorm
 * @refs dev_docs/requirements.md
 */

package models

import (
	"time"
)

// 系统配置键常量
const (
	ConfigKeyDetectionRetentionDays   = "detection.retention_days"
	ConfigKeyAuditLogRetentionDays    = "audit_log.retention_days"
	ConfigKeyTrainingRunRetentionDays = "training_run.retention_days"
	ConfigKeyArtifactDir              = "training.artifact_dir"
	ConfigKeyDatasetDir               = "training.dataset_dir"
)

// SystemConfig 系统配置模型
type SystemConfig struct {
	ID          string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	Key         string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_config_key_env" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Environment string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_config_key_env" json:"environment"`
	Version     string    `gorm:"type:varchar(20)" json:"version"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (SystemConfig) TableName() string {
	return "system_configs"
}
