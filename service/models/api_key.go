/*
 * @module service/models/api_key
 * @description API密钥模型，密钥仅保存bcrypt散列，明文只在创建时返回一次
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 密钥创建 -> 散列落库 -> 请求鉴权 -> 吊销
 * @rules 密钥散列不可逆，鉴权时逐条比对前缀匹配的记录
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs api/middleware/api_key_auth.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey API密钥模型
type APIKey struct {
	ID        string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string `json:"name" gorm:"not null;size:100"`            // 密钥用途描述
	Prefix    string `json:"prefix" gorm:"not null;size:12;index"`     // 密钥前缀，用于快速定位
	KeyHash   string `json:"-" gorm:"not null;size:100"`               // bcrypt散列
	CreatedBy string `json:"created_by" gorm:"size:100"`
	IsActive  bool   `json:"is_active" gorm:"not null;default:true;index"`

	LastUsedAt *time.Time `json:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName 指定表名
func (APIKey) TableName() string {
	return "api_keys"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	return nil
}

// IsExpired 判断密钥是否已过期
func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}
