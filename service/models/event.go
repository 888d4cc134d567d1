/*
 * @module service/models/event
 * @description 事件管理相关模型定义，包括SSE事件和SSE连接记录
 * @architecture 事件驱动架构 - 数据模型层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 事件生产 -> 事件分发 -> 客户端推送
 * @rules 事件推送为即发即弃，断开的客户端不做补发
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs dev_docs/requirements.md
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SSE事件类型常量
const (
	EventTypeTrainingStarted  = "training_started"
	EventTypeTrainingUpdate   = "training_update"
	EventTypeTrainingComplete = "training_complete"
	EventTypeTrainingError    = "training_error"
	EventTypeAlertCreated     = "alert_created"
	EventTypeNotification     = "system_notification"
)

// SSEEvent SSE事件模型
type SSEEvent struct {
	ID        string                 `gorm:"type:varchar(36);primaryKey" json:"id"`
	EventType string                 `gorm:"not null;size:50;index" json:"event_type"` // training_update, alert_created等
	UserName  string                 `gorm:"not null;index" json:"user_name"`          // 空表示广播事件
	Data      map[string]interface{} `gorm:"type:jsonb;not null" json:"data"`
	CreatedAt time.Time              `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy string                 `gorm:"not null;default:'system'" json:"created_by"`
	Sent      bool                   `gorm:"not null;default:false" json:"sent"`
	SentAt    *time.Time             `json:"sent_at"`
}

// BeforeCreate 创建前钩子
func (s *SSEEvent) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedBy == "" {
		s.CreatedBy = "system"
	}
	return nil
}

// SSEConnection SSE连接管理模型
type SSEConnection struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserName     string    `gorm:"not null;index" json:"user_name"`
	ConnectionID string    `gorm:"not null;unique" json:"connection_id"`
	ClientIP     string    `gorm:"not null" json:"client_ip"`
	ConnectedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"connected_at"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	LastPingAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"last_ping_at"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
}

// BeforeCreate 创建前钩子
func (s *SSEConnection) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
