/*
 * @module service/models/detection
 * @description 威胁检测相关数据模型，包括检测记录和安全告警
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference dev_docs/model.md
 * @stateFlow 特征输入 -> 模型预测 -> 检测记录落库 -> 告警生成与处置
 * @rules 检测记录为追加模式，不支持修改；告警支持确认/解决/误报流转
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs dev_docs/requirements.md
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 预测结果常量
const (
	PredictionNormal = "Normal"
	PredictionThreat = "Threat"
)

// 威胁等级常量
const (
	ThreatLevelLow      = "Low"
	ThreatLevelMedium   = "Medium"
	ThreatLevelHigh     = "High"
	ThreatLevelCritical = "Critical"
)

// 告警状态常量
const (
	AlertStatusOpen          = "Open"
	AlertStatusAcknowledged  = "Acknowledged"
	AlertStatusResolved      = "Resolved"
	AlertStatusFalsePositive = "False Positive"
)

// DetectionRecord 威胁检测记录模型
type DetectionRecord struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;default:CURRENT_TIMESTAMP;index"`

	// UAV流量特征
	PacketSize         float64 `json:"packet_size" gorm:"not null"`
	InterArrivalTime   float64 `json:"inter_arrival_time" gorm:"not null"`
	PacketRate         float64 `json:"packet_rate" gorm:"not null"`
	ConnectionDuration float64 `json:"connection_duration" gorm:"not null"`
	FailedLogins       float64 `json:"failed_logins" gorm:"not null"`

	// 预测结果
	Prediction   string  `json:"prediction" gorm:"not null;size:20;index"` // Normal, Threat
	Confidence   float64 `json:"confidence" gorm:"not null"`               // 0-1
	ThreatLevel  string  `json:"threat_level" gorm:"size:20;index"`        // Low, Medium, High, Critical
	ModelVersion string  `json:"model_version" gorm:"size:100"`

	// 附加信息
	Source    string `json:"source" gorm:"size:20;default:'api'"` // api, mqtt
	IPAddress string `json:"ip_address" gorm:"size:50"`
	Notes     string `json:"notes" gorm:"size:1000"`
	CreatedBy string `json:"created_by" gorm:"size:100;default:'system'"`

	// 关联关系
	Alerts []Alert `json:"alerts,omitempty" gorm:"foreignKey:DetectionID"`
}

// TableName 指定表名
func (DetectionRecord) TableName() string {
	return "detection_records"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (d *DetectionRecord) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// Alert 安全告警模型
type Alert struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DetectionID string `json:"detection_id" gorm:"not null;type:varchar(36);index"`

	Severity string `json:"severity" gorm:"not null;size:20"`                      // Low, Medium, High, Critical
	Status   string `json:"status" gorm:"not null;default:'Open';size:20;index"` // Open, Acknowledged, Resolved, False Positive

	AssignedTo string `json:"assigned_to" gorm:"size:100"`

	CreatedAt      time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	ResolvedAt     *time.Time `json:"resolved_at"`

	ResolutionNotes string `json:"resolution_notes" gorm:"size:1000"`

	// 关联关系
	Detection DetectionRecord `json:"detection,omitempty" gorm:"foreignKey:DetectionID"`
}

// TableName 指定表名
func (Alert) TableName() string {
	return "alerts"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
