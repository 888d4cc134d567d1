/*
 * @module service/models/ml_model
 * @description 机器学习模型相关数据模型，包括模型记录和训练任务
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference dev_docs/model.md
 * @stateFlow 训练任务创建 -> 训练执行 -> 模型记录落库 -> 激活/删除
 * @rules 同名模型同一时刻最多一个处于激活状态
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs dev_docs/requirements.md
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 训练任务状态常量
const (
	TrainingStatusPending   = "pending"
	TrainingStatusRunning   = "running"
	TrainingStatusCompleted = "completed"
	TrainingStatusFailed    = "failed"
)

// MLModel 已训练模型元数据模型
type MLModel struct {
	ID      string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name    string `json:"name" gorm:"not null;size:100;index"` // RandomForest, GradientBoosting等算法名
	Version string `json:"version" gorm:"not null;default:'1.0.0';size:50"`

	// 性能指标
	Accuracy  *float64 `json:"accuracy"`
	Precision *float64 `json:"precision"`
	Recall    *float64 `json:"recall"`
	F1Score   *float64 `json:"f1_score"`
	ROCAUC    *float64 `json:"roc_auc"` // 非二分类数据集上为空

	ConfusionMatrix JSONB `json:"confusion_matrix" gorm:"type:jsonb"`

	// 模型状态与产物路径
	IsActive   bool   `json:"is_active" gorm:"not null;default:false;index"`
	FilePath   string `json:"file_path" gorm:"not null;size:255"`
	ScalerPath string `json:"scaler_path" gorm:"size:255"`

	// 训练上下文
	TrainedBy           string  `json:"trained_by" gorm:"size:100;default:'system'"`
	TrainingDatasetSize int     `json:"training_dataset_size"`
	TrainSampleCount    int     `json:"train_sample_count"`
	TestSampleCount     int     `json:"test_sample_count"`
	TrainingDuration    float64 `json:"training_duration"` // 秒
	Hyperparameters     JSONB   `json:"hyperparameters" gorm:"type:jsonb"`
	Description         string  `json:"description" gorm:"size:1000"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName 指定表名
func (MLModel) TableName() string {
	return "ml_models"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (m *MLModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TrainingRun 训练任务模型
type TrainingRun struct {
	ID              string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Algorithm       string  `json:"algorithm" gorm:"not null;size:100;index"`
	DatasetPath     string  `json:"dataset_path" gorm:"not null;size:255"`
	TestSize        float64 `json:"test_size" gorm:"not null;default:0.2"`
	Hyperparameters JSONB   `json:"hyperparameters" gorm:"type:jsonb"`

	// 执行状态，阶段推进时由训练器更新
	Status       string `json:"status" gorm:"not null;default:'pending';size:20;index"` // pending, running, completed, failed
	Progress     int    `json:"progress" gorm:"not null;default:0"`                     // 0-100，单调不减
	Stage        string `json:"stage" gorm:"size:50"`
	ErrorMessage string `json:"error_message" gorm:"size:1000"`

	ModelID   *string `json:"model_id" gorm:"type:varchar(36)"` // 训练成功后关联的模型记录
	CreatedBy string  `json:"created_by" gorm:"size:100;default:'system'"`

	CreatedAt  time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	// 关联关系
	Model *MLModel `json:"model,omitempty" gorm:"foreignKey:ModelID"`
}

// TableName 指定表名
func (TrainingRun) TableName() string {
	return "training_runs"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (t *TrainingRun) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// IsTerminal 判断训练任务是否处于终止状态
func (t *TrainingRun) IsTerminal() bool {
	return t.Status == TrainingStatusCompleted || t.Status == TrainingStatusFailed
}
