/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新数据库表结构
 * @architecture 数据访问层 - 迁移管理
 * @documentReference dev_docs/model.md
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 确保数据库结构与模型定义保持一致
 * @dependencies uavsec-service/service/models, gorm.io/gorm
 * @refs dev_docs/backend_requirements.md
 */

package database

import (
	"log"
	"uavsec-service/service/models"

	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 模型训练相关表
	err := db.AutoMigrate(
		&models.MLModel{},
		&models.TrainingRun{},
	)
	if err != nil {
		return err
	}

	// 威胁检测相关表
	err = db.AutoMigrate(
		&models.DetectionRecord{},
		&models.Alert{},
	)
	if err != nil {
		return err
	}

	// 事件管理相关表
	err = db.AutoMigrate(
		&models.SSEEvent{},
		&models.SSEConnection{},
	)
	if err != nil {
		return err
	}

	// 审计与系统配置相关表
	err = db.AutoMigrate(
		&models.AuditLog{},
		&models.SystemConfig{},
		&models.APIKey{},
	)
	if err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}

// InitializeData 初始化基础数据
func InitializeData(db *gorm.DB) error {
	log.Println("开始初始化基础数据...")

	// 支持的训练算法
	algorithms := []string{
		"RandomForest",       // 随机森林
		"GradientBoosting",   // 梯度提升
		"SVM",                // 线性支持向量机
		"NeuralNetwork",      // 多层感知机
		"LogisticRegression", // 逻辑回归
	}

	// 支持的事件类型
	eventTypes := []string{
		"training_started",    // 训练开始
		"training_update",     // 训练进度
		"training_complete",   // 训练完成
		"training_error",      // 训练失败
		"alert_created",       // 告警生成
		"system_notification", // 系统通知
	}

	log.Printf("支持的训练算法: %v", algorithms)
	log.Printf("支持的事件类型: %v", eventTypes)

	log.Println("基础数据初始化完成")
	return nil
}
