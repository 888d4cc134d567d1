/*
 * @module service/cleanup/retention_service
 * @description 数据保留服务，按配置的保留天数定期清理检测记录、审计日志与已结束的训练任务
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 定时触发 -> 获取分布式锁 -> 读取保留配置 -> 执行清理 -> 记录结果
 * @rules 多实例部署时同一时刻仅一个实例执行清理，运行中的训练任务不清理
 * @dependencies uavsec-service/service/config, gorm.io/gorm, github.com/robfig/cron/v3
 * @refs service/config, service/distributed_lock
 */

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"uavsec-service/service/config"
	"uavsec-service/service/distributed_lock"
	"uavsec-service/service/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// 清理任务的分布式锁参数
const (
	cleanupLockKey = "retention_cleanup"
	cleanupLockTTL = 10 * time.Minute
)

// RetentionService 数据保留服务
type RetentionService struct {
	db            *gorm.DB
	configService *config.ConfigService
	lock          distributed_lock.DistributedLock
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
}

// NewRetentionService 创建数据保留服务实例，lock可为nil（单实例部署）
func NewRetentionService(db *gorm.DB, configService *config.ConfigService, lock distributed_lock.DistributedLock) *RetentionService {
	ctx, cancel := context.WithCancel(context.Background())

	return &RetentionService{
		db:            db,
		configService: configService,
		lock:          lock,
		cron:          cron.New(cron.WithSeconds()),
		ctx:           ctx,
		cancel:        cancel,
		started:       false,
	}
}

// CleanupExpiredData 按保留策略清理所有过期数据
func (s *RetentionService) CleanupExpiredData(ctx context.Context) error {
	slog.Info("开始清理过期数据")
	startTime := time.Now()

	detectionDays := s.configService.GetInt(models.ConfigKeyDetectionRetentionDays, config.DefaultDetectionRetentionDays)
	auditDays := s.configService.GetInt(models.ConfigKeyAuditLogRetentionDays, config.DefaultAuditLogRetentionDays)
	runDays := s.configService.GetInt(models.ConfigKeyTrainingRunRetentionDays, config.DefaultTrainingRunRetentionDays)

	detectionDeleted, err := s.CleanupDetectionRecords(ctx, detectionDays)
	if err != nil {
		slog.Error("清理检测记录失败", "error", err)
	} else {
		slog.Info("清理检测记录完成", "deleted_count", detectionDeleted, "retention_days", detectionDays)
	}

	auditDeleted, err := s.CleanupAuditLogs(ctx, auditDays)
	if err != nil {
		slog.Error("清理审计日志失败", "error", err)
	} else {
		slog.Info("清理审计日志完成", "deleted_count", auditDeleted, "retention_days", auditDays)
	}

	runsDeleted, err := s.CleanupTrainingRuns(ctx, runDays)
	if err != nil {
		slog.Error("清理训练任务记录失败", "error", err)
	} else {
		slog.Info("清理训练任务记录完成", "deleted_count", runsDeleted, "retention_days", runDays)
	}

	duration := time.Since(startTime)
	slog.Info("数据清理完成",
		"detection_deleted", detectionDeleted,
		"audit_deleted", auditDeleted,
		"runs_deleted", runsDeleted,
		"duration_ms", duration.Milliseconds())

	return nil
}

// CleanupDetectionRecords 清理过期检测记录及其关联告警
func (s *RetentionService) CleanupDetectionRecords(ctx context.Context, retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	slog.Debug("清理检测记录", "cutoff_date", cutoffDate.Format("2006-01-02 15:04:05"), "retention_days", retentionDays)

	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 先删告警，再删检测记录，保持外键一致
		if err := tx.Where("detection_id IN (?)",
			tx.Model(&models.DetectionRecord{}).Select("id").Where("timestamp < ?", cutoffDate),
		).Delete(&models.Alert{}).Error; err != nil {
			return fmt.Errorf("删除关联告警失败: %w", err)
		}

		result := tx.Where("timestamp < ?", cutoffDate).Delete(&models.DetectionRecord{})
		if result.Error != nil {
			return fmt.Errorf("删除检测记录失败: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})

	return deleted, err
}

// CleanupAuditLogs 清理过期审计日志
func (s *RetentionService) CleanupAuditLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.Where("timestamp < ?", cutoffDate).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("删除审计日志失败: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// CleanupTrainingRuns 清理过期且已结束的训练任务记录
func (s *RetentionService) CleanupTrainingRuns(ctx context.Context, retentionDays int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.
		Where("created_at < ? AND status IN ?", cutoffDate,
			[]string{models.TrainingStatusCompleted, models.TrainingStatusFailed}).
		Delete(&models.TrainingRun{})
	if result.Error != nil {
		return 0, fmt.Errorf("删除训练任务记录失败: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// StartScheduledCleanup 启动定时清理任务
func (s *RetentionService) StartScheduledCleanup() error {
	if s.started {
		return fmt.Errorf("数据清理调度器已经启动")
	}

	slog.Info("启动数据清理调度器")

	// 每天凌晨2点执行清理任务
	// Cron表达式：秒 分 时 日 月 周
	_, err := s.cron.AddFunc("0 0 2 * * *", func() {
		slog.Info("开始执行定时数据清理任务")

		if err := s.runWithLock(s.ctx); err != nil {
			slog.Error("定时数据清理任务失败", "error", err)
		}
	})

	if err != nil {
		return fmt.Errorf("添加定时任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true

	slog.Info("数据清理调度器启动成功，将于每天凌晨2点执行清理任务")
	return nil
}

// runWithLock 在分布式锁保护下执行清理，锁被其他实例持有时跳过
func (s *RetentionService) runWithLock(ctx context.Context) error {
	if s.lock == nil {
		return s.CleanupExpiredData(ctx)
	}

	executor := distributed_lock.NewLockExecutor(s.lock)
	return executor.ExecuteWithLock(ctx, cleanupLockKey, cleanupLockTTL, func() error {
		return s.CleanupExpiredData(ctx)
	})
}

// StopScheduledCleanup 停止定时清理任务
func (s *RetentionService) StopScheduledCleanup() {
	if !s.started {
		return
	}

	slog.Info("停止数据清理调度器")

	s.cancel()

	if s.cron != nil {
		s.cron.Stop()
	}

	s.started = false

	slog.Info("数据清理调度器已停止")
}
