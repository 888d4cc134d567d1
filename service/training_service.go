/*
 * @module service/training_service
 * @description 模型训练编排服务，负责训练任务的创建、异步执行、进度推送与结果落库
 * @architecture 分层架构 - 服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 任务创建(pending) -> 获取分布式锁 -> 异步训练(running) -> 完成/失败 -> 模型落库
 * @rules 同一时刻最多一个训练任务在执行，进度百分比单调不减
 * @dependencies gorm.io/gorm, service/mlpipeline, service/event, service/distributed_lock
 * @refs api/controllers/training_controller.go, service/mlpipeline/trainer.go
 */

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"uavsec-service/service/config"
	"uavsec-service/service/distributed_lock"
	"uavsec-service/service/event"
	"uavsec-service/service/mlpipeline"
	"uavsec-service/service/models"
	"uavsec-service/service/monitoring"

	"gorm.io/gorm"
)

// 训练互斥锁参数
const (
	trainingLockKey      = "model_training"
	trainingLockTTL      = 30 * time.Minute
	trainingLockRefresh  = 1 * time.Minute
	trainingRunTimeout   = 25 * time.Minute
	progressFlushMinStep = 1 // 进度推进不足1%时不回写数据库
)

// ErrTrainingInProgress 已有训练任务在执行
var ErrTrainingInProgress = errors.New("已有训练任务正在执行中")

// ErrTrainingRunNotFound 训练任务不存在
var ErrTrainingRunNotFound = errors.New("训练任务不存在")

// TrainingService 模型训练编排服务
type TrainingService struct {
	db           *gorm.DB
	eventService *event.EventService
	lock         distributed_lock.DistributedLock
	configSvc    *config.ConfigService
}

// NewTrainingService 创建训练编排服务
func NewTrainingService(db *gorm.DB, eventService *event.EventService, lock distributed_lock.DistributedLock, configSvc *config.ConfigService) *TrainingService {
	return &TrainingService{
		db:           db,
		eventService: eventService,
		lock:         lock,
		configSvc:    configSvc,
	}
}

// CreateTrainingRequest 创建训练任务请求
type CreateTrainingRequest struct {
	Algorithm       string                 `json:"algorithm"`
	DatasetPath     string                 `json:"dataset_path"`
	TestSize        float64                `json:"test_size"`
	Hyperparameters map[string]interface{} `json:"hyperparameters"`
	CreatedBy       string                 `json:"created_by"`
}

// StartTraining 创建并异步启动训练任务
func (s *TrainingService) StartTraining(ctx context.Context, req *CreateTrainingRequest) (*models.TrainingRun, error) {
	if req.TestSize == 0 {
		req.TestSize = 0.2
	}
	if req.CreatedBy == "" {
		req.CreatedBy = "system"
	}

	trainReq := &mlpipeline.TrainRequest{
		Algorithm:       req.Algorithm,
		DatasetPath:     req.DatasetPath,
		TestSize:        req.TestSize,
		Hyperparameters: req.Hyperparameters,
		ArtifactDir:     s.artifactDir(),
		Seed:            mlpipeline.DefaultSeed,
	}

	// 参数校验在任务入库前完成，非法请求不留下任务记录
	if err := mlpipeline.ValidateRequest(trainReq); err != nil {
		return nil, err
	}

	// 检查训练互斥锁，避免创建注定无法执行的任务
	if s.lock != nil {
		locked, err := s.lock.IsLocked(ctx, trainingLockKey)
		if err != nil {
			slog.Warn("检查训练锁状态失败，继续尝试创建任务", "error", err)
		} else if locked {
			return nil, ErrTrainingInProgress
		}
	}

	run := &models.TrainingRun{
		Algorithm:       req.Algorithm,
		DatasetPath:     req.DatasetPath,
		TestSize:        req.TestSize,
		Hyperparameters: models.JSONB(trainReq.Hyperparameters),
		Status:          models.TrainingStatusPending,
		CreatedBy:       req.CreatedBy,
	}

	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("创建训练任务失败: %w", err)
	}

	go s.executeTraining(run.ID, trainReq, req.CreatedBy)

	return run, nil
}

// executeTraining 在后台goroutine中执行训练流水线
func (s *TrainingService) executeTraining(runID string, req *mlpipeline.TrainRequest, createdBy string) {
	ctx, cancel := context.WithTimeout(context.Background(), trainingRunTimeout)
	defer cancel()

	runOnce := func() error {
		return s.runPipeline(ctx, runID, req, createdBy)
	}

	if s.lock == nil {
		// 无Redis环境（单实例部署或测试）时直接执行
		if err := runOnce(); err != nil {
			slog.Error("训练任务执行失败", "run_id", runID, "error", err)
		}
		return
	}

	locked, err := s.lock.TryLock(ctx, trainingLockKey, trainingLockTTL)
	if err != nil {
		s.failRun(runID, fmt.Sprintf("获取训练锁失败: %v", err), createdBy)
		return
	}
	if !locked {
		s.failRun(runID, ErrTrainingInProgress.Error(), createdBy)
		return
	}

	// 长训练自动续期，防止锁先于训练过期
	refreshCtx, stopRefresh := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(trainingLockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				if refreshErr := s.lock.Refresh(ctx, trainingLockKey, trainingLockTTL); refreshErr != nil {
					slog.Error("训练锁续期失败", "run_id", runID, "error", refreshErr)
				}
			}
		}
	}()

	defer func() {
		stopRefresh()
		if unlockErr := s.lock.Unlock(context.Background(), trainingLockKey); unlockErr != nil {
			slog.Error("释放训练锁失败", "run_id", runID, "error", unlockErr)
		}
	}()

	if err := runOnce(); err != nil {
		slog.Error("训练任务执行失败", "run_id", runID, "error", err)
	}
}

// runPipeline 执行训练并同步进度、落库结果
func (s *TrainingService) runPipeline(ctx context.Context, runID string, req *mlpipeline.TrainRequest, createdBy string) error {
	now := time.Now()
	if err := s.db.Model(&models.TrainingRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":     models.TrainingStatusRunning,
		"started_at": now,
	}).Error; err != nil {
		return fmt.Errorf("更新训练任务状态失败: %w", err)
	}

	s.pushEvent(createdBy, models.EventTypeTrainingStarted, map[string]interface{}{
		"run_id":    runID,
		"algorithm": req.Algorithm,
	})

	lastPersisted := 0
	sink := func(ev mlpipeline.ProgressEvent) {
		// 阶段变化或进度推进时回写任务记录
		if ev.Percent-lastPersisted >= progressFlushMinStep {
			lastPersisted = ev.Percent
			s.db.Model(&models.TrainingRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
				"progress": ev.Percent,
				"stage":    ev.Stage,
			})
		}

		s.pushEvent(createdBy, models.EventTypeTrainingUpdate, map[string]interface{}{
			"run_id":  runID,
			"stage":   ev.Stage,
			"percent": ev.Percent,
			"message": ev.Message,
		})
	}

	trainer := mlpipeline.NewTrainer(sink)
	start := time.Now()
	result, err := trainer.Run(ctx, req)
	monitoring.ObserveTrainingDuration(req.Algorithm, time.Since(start))

	if err != nil {
		monitoring.IncTrainingTotal(req.Algorithm, "failed")
		s.failRun(runID, err.Error(), createdBy)
		return err
	}

	model, saveErr := s.persistResult(runID, result, createdBy)
	if saveErr != nil {
		monitoring.IncTrainingTotal(req.Algorithm, "failed")
		s.failRun(runID, saveErr.Error(), createdBy)
		return saveErr
	}

	monitoring.IncTrainingTotal(req.Algorithm, "completed")

	s.pushEvent(createdBy, models.EventTypeTrainingComplete, map[string]interface{}{
		"run_id":   runID,
		"model_id": model.ID,
		"metrics": map[string]interface{}{
			"accuracy":  model.Accuracy,
			"precision": model.Precision,
			"recall":    model.Recall,
			"f1_score":  model.F1Score,
			"roc_auc":   model.ROCAUC,
		},
	})

	return nil
}

// persistResult 训练成功后写入模型记录并收尾训练任务
func (s *TrainingService) persistResult(runID string, result *mlpipeline.TrainResult, createdBy string) (*models.MLModel, error) {
	model := &models.MLModel{
		Name:                result.Algorithm,
		Version:             s.nextVersion(result.Algorithm),
		Accuracy:            float64Ptr(result.Metrics.Accuracy),
		Precision:           float64Ptr(result.Metrics.Precision),
		Recall:              float64Ptr(result.Metrics.Recall),
		F1Score:             float64Ptr(result.Metrics.F1Score),
		ROCAUC:              result.Metrics.ROCAUC,
		ConfusionMatrix:     models.JSONB(result.ConfusionMatrix.ToJSON()),
		FilePath:            result.ModelPath,
		ScalerPath:          result.ScalerPath,
		TrainedBy:           createdBy,
		TrainingDatasetSize: result.DatasetSize.Total,
		TrainSampleCount:    result.DatasetSize.Train,
		TestSampleCount:     result.DatasetSize.Test,
		TrainingDuration:    result.Duration,
		Hyperparameters:     models.JSONB(result.Hyperparameters),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("保存模型记录失败: %w", err)
		}

		now := time.Now()
		if err := tx.Model(&models.TrainingRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
			"status":      models.TrainingStatusCompleted,
			"progress":    100,
			"stage":       mlpipeline.StageComplete,
			"model_id":    model.ID,
			"finished_at": now,
		}).Error; err != nil {
			return fmt.Errorf("收尾训练任务失败: %w", err)
		}

		audit := &models.AuditLog{
			UserName: createdBy,
			Action:   models.AuditActionModelTraining,
			Details: models.JSONB{
				"run_id":    runID,
				"model_id":  model.ID,
				"algorithm": result.Algorithm,
				"accuracy":  result.Metrics.Accuracy,
			},
		}
		return tx.Create(audit).Error
	})
	if err != nil {
		return nil, err
	}

	return model, nil
}

// failRun 标记训练任务失败并推送错误事件
func (s *TrainingService) failRun(runID, message, createdBy string) {
	now := time.Now()
	s.db.Model(&models.TrainingRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":        models.TrainingStatusFailed,
		"error_message": message,
		"finished_at":   now,
	})

	s.pushEvent(createdBy, models.EventTypeTrainingError, map[string]interface{}{
		"run_id": runID,
		"error":  message,
	})
}

// pushEvent 通过SSE推送训练事件，无连接时不算错误
func (s *TrainingService) pushEvent(userName, eventType string, data map[string]interface{}) {
	if s.eventService == nil {
		return
	}

	ev := &models.SSEEvent{
		EventType: eventType,
		UserName:  userName,
		Data:      data,
	}

	if err := s.eventService.SendEventToUser(userName, ev); err != nil {
		slog.Debug("训练事件推送失败", "event_type", eventType, "error", err)
	}
}

// GetTrainingRun 查询训练任务详情
func (s *TrainingService) GetTrainingRun(runID string) (*models.TrainingRun, error) {
	var run models.TrainingRun
	if err := s.db.Preload("Model").First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrainingRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// GetTrainingRunList 分页查询训练任务列表
func (s *TrainingService) GetTrainingRunList(page, pageSize int, status, algorithm string) ([]models.TrainingRun, int64, error) {
	var runs []models.TrainingRun
	var total int64

	query := s.db.Model(&models.TrainingRun{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if algorithm != "" {
		query = query.Where("algorithm = ?", algorithm)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&runs).Error
	return runs, total, err
}

// GetSupportedAlgorithms 返回可用算法及各自的默认超参数
func (s *TrainingService) GetSupportedAlgorithms() []map[string]interface{} {
	algorithms := mlpipeline.SupportedAlgorithms()
	result := make([]map[string]interface{}, 0, len(algorithms))
	for _, alg := range algorithms {
		params, _ := mlpipeline.DefaultHyperparameters(alg)
		result = append(result, map[string]interface{}{
			"algorithm":       alg,
			"hyperparameters": params,
		})
	}
	return result
}

// AnalyzeDataset 对数据集文件做统计分析
func (s *TrainingService) AnalyzeDataset(path string) (*mlpipeline.DatasetStats, error) {
	return mlpipeline.Analyze(path)
}

// RecordDatasetUpload 记录数据集上传审计
func (s *TrainingService) RecordDatasetUpload(path string, sizeBytes int64, samples int, createdBy, ipAddress string) {
	if createdBy == "" {
		createdBy = "system"
	}
	audit := &models.AuditLog{
		UserName:  createdBy,
		Action:    models.AuditActionDatasetUpload,
		IPAddress: ipAddress,
		Details: models.JSONB{
			"dataset_path": path,
			"size_bytes":   sizeBytes,
			"samples":      samples,
		},
	}
	if err := s.db.Create(audit).Error; err != nil {
		slog.Warn("写入数据集上传审计失败", "path", path, "error", err)
	}
}

// nextVersion 同名模型版本号递增，形如1.0.0、1.0.1
func (s *TrainingService) nextVersion(name string) string {
	var count int64
	s.db.Model(&models.MLModel{}).Where("name = ?", name).Count(&count)
	return fmt.Sprintf("1.0.%d", count)
}

// artifactDir 从系统配置读取模型产物目录
func (s *TrainingService) artifactDir() string {
	if s.configSvc != nil {
		if dir := s.configSvc.GetString(models.ConfigKeyArtifactDir, ""); dir != "" {
			return dir
		}
	}
	return "./artifacts"
}

// DatasetDir 从系统配置读取上传数据集存储目录
func (s *TrainingService) DatasetDir() string {
	if s.configSvc != nil {
		if dir := s.configSvc.GetString(models.ConfigKeyDatasetDir, ""); dir != "" {
			return dir
		}
	}
	return "./datasets"
}

func float64Ptr(v float64) *float64 {
	return &v
}
