/*
 * @module api/controllers/dashboard_controller
 * @description Dashboard统计数据控制器，提供系统总览和关键指标数据
 * @architecture MVC架构 - 控制器层
 * @documentReference service/database/views/detection_views.go
 * @stateFlow HTTP请求处理流程
 * @rules 统一的错误处理和响应格式，数据聚合展示
 * @dependencies uavsec-service/service, github.com/go-chi/render
 * @refs api/routes.go
 */

package controllers

import (
	"net/http"
	"time"

	"uavsec-service/service"
	"uavsec-service/service/models"

	"github.com/go-chi/render"
	"gorm.io/gorm"
)

// DashboardController Dashboard控制器
type DashboardController struct {
	db               *gorm.DB
	detectionService *service.DetectionService
}

// NewDashboardController 创建Dashboard控制器实例
func NewDashboardController() *DashboardController {
	return &DashboardController{
		db:               service.DB,
		detectionService: service.GlobalDetectionService,
	}
}

// DashboardOverviewResponse Dashboard总览响应
type DashboardOverviewResponse struct {
	// 检测统计
	DetectionStats service.DetectionStats `json:"detection_stats"`

	// 模型统计
	ModelStats ModelStats `json:"model_stats"`

	// 训练任务统计
	TrainingStats TrainingStats `json:"training_stats"`

	// 告警统计
	AlertStats AlertStats `json:"alert_stats"`

	// 近7日检测趋势
	DailyTrend []DailyDetectionTrend `json:"daily_trend"`

	// 模型排行榜
	ModelLeaderboard []ModelLeaderboardEntry `json:"model_leaderboard"`

	// 更新时间
	UpdatedAt time.Time `json:"updated_at"`
}

// ModelStats 模型统计
type ModelStats struct {
	TotalModels     int64             `json:"total_models"`      // 模型总数
	ActiveModels    int64             `json:"active_models"`     // 激活模型数
	AlgorithmCounts []AlgorithmCount  `json:"algorithm_counts"`  // 按算法分布
	RecentModels    []RecentModelInfo `json:"recent_models"`     // 最近训练的模型
	ActiveModelInfo *RecentModelInfo  `json:"active_model_info"` // 当前激活模型
}

// AlgorithmCount 算法分布统计，模型名即算法名
type AlgorithmCount struct {
	Algorithm string `json:"algorithm"`
	Count     int64  `json:"count"`
}

// RecentModelInfo 模型摘要信息
type RecentModelInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	F1Score   *float64  `json:"f1_score"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// TrainingStats 训练任务统计
type TrainingStats struct {
	TotalRuns        int64   `json:"total_runs"`         // 总任务数
	RunningRuns      int64   `json:"running_runs"`       // 运行中
	PendingRuns      int64   `json:"pending_runs"`       // 等待中
	CompletedRuns    int64   `json:"completed_runs"`     // 已完成
	FailedRuns       int64   `json:"failed_runs"`        // 失败
	TodayRuns        int64   `json:"today_runs"`         // 今日任务数
	AvgDurationSecs  float64 `json:"avg_duration_secs"`  // 平均训练耗时(秒)
	TodaySuccessRate float64 `json:"today_success_rate"` // 今日成功率
}

// AlertStats 告警统计
type AlertStats struct {
	TotalAlerts        int64           `json:"total_alerts"`        // 告警总数
	OpenAlerts         int64           `json:"open_alerts"`         // 未处理
	AcknowledgedAlerts int64           `json:"acknowledged_alerts"` // 已认领
	ResolvedAlerts     int64           `json:"resolved_alerts"`     // 已解决
	FalsePositives     int64           `json:"false_positives"`     // 误报
	SeverityBreakdown  []SeverityCount `json:"severity_breakdown"`  // 严重程度分布
}

// SeverityCount 严重程度分布统计
type SeverityCount struct {
	Severity string `json:"severity"`
	Count    int64  `json:"count"`
}

// DailyDetectionTrend 每日检测趋势，来自detection_daily_stats视图
type DailyDetectionTrend struct {
	Day           time.Time `json:"day"`
	TotalCount    int64     `json:"total_count"`
	ThreatCount   int64     `json:"threat_count"`
	NormalCount   int64     `json:"normal_count"`
	CriticalCount int64     `json:"critical_count"`
	HighCount     int64     `json:"high_count"`
	AvgConfidence float64   `json:"avg_confidence"`
}

// ModelLeaderboardEntry 模型排行榜条目，来自model_leaderboard视图
type ModelLeaderboardEntry struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Accuracy *float64 `json:"accuracy"`
	F1Score  *float64 `json:"f1_score"`
	RocAuc   *float64 `json:"roc_auc"`
	IsActive bool     `json:"is_active"`
}

// GetDashboardOverview 获取Dashboard总览数据
// @Summary 获取Dashboard总览数据
// @Description 聚合检测、模型、训练、告警统计和趋势数据
// @Tags 仪表盘
// @Produce json
// @Success 200 {object} APIResponse{data=DashboardOverviewResponse} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /dashboard/overview [get]
func (c *DashboardController) GetDashboardOverview(w http.ResponseWriter, r *http.Request) {
	detectionStats, err := c.detectionService.GetDetectionStats()
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取检测统计失败", err))
		return
	}

	overview := DashboardOverviewResponse{
		DetectionStats:   *detectionStats,
		ModelStats:       c.getModelStats(),
		TrainingStats:    c.getTrainingStats(),
		AlertStats:       c.getAlertStats(),
		DailyTrend:       c.getDailyTrend(7),
		ModelLeaderboard: c.getModelLeaderboard(10),
		UpdatedAt:        time.Now(),
	}

	render.Render(w, r, SuccessResponse("获取Dashboard总览数据成功", overview))
}

// getModelStats 获取模型统计数据
func (c *DashboardController) getModelStats() ModelStats {
	stats := ModelStats{
		AlgorithmCounts: []AlgorithmCount{},
		RecentModels:    []RecentModelInfo{},
	}

	// 模型总数和激活状态统计
	c.db.Model(&models.MLModel{}).Count(&stats.TotalModels)
	c.db.Model(&models.MLModel{}).Where("is_active = ?", true).Count(&stats.ActiveModels)

	// 按算法分布，模型名即算法名
	c.db.Model(&models.MLModel{}).
		Select("name as algorithm, COUNT(*) as count").
		Group("name").
		Find(&stats.AlgorithmCounts)

	// 最近训练的模型 (前5条)
	c.db.Model(&models.MLModel{}).
		Select("id, name, version, f1_score, is_active, created_at").
		Order("created_at DESC").
		Limit(5).
		Find(&stats.RecentModels)

	// 当前激活模型
	var active RecentModelInfo
	err := c.db.Model(&models.MLModel{}).
		Select("id, name, version, f1_score, is_active, created_at").
		Where("is_active = ?", true).
		Order("updated_at DESC").
		First(&active).Error
	if err == nil {
		stats.ActiveModelInfo = &active
	}

	return stats
}

// getTrainingStats 获取训练任务统计数据
func (c *DashboardController) getTrainingStats() TrainingStats {
	stats := TrainingStats{}

	c.db.Model(&models.TrainingRun{}).Count(&stats.TotalRuns)
	c.db.Model(&models.TrainingRun{}).Where("status = ?", models.TrainingStatusRunning).Count(&stats.RunningRuns)
	c.db.Model(&models.TrainingRun{}).Where("status = ?", models.TrainingStatusPending).Count(&stats.PendingRuns)
	c.db.Model(&models.TrainingRun{}).Where("status = ?", models.TrainingStatusCompleted).Count(&stats.CompletedRuns)
	c.db.Model(&models.TrainingRun{}).Where("status = ?", models.TrainingStatusFailed).Count(&stats.FailedRuns)

	// 今日任务数和成功率
	todayStart := time.Now().Truncate(24 * time.Hour)
	c.db.Model(&models.TrainingRun{}).Where("created_at >= ?", todayStart).Count(&stats.TodayRuns)

	var todayCompleted int64
	c.db.Model(&models.TrainingRun{}).
		Where("created_at >= ? AND status = ?", todayStart, models.TrainingStatusCompleted).
		Count(&todayCompleted)
	var todayFinished int64
	c.db.Model(&models.TrainingRun{}).
		Where("created_at >= ? AND status IN ?", todayStart,
			[]string{models.TrainingStatusCompleted, models.TrainingStatusFailed}).
		Count(&todayFinished)
	if todayFinished > 0 {
		stats.TodaySuccessRate = float64(todayCompleted) / float64(todayFinished) * 100
	}

	// 平均训练耗时，只统计已完成任务
	var avgDuration *float64
	c.db.Model(&models.MLModel{}).
		Select("AVG(training_duration)").
		Scan(&avgDuration)
	if avgDuration != nil {
		stats.AvgDurationSecs = *avgDuration
	}

	return stats
}

// getAlertStats 获取告警统计数据
func (c *DashboardController) getAlertStats() AlertStats {
	stats := AlertStats{
		SeverityBreakdown: []SeverityCount{},
	}

	c.db.Model(&models.Alert{}).Count(&stats.TotalAlerts)
	c.db.Model(&models.Alert{}).Where("status = ?", models.AlertStatusOpen).Count(&stats.OpenAlerts)
	c.db.Model(&models.Alert{}).Where("status = ?", models.AlertStatusAcknowledged).Count(&stats.AcknowledgedAlerts)
	c.db.Model(&models.Alert{}).Where("status = ?", models.AlertStatusResolved).Count(&stats.ResolvedAlerts)
	c.db.Model(&models.Alert{}).Where("status = ?", models.AlertStatusFalsePositive).Count(&stats.FalsePositives)

	c.db.Model(&models.Alert{}).
		Select("severity, COUNT(*) as count").
		Group("severity").
		Find(&stats.SeverityBreakdown)

	return stats
}

// getDailyTrend 从detection_daily_stats视图读取近N天趋势
func (c *DashboardController) getDailyTrend(days int) []DailyDetectionTrend {
	trend := []DailyDetectionTrend{}
	c.db.Raw(
		"SELECT day, total_count, threat_count, normal_count, critical_count, high_count, avg_confidence FROM detection_daily_stats WHERE day >= ? ORDER BY day",
		time.Now().AddDate(0, 0, -days),
	).Scan(&trend)
	return trend
}

// getModelLeaderboard 从model_leaderboard视图读取排行榜前N条
func (c *DashboardController) getModelLeaderboard(limit int) []ModelLeaderboardEntry {
	leaderboard := []ModelLeaderboardEntry{}
	c.db.Raw(
		"SELECT id, name, version, accuracy, f1_score, roc_auc, is_active FROM model_leaderboard LIMIT ?",
		limit,
	).Scan(&leaderboard)
	return leaderboard
}

// GetModelStats 获取模型统计数据
// @Summary 获取模型统计数据
// @Description 单独获取模型统计数据
// @Tags 仪表盘
// @Produce json
// @Success 200 {object} APIResponse{data=ModelStats} "获取成功"
// @Router /dashboard/models [get]
func (c *DashboardController) GetModelStats(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, SuccessResponse("获取模型统计数据成功", c.getModelStats()))
}

// GetTrainingStats 获取训练任务统计数据
// @Summary 获取训练任务统计数据
// @Description 单独获取训练任务统计数据
// @Tags 仪表盘
// @Produce json
// @Success 200 {object} APIResponse{data=TrainingStats} "获取成功"
// @Router /dashboard/training [get]
func (c *DashboardController) GetTrainingStats(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, SuccessResponse("获取训练任务统计数据成功", c.getTrainingStats()))
}

// GetAlertStats 获取告警统计数据
// @Summary 获取告警统计数据
// @Description 单独获取告警统计数据
// @Tags 仪表盘
// @Produce json
// @Success 200 {object} APIResponse{data=AlertStats} "获取成功"
// @Router /dashboard/alerts [get]
func (c *DashboardController) GetAlertStats(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, SuccessResponse("获取告警统计数据成功", c.getAlertStats()))
}

// GetDailyTrend 获取每日检测趋势
// @Summary 获取每日检测趋势
// @Description 从聚合视图读取近7天检测趋势数据
// @Tags 仪表盘
// @Produce json
// @Success 200 {object} APIResponse{data=[]DailyDetectionTrend} "获取成功"
// @Router /dashboard/trend [get]
func (c *DashboardController) GetDailyTrend(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, SuccessResponse("获取每日检测趋势成功", c.getDailyTrend(7)))
}
