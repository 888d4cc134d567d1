/*
 * @module api/controllers/detection_controller
 * @description 威胁检测控制器，提供在线检测、检测历史、告警处置与融合评估API
 * @architecture MVC架构 - 控制器层
 * @documentReference service/detection_service.go
 * @stateFlow HTTP请求 -> 参数验证 -> 业务逻辑处理 -> 响应返回
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies uavsec-service/service, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/fusion/fusion_engine.go
 */

package controllers

import (
	"errors"
	"net/http"
	"time"

	"uavsec-service/service"
	"uavsec-service/service/fusion"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// DetectionController 威胁检测控制器
type DetectionController struct {
	detectionService *service.DetectionService
	fusionEngine     *fusion.Engine
}

// NewDetectionController 创建检测控制器实例
func NewDetectionController() *DetectionController {
	return &DetectionController{
		detectionService: service.GlobalDetectionService,
		fusionEngine:     service.GlobalFusionEngine,
	}
}

// PredictRequest 在线检测请求
type PredictRequest struct {
	service.TrafficFeatures
	Source string `json:"source" example:"api"`
}

// Predict 在线威胁检测
// @Summary 在线威胁检测
// @Description 使用当前激活模型对流量特征进行威胁检测，威胁结果自动生成告警
// @Tags 威胁检测
// @Accept json
// @Produce json
// @Param request body PredictRequest true "流量特征"
// @Success 200 {object} APIResponse{data=service.PredictionResult} "检测成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Failure 404 {object} APIResponse "无激活模型"
// @Router /detections/predict [post]
func (c *DetectionController) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}

	source := req.Source
	if source == "" {
		source = "api"
	}

	createdBy := "system"
	if caller, ok := callerName(r); ok {
		createdBy = caller
	}

	clientIP := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		clientIP = forwarded
	}

	result, err := c.detectionService.Predict(req.TrafficFeatures, source, clientIP, createdBy)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveModel) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "当前没有激活的模型，请先训练并激活模型", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "威胁检测失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("威胁检测完成", result))
}

// GetDetectionList 获取检测记录列表
// @Summary 获取检测记录列表
// @Description 分页获取检测记录，支持按预测结果、威胁等级、来源和时间范围过滤
// @Tags 威胁检测
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Param prediction query string false "预测结果过滤" Enums(Normal, Threat)
// @Param threat_level query string false "威胁等级过滤" Enums(Low, Medium, High, Critical)
// @Param source query string false "来源过滤"
// @Param start_time query string false "起始时间(RFC3339)"
// @Param end_time query string false "结束时间(RFC3339)"
// @Success 200 {object} PaginatedResponse "获取成功"
// @Router /detections [get]
func (c *DetectionController) GetDetectionList(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)

	filter := service.DetectionFilter{
		Prediction:  r.URL.Query().Get("prediction"),
		ThreatLevel: r.URL.Query().Get("threat_level"),
		Source:      r.URL.Query().Get("source"),
	}

	if startStr := r.URL.Query().Get("start_time"); startStr != "" {
		if start, err := time.Parse(time.RFC3339, startStr); err == nil {
			filter.StartTime = &start
		} else {
			render.Render(w, r, ErrorResponse(http.StatusBadRequest, "起始时间格式无效，需要RFC3339格式", err))
			return
		}
	}
	if endStr := r.URL.Query().Get("end_time"); endStr != "" {
		if end, err := time.Parse(time.RFC3339, endStr); err == nil {
			filter.EndTime = &end
		} else {
			render.Render(w, r, ErrorResponse(http.StatusBadRequest, "结束时间格式无效，需要RFC3339格式", err))
			return
		}
	}

	records, total, err := c.detectionService.GetDetectionList(page, size, filter)
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取检测记录列表失败", err))
		return
	}

	render.Render(w, r, PagedResponse("获取检测记录列表成功", records, total, page, size))
}

// GetDetection 获取检测记录详情
// @Summary 获取检测记录详情
// @Description 根据记录ID获取检测记录详情，包含关联告警
// @Tags 威胁检测
// @Produce json
// @Param id path string true "检测记录ID"
// @Success 200 {object} APIResponse{data=models.DetectionRecord} "获取成功"
// @Failure 404 {object} APIResponse "记录不存在"
// @Router /detections/{id} [get]
func (c *DetectionController) GetDetection(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "id")
	if recordID == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "记录ID不能为空", nil))
		return
	}

	record, err := c.detectionService.GetDetection(recordID)
	if err != nil {
		if errors.Is(err, service.ErrDetectionNotFound) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "检测记录不存在", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取检测记录失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("获取检测记录成功", record))
}

// DeleteDetection 删除检测记录
// @Summary 删除检测记录
// @Description 删除检测记录及其关联告警
// @Tags 威胁检测
// @Produce json
// @Param id path string true "检测记录ID"
// @Success 200 {object} APIResponse "删除成功"
// @Failure 404 {object} APIResponse "记录不存在"
// @Router /detections/{id} [delete]
func (c *DetectionController) DeleteDetection(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "id")
	if recordID == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "记录ID不能为空", nil))
		return
	}

	if err := c.detectionService.DeleteDetection(recordID); err != nil {
		if errors.Is(err, service.ErrDetectionNotFound) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "检测记录不存在", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "删除检测记录失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("检测记录删除成功", nil))
}

// GetDetectionStats 获取检测统计
// @Summary 获取检测统计
// @Description 返回检测总数、威胁分布和未处理告警数，用于仪表盘展示
// @Tags 威胁检测
// @Produce json
// @Success 200 {object} APIResponse{data=service.DetectionStats} "获取成功"
// @Router /detections/stats [get]
func (c *DetectionController) GetDetectionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.detectionService.GetDetectionStats()
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取检测统计失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("获取检测统计成功", stats))
}

// === 告警处置 ===

// GetAlertList 获取告警列表
// @Summary 获取告警列表
// @Description 分页获取告警列表，支持按状态和严重程度过滤
// @Tags 告警管理
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Param status query string false "状态过滤" Enums(Open, Acknowledged, Resolved, False Positive)
// @Param severity query string false "严重程度过滤" Enums(Low, Medium, High, Critical)
// @Success 200 {object} PaginatedResponse "获取成功"
// @Router /alerts [get]
func (c *DetectionController) GetAlertList(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	status := r.URL.Query().Get("status")
	severity := r.URL.Query().Get("severity")

	alerts, total, err := c.detectionService.GetAlertList(page, size, status, severity)
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取告警列表失败", err))
		return
	}

	render.Render(w, r, PagedResponse("获取告警列表成功", alerts, total, page, size))
}

// AcknowledgeAlertRequest 告警认领请求
type AcknowledgeAlertRequest struct {
	AssignedTo string `json:"assigned_to" example:"operator01"`
}

// AcknowledgeAlert 认领告警
// @Summary 认领告警
// @Description 将告警标记为已认领并指定处理人
// @Tags 告警管理
// @Accept json
// @Produce json
// @Param id path string true "告警ID"
// @Param request body AcknowledgeAlertRequest true "认领请求"
// @Success 200 {object} APIResponse{data=models.Alert} "认领成功"
// @Failure 404 {object} APIResponse "告警不存在"
// @Router /alerts/{id}/acknowledge [post]
func (c *DetectionController) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	if alertID == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "告警ID不能为空", nil))
		return
	}

	var req AcknowledgeAlertRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}
	if req.AssignedTo == "" {
		if caller, ok := callerName(r); ok {
			req.AssignedTo = caller
		} else {
			render.Render(w, r, ErrorResponse(http.StatusBadRequest, "处理人不能为空", nil))
			return
		}
	}

	alert, err := c.detectionService.AcknowledgeAlert(alertID, req.AssignedTo)
	if err != nil {
		if errors.Is(err, service.ErrAlertNotFound) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "告警不存在", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "认领告警失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("告警认领成功", alert))
}

// ResolveAlertRequest 告警关闭请求
type ResolveAlertRequest struct {
	Notes         string `json:"notes" example:"人工确认为误报"`
	FalsePositive bool   `json:"false_positive" example:"false"`
}

// ResolveAlert 关闭告警
// @Summary 关闭告警
// @Description 将告警标记为已解决或误报
// @Tags 告警管理
// @Accept json
// @Produce json
// @Param id path string true "告警ID"
// @Param request body ResolveAlertRequest true "关闭请求"
// @Success 200 {object} APIResponse{data=models.Alert} "关闭成功"
// @Failure 404 {object} APIResponse "告警不存在"
// @Router /alerts/{id}/resolve [post]
func (c *DetectionController) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	if alertID == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "告警ID不能为空", nil))
		return
	}

	var req ResolveAlertRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}

	alert, err := c.detectionService.ResolveAlert(alertID, req.Notes, req.FalsePositive)
	if err != nil {
		if errors.Is(err, service.ErrAlertNotFound) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "告警不存在", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "关闭告警失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("告警关闭成功", alert))
}

// === 威胁融合评估 ===

// FusionAssessRequest 威胁融合评估请求
type FusionAssessRequest struct {
	RFScore         float64            `json:"rf_score" example:"0.85"`
	GNSSScore       float64            `json:"gnss_score" example:"0.6"`
	AttackType      string             `json:"attack_type" example:"gps_spoofing"`
	OtherIndicators map[string]float64 `json:"other_indicators"`
}

// AssessThreat 威胁融合评估
// @Summary 威胁融合评估
// @Description 将模型分数与GNSS干扰分数加权融合，输出威胁等级和响应建议
// @Tags 威胁检测
// @Accept json
// @Produce json
// @Param request body FusionAssessRequest true "融合评估请求"
// @Success 200 {object} APIResponse{data=fusion.Assessment} "评估成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Router /detections/assess [post]
func (c *DetectionController) AssessThreat(w http.ResponseWriter, r *http.Request) {
	var req FusionAssessRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}

	if req.RFScore < 0 || req.RFScore > 1 || req.GNSSScore < 0 || req.GNSSScore > 1 {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "分数必须在[0,1]范围内", nil))
		return
	}

	assessment := c.fusionEngine.Assess(req.RFScore, req.GNSSScore, req.AttackType, req.OtherIndicators)
	render.Render(w, r, SuccessResponse("威胁融合评估完成", assessment))
}
