/*
 * @module api/controllers/training_controller
 * @description 模型训练控制器，提供训练任务创建、查询、数据集上传与分析API
 * @architecture MVC架构 - 控制器层
 * @documentReference service/training_service.go
 * @stateFlow HTTP请求 -> 参数验证 -> 业务逻辑处理 -> 响应返回
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies uavsec-service/service, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/mlpipeline/trainer.go
 */

package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"uavsec-service/api/middleware"
	"uavsec-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// TrainingController 模型训练控制器
type TrainingController struct {
	trainingService *service.TrainingService
}

// NewTrainingController 创建训练控制器实例
func NewTrainingController() *TrainingController {
	return &TrainingController{
		trainingService: service.GlobalTrainingService,
	}
}

// StartTraining 创建训练任务
// @Summary 创建训练任务
// @Description 创建并异步启动模型训练任务，训练进度通过SSE推送
// @Tags 模型训练
// @Accept json
// @Produce json
// @Param request body service.CreateTrainingRequest true "训练任务请求"
// @Success 200 {object} APIResponse{data=models.TrainingRun} "创建成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Failure 409 {object} APIResponse "已有训练任务执行中"
// @Router /training/runs [post]
func (c *TrainingController) StartTraining(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTrainingRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}

	if req.Algorithm == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "算法不能为空", nil))
		return
	}
	if req.DatasetPath == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "数据集路径不能为空", nil))
		return
	}
	if req.CreatedBy == "" {
		if caller, ok := callerName(r); ok {
			req.CreatedBy = caller
		}
	}

	run, err := c.trainingService.StartTraining(r.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrTrainingInProgress) {
			render.Render(w, r, ErrorResponse(http.StatusConflict, "创建训练任务失败", err))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "创建训练任务失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("训练任务已创建", run))
}

// GetTrainingRun 获取训练任务详情
// @Summary 获取训练任务详情
// @Description 根据任务ID获取训练任务详情，包含关联的模型信息
// @Tags 模型训练
// @Produce json
// @Param id path string true "训练任务ID"
// @Success 200 {object} APIResponse{data=models.TrainingRun} "获取成功"
// @Failure 404 {object} APIResponse "任务不存在"
// @Router /training/runs/{id} [get]
func (c *TrainingController) GetTrainingRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "任务ID不能为空", nil))
		return
	}

	run, err := c.trainingService.GetTrainingRun(runID)
	if err != nil {
		if errors.Is(err, service.ErrTrainingRunNotFound) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "训练任务不存在", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取训练任务失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("获取训练任务成功", run))
}

// GetTrainingRunList 获取训练任务列表
// @Summary 获取训练任务列表
// @Description 分页获取训练任务列表，支持按状态和算法过滤
// @Tags 模型训练
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Param status query string false "状态过滤" Enums(pending, running, completed, failed)
// @Param algorithm query string false "算法过滤"
// @Success 200 {object} PaginatedResponse "获取成功"
// @Router /training/runs [get]
func (c *TrainingController) GetTrainingRunList(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	status := r.URL.Query().Get("status")
	algorithm := r.URL.Query().Get("algorithm")

	runs, total, err := c.trainingService.GetTrainingRunList(page, size, status, algorithm)
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取训练任务列表失败", err))
		return
	}

	render.Render(w, r, PagedResponse("获取训练任务列表成功", runs, total, page, size))
}

// GetSupportedAlgorithms 获取支持的算法列表
// @Summary 获取支持的算法列表
// @Description 返回支持的训练算法及各自的默认超参数
// @Tags 模型训练
// @Produce json
// @Success 200 {object} APIResponse "获取成功"
// @Router /training/algorithms [get]
func (c *TrainingController) GetSupportedAlgorithms(w http.ResponseWriter, r *http.Request) {
	algorithms := c.trainingService.GetSupportedAlgorithms()
	render.Render(w, r, SuccessResponse("获取算法列表成功", algorithms))
}

// AnalyzeDatasetRequest 数据集分析请求
type AnalyzeDatasetRequest struct {
	DatasetPath string `json:"dataset_path" example:"./datasets/uav_traffic.csv"`
}

// AnalyzeDataset 分析数据集
// @Summary 分析数据集
// @Description 读取CSV数据集并返回样本数、类别分布、特征统计信息
// @Tags 模型训练
// @Accept json
// @Produce json
// @Param request body AnalyzeDatasetRequest true "数据集分析请求"
// @Success 200 {object} APIResponse "分析成功"
// @Failure 400 {object} APIResponse "数据集无效"
// @Router /training/datasets/analyze [post]
func (c *TrainingController) AnalyzeDataset(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeDatasetRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}
	if req.DatasetPath == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "数据集路径不能为空", nil))
		return
	}

	stats, err := c.trainingService.AnalyzeDataset(req.DatasetPath)
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "数据集分析失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("数据集分析成功", stats))
}

// UploadDataset 上传数据集
// @Summary 上传数据集
// @Description 上传CSV数据集文件，保存到数据集目录后可用于训练
// @Tags 模型训练
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV数据集文件"
// @Success 200 {object} APIResponse "上传成功"
// @Failure 400 {object} APIResponse "文件无效"
// @Router /training/datasets [post]
func (c *TrainingController) UploadDataset(w http.ResponseWriter, r *http.Request) {
	// 数据集上限100MB
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "解析上传文件失败", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "缺少上传文件", err))
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "仅支持CSV格式数据集", nil))
		return
	}

	datasetDir := c.trainingService.DatasetDir()
	if err := os.MkdirAll(datasetDir, 0o755); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "创建数据集目录失败", err))
		return
	}

	// 文件名加时间戳前缀避免覆盖
	name := fmt.Sprintf("%d_%s", time.Now().Unix(), filepath.Base(header.Filename))
	destPath := filepath.Join(datasetDir, name)

	dest, err := os.Create(destPath)
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "保存数据集失败", err))
		return
	}
	defer dest.Close()

	written, err := io.Copy(dest, file)
	if err != nil {
		os.Remove(destPath)
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "写入数据集失败", err))
		return
	}

	// 上传后立即校验数据集可解析
	stats, err := c.trainingService.AnalyzeDataset(destPath)
	if err != nil {
		os.Remove(destPath)
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "数据集校验失败", err))
		return
	}

	caller, _ := callerName(r)
	clientIP := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		clientIP = forwarded
	}
	c.trainingService.RecordDatasetUpload(destPath, written, stats.TotalSamples, caller, clientIP)

	render.Render(w, r, SuccessResponse("数据集上传成功", map[string]interface{}{
		"dataset_path": destPath,
		"size_bytes":   written,
		"stats":        stats,
	}))
}

// parsePagination 解析分页参数，size上限100
func parsePagination(r *http.Request) (int, int) {
	page := 1
	size := 10
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s > 0 && s <= 100 {
		size = s
	}
	return page, size
}

// callerName 从鉴权上下文中获取调用方名称
func callerName(r *http.Request) (string, bool) {
	caller, ok := middleware.GetCallerFromContext(r.Context())
	return caller, ok && caller != ""
}
