/*
 * @module api/controllers/model_controller
 * @description 模型注册表控制器，提供模型查询、激活、删除与对比API
 * @architecture MVC架构 - 控制器层
 * @documentReference service/registry_service.go
 * @stateFlow HTTP请求 -> 参数验证 -> 业务逻辑处理 -> 响应返回
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies uavsec-service/service, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/detection_service.go
 */

package controllers

import (
	"errors"
	"net/http"

	"uavsec-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ModelController 模型注册表控制器
type ModelController struct {
	registryService  *service.RegistryService
	detectionService *service.DetectionService
}

// NewModelController 创建模型控制器实例
func NewModelController() *ModelController {
	return &ModelController{
		registryService:  service.GlobalRegistryService,
		detectionService: service.GlobalDetectionService,
	}
}

// GetModelList 获取模型列表
// @Summary 获取模型列表
// @Description 分页获取已注册模型列表，支持按名称和激活状态过滤
// @Tags 模型管理
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Param name query string false "模型名称过滤"
// @Param is_active query bool false "激活状态过滤"
// @Success 200 {object} PaginatedResponse "获取成功"
// @Router /models [get]
func (c *ModelController) GetModelList(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	name := r.URL.Query().Get("name")

	var isActive *bool
	switch r.URL.Query().Get("is_active") {
	case "true":
		val := true
		isActive = &val
	case "false":
		val := false
		isActive = &val
	}

	models, total, err := c.registryService.GetModelList(page, size, name, isActive)
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取模型列表失败", err))
		return
	}

	render.Render(w, r, PagedResponse("获取模型列表成功", models, total, page, size))
}

// GetModel 获取模型详情
// @Summary 获取模型详情
// @Description 根据模型ID获取模型详情
// @Tags 模型管理
// @Produce json
// @Param id path string true "模型ID"
// @Success 200 {object} APIResponse{data=models.MLModel} "获取成功"
// @Failure 404 {object} APIResponse "模型不存在"
// @Router /models/{id} [get]
func (c *ModelController) GetModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")
	if modelID == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "模型ID不能为空", nil))
		return
	}

	model, err := c.registryService.GetModel(modelID)
	if err != nil {
		if errors.Is(err, service.ErrModelNotFound) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "模型不存在", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取模型失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("获取模型成功", model))
}

// GetActiveModel 获取当前激活模型
// @Summary 获取当前激活模型
// @Description 返回当前用于在线检测的激活模型
// @Tags 模型管理
// @Produce json
// @Success 200 {object} APIResponse{data=models.MLModel} "获取成功"
// @Failure 404 {object} APIResponse "无激活模型"
// @Router /models/active [get]
func (c *ModelController) GetActiveModel(w http.ResponseWriter, r *http.Request) {
	model, err := c.registryService.GetActiveModel()
	if err != nil {
		if errors.Is(err, service.ErrNoActiveModel) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "当前没有激活的模型", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取激活模型失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("获取激活模型成功", model))
}

// ActivateModel 激活模型
// @Summary 激活模型
// @Description 激活指定模型用于在线检测，同名其他版本自动取消激活
// @Tags 模型管理
// @Produce json
// @Param id path string true "模型ID"
// @Success 200 {object} APIResponse{data=models.MLModel} "激活成功"
// @Failure 404 {object} APIResponse "模型不存在"
// @Router /models/{id}/activate [post]
func (c *ModelController) ActivateModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")
	if modelID == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "模型ID不能为空", nil))
		return
	}

	operator := "system"
	if caller, ok := callerName(r); ok {
		operator = caller
	}

	model, err := c.registryService.ActivateModel(modelID, operator)
	if err != nil {
		if errors.Is(err, service.ErrModelNotFound) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "模型不存在", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "激活模型失败", err))
		return
	}

	// 激活切换后使检测服务的模型缓存失效
	if c.detectionService != nil {
		c.detectionService.InvalidateModelCache()
	}

	render.Render(w, r, SuccessResponse("模型激活成功", model))
}

// DeleteModel 删除模型
// @Summary 删除模型
// @Description 删除指定模型及其磁盘上的产物文件
// @Tags 模型管理
// @Produce json
// @Param id path string true "模型ID"
// @Success 200 {object} APIResponse "删除成功"
// @Failure 404 {object} APIResponse "模型不存在"
// @Router /models/{id} [delete]
func (c *ModelController) DeleteModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")
	if modelID == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "模型ID不能为空", nil))
		return
	}

	operator := "system"
	if caller, ok := callerName(r); ok {
		operator = caller
	}

	if err := c.registryService.DeleteModel(modelID, operator); err != nil {
		if errors.Is(err, service.ErrModelNotFound) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "模型不存在", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "删除模型失败", err))
		return
	}

	if c.detectionService != nil {
		c.detectionService.InvalidateModelCache()
	}

	render.Render(w, r, SuccessResponse("模型删除成功", nil))
}

// CompareModelsRequest 模型对比请求
type CompareModelsRequest struct {
	ModelIDs []string `json:"model_ids"`
}

// CompareModels 对比模型
// @Summary 对比模型
// @Description 对比多个模型的评估指标，标出各指标的最优模型
// @Tags 模型管理
// @Accept json
// @Produce json
// @Param request body CompareModelsRequest true "模型对比请求"
// @Success 200 {object} APIResponse{data=service.ModelComparison} "对比成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Router /models/compare [post]
func (c *ModelController) CompareModels(w http.ResponseWriter, r *http.Request) {
	var req CompareModelsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}

	if len(req.ModelIDs) < 2 {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "至少需要两个模型进行对比", nil))
		return
	}

	comparison, err := c.registryService.CompareModels(req.ModelIDs)
	if err != nil {
		if errors.Is(err, service.ErrModelNotFound) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "对比的模型中存在无效ID", err))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "模型对比失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("模型对比成功", comparison))
}

// GetFeatureImportances 获取激活模型特征重要性
// @Summary 获取特征重要性
// @Description 返回当前激活模型的特征重要性，仅随机森林模型支持
// @Tags 模型管理
// @Produce json
// @Success 200 {object} APIResponse "获取成功"
// @Failure 404 {object} APIResponse "无激活模型或模型不支持"
// @Router /models/active/feature-importances [get]
func (c *ModelController) GetFeatureImportances(w http.ResponseWriter, r *http.Request) {
	importances, err := c.detectionService.GetFeatureImportances()
	if err != nil {
		if errors.Is(err, service.ErrNoActiveModel) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "当前没有激活的模型", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "获取特征重要性失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("获取特征重要性成功", importances))
}
