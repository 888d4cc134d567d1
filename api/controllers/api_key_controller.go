/*
 * @module api/controllers/api_key_controller
 * @description API密钥管理控制器，提供密钥创建、查询与撤销API
 * @architecture MVC架构 - 控制器层
 * @documentReference service/auth_service.go
 * @stateFlow HTTP请求 -> 参数验证 -> 业务逻辑处理 -> 响应返回
 * @rules 明文密钥仅在创建响应中返回一次，服务端只保存bcrypt哈希
 * @dependencies uavsec-service/service, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs api/middleware/api_key_auth.go
 */

package controllers

import (
	"errors"
	"net/http"
	"time"

	"uavsec-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// APIKeyController API密钥管理控制器
type APIKeyController struct {
	authService *service.AuthService
}

// NewAPIKeyController 创建API密钥控制器实例
func NewAPIKeyController() *APIKeyController {
	return &APIKeyController{
		authService: service.GlobalAuthService,
	}
}

// CreateAPIKeyRequest 创建密钥请求
type CreateAPIKeyRequest struct {
	Name      string     `json:"name" example:"ground-station-01"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateAPIKey 创建API密钥
// @Summary 创建API密钥
// @Description 创建新的API密钥，明文密钥仅在本次响应中返回
// @Tags 密钥管理
// @Accept json
// @Produce json
// @Param request body CreateAPIKeyRequest true "创建密钥请求"
// @Success 200 {object} APIResponse "创建成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Router /auth/keys [post]
func (c *APIKeyController) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}

	if req.Name == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "密钥名称不能为空", nil))
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "过期时间不能早于当前时间", nil))
		return
	}

	createdBy := "system"
	if caller, ok := callerName(r); ok {
		createdBy = caller
	}

	key, plaintext, err := c.authService.CreateAPIKey(req.Name, createdBy, req.ExpiresAt)
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "创建API密钥失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("API密钥创建成功，请妥善保存，明文仅返回一次", map[string]interface{}{
		"key":       key,
		"plaintext": plaintext,
	}))
}

// ListAPIKeys 获取API密钥列表
// @Summary 获取API密钥列表
// @Description 返回所有API密钥（不含哈希），用于管理界面展示
// @Tags 密钥管理
// @Produce json
// @Success 200 {object} APIResponse "获取成功"
// @Router /auth/keys [get]
func (c *APIKeyController) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := c.authService.ListAPIKeys()
	if err != nil {
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "获取API密钥列表失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("获取API密钥列表成功", keys))
}

// RevokeAPIKey 撤销API密钥
// @Summary 撤销API密钥
// @Description 撤销指定API密钥，撤销后密钥立即失效
// @Tags 密钥管理
// @Produce json
// @Param id path string true "密钥ID"
// @Success 200 {object} APIResponse "撤销成功"
// @Failure 404 {object} APIResponse "密钥不存在"
// @Router /auth/keys/{id} [delete]
func (c *APIKeyController) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "id")
	if keyID == "" {
		render.Render(w, r, ErrorResponse(http.StatusBadRequest, "密钥ID不能为空", nil))
		return
	}

	if err := c.authService.RevokeAPIKey(keyID); err != nil {
		if errors.Is(err, service.ErrInvalidAPIKey) {
			render.Render(w, r, ErrorResponse(http.StatusNotFound, "密钥不存在或已撤销", nil))
			return
		}
		render.Render(w, r, ErrorResponse(http.StatusInternalServerError, "撤销API密钥失败", err))
		return
	}

	render.Render(w, r, SuccessResponse("API密钥撤销成功", nil))
}
