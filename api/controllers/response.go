package controllers

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`

	httpStatus int `json:"-"`
}

// Render 实现render.Renderer接口
func (a *APIResponse) Render(w http.ResponseWriter, r *http.Request) error {
	status := a.httpStatus
	if status == 0 {
		status = http.StatusOK
	}
	render.Status(r, status)
	return nil
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total" example:"100"`
	Page   int         `json:"page" example:"1"`
	Size   int         `json:"size" example:"10"`
}

// Render 实现render.Renderer接口
func (p *PaginatedResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusOK)
	return nil
}

// SuccessResponse 构造成功响应，status固定为0
func SuccessResponse(msg string, data interface{}) render.Renderer {
	return &APIResponse{
		Status:     0,
		Msg:        msg,
		Data:       data,
		httpStatus: http.StatusOK,
	}
}

// PagedResponse 构造分页成功响应
func PagedResponse(msg string, data interface{}, total int64, page, size int) render.Renderer {
	return &PaginatedResponse{
		Status: 0,
		Msg:    msg,
		Data:   data,
		Total:  total,
		Page:   page,
		Size:   size,
	}
}

// ErrorResponse 构造错误响应，HTTP状态码与业务status一致
func ErrorResponse(httpStatus int, msg string, err error) render.Renderer {
	if err != nil && msg != "" {
		msg = msg + ": " + err.Error()
	} else if err != nil {
		msg = err.Error()
	}
	return &APIResponse{
		Status:     httpStatus,
		Msg:        msg,
		httpStatus: httpStatus,
	}
}

// BadRequestResponse 构造400错误响应
func BadRequestResponse(msg string, err error) render.Renderer {
	return ErrorResponse(http.StatusBadRequest, msg, err)
}

// NotFoundResponse 构造404错误响应
func NotFoundResponse(msg string) render.Renderer {
	return ErrorResponse(http.StatusNotFound, msg, nil)
}

// InternalErrorResponse 构造500错误响应
func InternalErrorResponse(msg string, err error) render.Renderer {
	return ErrorResponse(http.StatusInternalServerError, msg, err)
}
