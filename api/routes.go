/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference api/controllers
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/middleware
 */

package api

import (
	"uavsec-service/api/controllers"
	apimiddleware "uavsec-service/api/middleware"
	"uavsec-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-API-Key"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API Key鉴权，白名单路径除外
	authMiddleware := apimiddleware.NewAPIKeyAuthMiddleware(service.GlobalAuthService)
	r.Use(authMiddleware.Middleware)

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// SSE事件订阅
	eventController := controllers.NewEventController()
	r.Get("/sse/{user_name}", eventController.HandleSSE)

	// 事件管理
	r.Route("/events", func(r chi.Router) {
		r.Post("/send", eventController.SendEvent)
		r.Post("/broadcast", eventController.BroadcastEvent)
		r.Get("/connections", eventController.GetSSEConnectionList)
		r.Get("/history", eventController.GetEventHistoryList)
	})

	// 模型训练
	r.Route("/training", func(r chi.Router) {
		trainingController := controllers.NewTrainingController()

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", trainingController.StartTraining)
			r.Get("/", trainingController.GetTrainingRunList)
			r.Get("/{id}", trainingController.GetTrainingRun)
		})

		r.Get("/algorithms", trainingController.GetSupportedAlgorithms)

		r.Route("/datasets", func(r chi.Router) {
			r.Post("/", trainingController.UploadDataset)
			r.Post("/analyze", trainingController.AnalyzeDataset)
		})
	})

	// 模型注册表
	r.Route("/models", func(r chi.Router) {
		modelController := controllers.NewModelController()

		r.Get("/", modelController.GetModelList)
		r.Post("/compare", modelController.CompareModels)
		r.Get("/active", modelController.GetActiveModel)
		r.Get("/active/feature-importances", modelController.GetFeatureImportances)
		r.Get("/{id}", modelController.GetModel)
		r.Delete("/{id}", modelController.DeleteModel)
		r.Post("/{id}/activate", modelController.ActivateModel)
	})

	// 威胁检测
	r.Route("/detections", func(r chi.Router) {
		detectionController := controllers.NewDetectionController()
		rateLimitMiddleware := apimiddleware.NewRateLimitMiddleware(service.GlobalRateLimiter)

		// 在线检测接口带限流
		r.With(rateLimitMiddleware.Middleware).Post("/predict", detectionController.Predict)
		r.Post("/assess", detectionController.AssessThreat)

		r.Get("/", detectionController.GetDetectionList)
		r.Get("/stats", detectionController.GetDetectionStats)
		r.Get("/{id}", detectionController.GetDetection)
		r.Delete("/{id}", detectionController.DeleteDetection)
	})

	// 告警处置
	r.Route("/alerts", func(r chi.Router) {
		detectionController := controllers.NewDetectionController()

		r.Get("/", detectionController.GetAlertList)
		r.Post("/{id}/acknowledge", detectionController.AcknowledgeAlert)
		r.Post("/{id}/resolve", detectionController.ResolveAlert)
	})

	// 系统配置
	r.Route("/config", func(r chi.Router) {
		configController := controllers.NewConfigController()

		r.Get("/", configController.GetAllConfigs)
		r.Post("/batch", configController.BatchUpdateConfigs)
		r.Get("/{key}", configController.GetConfig)
		r.Put("/{key}", configController.UpdateConfig)
	})

	// API密钥管理
	r.Route("/auth", func(r chi.Router) {
		apiKeyController := controllers.NewAPIKeyController()

		r.Route("/keys", func(r chi.Router) {
			r.Post("/", apiKeyController.CreateAPIKey)
			r.Get("/", apiKeyController.ListAPIKeys)
			r.Delete("/{id}", apiKeyController.RevokeAPIKey)
		})
	})

	// 仪表盘
	r.Route("/dashboard", func(r chi.Router) {
		dashboardController := controllers.NewDashboardController()

		r.Get("/overview", dashboardController.GetDashboardOverview)
		r.Get("/models", dashboardController.GetModelStats)
		r.Get("/training", dashboardController.GetTrainingStats)
		r.Get("/alerts", dashboardController.GetAlertStats)
		r.Get("/trend", dashboardController.GetDailyTrend)
	})
}
