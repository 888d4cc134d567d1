/*
 * @module api/middleware/rate_limit
 * @description 检测接口限流中间件，基于Redis对全局和API Key两层计数
 * @architecture 中间件模式 - HTTP请求拦截
 * @documentReference service/rate_limiter/redis_rate_limiter.go
 * @stateFlow 组装限流规则 -> Redis计数检查 -> 放行或返回429
 * @rules 限流器不可用时放行请求，避免Redis故障阻断检测
 * @dependencies net/http, github.com/go-chi/render
 * @refs api/routes.go
 */

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"uavsec-service/service/rate_limiter"
)

// 检测接口默认限流配额
const (
	defaultGlobalWindow   = 60
	defaultGlobalRequests = 1000
	defaultKeyWindow      = 60
	defaultKeyRequests    = 200
)

// RateLimitMiddleware 检测接口限流中间件
type RateLimitMiddleware struct {
	limiter *rate_limiter.RedisRateLimiter
}

// NewRateLimitMiddleware 创建限流中间件，limiter为nil时所有请求直接放行
func NewRateLimitMiddleware(limiter *rate_limiter.RedisRateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// Middleware 限流处理函数
func (m *RateLimitMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		rules := []rate_limiter.RateLimitRule{
			{Type: "global", TimeWindow: defaultGlobalWindow, MaxRequests: defaultGlobalRequests},
		}
		if keyID, ok := GetAPIKeyIDFromContext(r.Context()); ok {
			rules = append(rules, rate_limiter.RateLimitRule{
				Type:        "api_key",
				TargetID:    keyID,
				TimeWindow:  defaultKeyWindow,
				MaxRequests: defaultKeyRequests,
			})
		}

		result, err := m.limiter.CheckRateLimit(r.Context(), rules)
		if err != nil {
			// Redis故障时放行，检测可用性优先于限流
			slog.Warn("限流检查失败，请求放行", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			render.JSON(w, r, map[string]interface{}{
				"status":  http.StatusTooManyRequests,
				"message": result.Message,
				"error":   "Too Many Requests",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
