/*
 * @module api/middleware/api_key_auth
 * @description API Key鉴权中间件，验证X-API-Key或Bearer格式密钥的有效性
 * @architecture 中间件模式 - HTTP请求拦截和验证
 * @documentReference service/auth_service.go
 * @stateFlow 密钥提取 -> 缓存查询 -> bcrypt验证 -> 上下文注入 -> 下一个处理器
 * @rules 统一鉴权、安全验证、错误处理
 * @dependencies net/http, strings, context, sync
 * @refs service/auth_service.go, api/routes.go
 */

package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"

	"uavsec-service/service/models"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	// APIKeyIDKey API Key ID在上下文中的键
	APIKeyIDKey ContextKey = "api_key_id"
	// CallerKey 调用方名称在上下文中的键
	CallerKey ContextKey = "caller"
)

// KeyVerifier API Key验证接口
type KeyVerifier interface {
	VerifyAPIKey(plaintext string) (*models.APIKey, error)
}

// APIKeyAuthMiddleware API Key认证中间件
type APIKeyAuthMiddleware struct {
	verifier KeyVerifier
	// 验证结果缓存，避免每个请求都做bcrypt比较
	cache      map[string]*keyCacheEntry
	cacheMutex sync.RWMutex
	cacheTTL   time.Duration
	// 白名单路径（不需要鉴权）
	whitelistPaths []string
}

// keyCacheEntry 缓存条目
type keyCacheEntry struct {
	keyID     string
	caller    string
	expiresAt time.Time
}

// NewAPIKeyAuthMiddleware 创建API Key认证中间件实例
func NewAPIKeyAuthMiddleware(verifier KeyVerifier) *APIKeyAuthMiddleware {
	return &APIKeyAuthMiddleware{
		verifier: verifier,
		cache:    make(map[string]*keyCacheEntry),
		cacheTTL: 5 * time.Minute,
		whitelistPaths: []string{
			"/health",  // 健康检查
			"/ready",   // 就绪检查
			"/metrics", // Prometheus指标
			"/swagger", // Swagger文档
			"/sse",     // SSE连接（按用户名订阅）
		},
	}
}

// AddWhitelistPath 添加白名单路径
func (m *APIKeyAuthMiddleware) AddWhitelistPath(path string) {
	m.whitelistPaths = append(m.whitelistPaths, path)
}

// IsWhitelistPath 检查路径是否在白名单中
func (m *APIKeyAuthMiddleware) IsWhitelistPath(path string) bool {
	for _, whitelistPath := range m.whitelistPaths {
		// 支持前缀匹配
		if strings.HasPrefix(path, whitelistPath) {
			return true
		}
	}
	return false
}

// Middleware 认证中间件处理函数
func (m *APIKeyAuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 检查是否在白名单中
		if m.IsWhitelistPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			m.respondUnauthorized(w, r, "缺少API Key，请通过X-API-Key头或Authorization Bearer提供")
			return
		}

		// 先检查缓存
		if entry := m.getFromCache(key); entry != nil {
			ctx := context.WithValue(r.Context(), APIKeyIDKey, entry.keyID)
			ctx = context.WithValue(ctx, CallerKey, entry.caller)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		apiKey, err := m.verifier.VerifyAPIKey(key)
		if err != nil {
			m.respondUnauthorized(w, r, "API Key无效或已过期")
			return
		}

		m.saveToCache(key, apiKey)

		ctx := context.WithValue(r.Context(), APIKeyIDKey, apiKey.ID)
		ctx = context.WithValue(ctx, CallerKey, apiKey.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractAPIKey 从请求头中提取API Key
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// getFromCache 从缓存中获取验证结果
func (m *APIKeyAuthMiddleware) getFromCache(key string) *keyCacheEntry {
	m.cacheMutex.RLock()
	defer m.cacheMutex.RUnlock()

	entry, exists := m.cache[key]
	if !exists {
		return nil
	}

	if time.Now().After(entry.expiresAt) {
		// 异步删除过期缓存
		go m.removeFromCache(key)
		return nil
	}

	return entry
}

// saveToCache 保存验证结果到缓存
func (m *APIKeyAuthMiddleware) saveToCache(key string, apiKey *models.APIKey) {
	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	// 缓存过期时间取密钥过期时间和缓存TTL的较小值
	cacheExpiry := time.Now().Add(m.cacheTTL)
	if apiKey.ExpiresAt != nil && apiKey.ExpiresAt.Before(cacheExpiry) {
		cacheExpiry = *apiKey.ExpiresAt
	}

	m.cache[key] = &keyCacheEntry{
		keyID:     apiKey.ID,
		caller:    apiKey.Name,
		expiresAt: cacheExpiry,
	}
}

// removeFromCache 从缓存中删除密钥
func (m *APIKeyAuthMiddleware) removeFromCache(key string) {
	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	delete(m.cache, key)
}

// InvalidateKey 使指定密钥的缓存失效（撤销密钥后调用）
func (m *APIKeyAuthMiddleware) InvalidateKey(keyID string) {
	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	for key, entry := range m.cache {
		if entry.keyID == keyID {
			delete(m.cache, key)
		}
	}
}

// ClearExpiredCache 清理过期缓存（可以定期调用）
func (m *APIKeyAuthMiddleware) ClearExpiredCache() int {
	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	now := time.Now()
	clearedCount := 0

	for key, entry := range m.cache {
		if now.After(entry.expiresAt) {
			delete(m.cache, key)
			clearedCount++
		}
	}

	return clearedCount
}

// respondUnauthorized 返回401未授权响应
func (m *APIKeyAuthMiddleware) respondUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	render.JSON(w, r, map[string]interface{}{
		"status":  http.StatusUnauthorized,
		"message": message,
		"error":   "Unauthorized",
	})
}

// GetCallerFromContext 从上下文中获取调用方名称
func GetCallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(CallerKey).(string)
	return caller, ok
}

// GetAPIKeyIDFromContext 从上下文中获取API Key ID
func GetAPIKeyIDFromContext(ctx context.Context) (string, bool) {
	keyID, ok := ctx.Value(APIKeyIDKey).(string)
	return keyID, ok
}
