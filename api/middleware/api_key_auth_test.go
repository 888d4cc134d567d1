/*
 * @module api/middleware/api_key_auth_test
 * @description API Key鉴权中间件单元测试
 * @architecture 测试层
 * @documentReference service/auth_service.go
 * @stateFlow 构造假验证器 -> 发起请求 -> 断言鉴权结果与上下文注入
 * @rules 覆盖白名单放行、密钥提取、验证缓存与缓存失效
 * @dependencies github.com/stretchr/testify, net/http/httptest
 * @refs api/middleware/api_key_auth.go
 */

package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"uavsec-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVerifier 记录验证次数的假验证器
type fakeVerifier struct {
	key   *models.APIKey
	err   error
	calls int
}

func (f *fakeVerifier) VerifyAPIKey(plaintext string) (*models.APIKey, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.key, nil
}

func authTestHandler(t *testing.T, expectCaller string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if expectCaller != "" {
			caller, ok := GetCallerFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, expectCaller, caller)

			_, ok = GetAPIKeyIDFromContext(r.Context())
			assert.True(t, ok)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestWhitelistPathsBypassAuth(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("should not be called")}
	m := NewAPIKeyAuthMiddleware(verifier)
	handler := m.Middleware(authTestHandler(t, ""))

	for _, path := range []string{"/health", "/ready", "/metrics", "/swagger/index.html", "/sse/alice"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	assert.Equal(t, 0, verifier.calls)
}

func TestMissingKeyRejected(t *testing.T) {
	m := NewAPIKeyAuthMiddleware(&fakeVerifier{})
	handler := m.Middleware(authTestHandler(t, ""))

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "API Key")
}

func TestInvalidKeyRejected(t *testing.T) {
	m := NewAPIKeyAuthMiddleware(&fakeVerifier{err: errors.New("无效")})
	handler := m.Middleware(authTestHandler(t, ""))

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("X-API-Key", "uvk_bad_key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidKeyInjectsContext(t *testing.T) {
	verifier := &fakeVerifier{key: &models.APIKey{ID: "key-1", Name: "边缘网关"}}
	m := NewAPIKeyAuthMiddleware(verifier)
	handler := m.Middleware(authTestHandler(t, "边缘网关"))

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("X-API-Key", "uvk_abcd_secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Bearer形式同样可用
	req = httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Authorization", "Bearer uvk_abcd_secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerificationResultCached(t *testing.T) {
	verifier := &fakeVerifier{key: &models.APIKey{ID: "key-1", Name: "gateway"}}
	m := NewAPIKeyAuthMiddleware(verifier)
	handler := m.Middleware(authTestHandler(t, "gateway"))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/models", nil)
		req.Header.Set("X-API-Key", "uvk_abcd_secret")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// 命中缓存后不再做bcrypt验证
	assert.Equal(t, 1, verifier.calls)
}

func TestInvalidateKeyForcesReverify(t *testing.T) {
	verifier := &fakeVerifier{key: &models.APIKey{ID: "key-1", Name: "gateway"}}
	m := NewAPIKeyAuthMiddleware(verifier)
	handler := m.Middleware(authTestHandler(t, "gateway"))

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("X-API-Key", "uvk_abcd_secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	m.InvalidateKey("key-1")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, verifier.calls)
}

func TestCacheRespectsKeyExpiry(t *testing.T) {
	expires := time.Now().Add(10 * time.Millisecond)
	verifier := &fakeVerifier{key: &models.APIKey{ID: "key-1", Name: "gateway", ExpiresAt: &expires}}
	m := NewAPIKeyAuthMiddleware(verifier)
	handler := m.Middleware(authTestHandler(t, "gateway"))

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("X-API-Key", "uvk_abcd_secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	time.Sleep(20 * time.Millisecond)

	// 缓存过期后重新走验证器
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, verifier.calls)
}
