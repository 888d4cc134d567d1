/*
 * @module service/auth_service_test
 * @description API密钥鉴权服务单元测试
 * @architecture 测试层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 签发密钥 -> 明文校验 -> 吊销 -> 断言失效
 * @rules 覆盖明文格式、过期密钥拒绝与吊销后校验失败
 * @dependencies github.com/stretchr/testify, testutil
 * @refs service/auth_service.go
 */

package service

import (
	"strings"
	"testing"
	"time"

	"uavsec-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuthTest(t *testing.T) *AuthService {
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)
	return NewAuthService(tdb.DB)
}

func TestCreateAndVerifyAPIKey(t *testing.T) {
	svc := setupAuthTest(t)

	key, plaintext, err := svc.CreateAPIKey("边缘网关", "admin", nil)
	require.NoError(t, err)

	// 明文形如 uvk_<prefix>_<secret>，库中只存散列
	parts := strings.Split(plaintext, "_")
	require.Len(t, parts, 3)
	assert.Equal(t, "uvk", parts[0])
	assert.Equal(t, key.Prefix, parts[1])
	assert.NotContains(t, key.KeyHash, parts[2])

	verified, err := svc.VerifyAPIKey(plaintext)
	require.NoError(t, err)
	assert.Equal(t, key.ID, verified.ID)
	assert.NotNil(t, verified.LastUsedAt)
}

func TestVerifyAPIKeyRejectsMalformed(t *testing.T) {
	svc := setupAuthTest(t)

	for _, plaintext := range []string{"", "uvk_only_two_parts_extra", "abc_def_ghi", "uvk_noprefix"} {
		_, err := svc.VerifyAPIKey(plaintext)
		assert.ErrorIs(t, err, ErrInvalidAPIKey, "plaintext=%q", plaintext)
	}
}

func TestVerifyAPIKeyRejectsWrongSecret(t *testing.T) {
	svc := setupAuthTest(t)

	key, _, err := svc.CreateAPIKey("gateway", "admin", nil)
	require.NoError(t, err)

	_, err = svc.VerifyAPIKey("uvk_" + key.Prefix + "_deadbeefdeadbeefdeadbeefdeadbeef")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestVerifyAPIKeyRejectsExpired(t *testing.T) {
	svc := setupAuthTest(t)

	expired := time.Now().Add(-time.Hour)
	_, plaintext, err := svc.CreateAPIKey("expired-key", "admin", &expired)
	require.NoError(t, err)

	_, err = svc.VerifyAPIKey(plaintext)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestRevokeAPIKey(t *testing.T) {
	svc := setupAuthTest(t)

	key, plaintext, err := svc.CreateAPIKey("to-revoke", "admin", nil)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAPIKey(key.ID))

	_, err = svc.VerifyAPIKey(plaintext)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	assert.ErrorIs(t, svc.RevokeAPIKey("no-such-key"), ErrInvalidAPIKey)
}

func TestEnsureBootstrapKey(t *testing.T) {
	svc := setupAuthTest(t)

	// 空库时签发引导密钥，明文可直接用于鉴权
	plaintext, err := svc.EnsureBootstrapKey()
	require.NoError(t, err)
	require.NotEmpty(t, plaintext)

	key, err := svc.VerifyAPIKey(plaintext)
	require.NoError(t, err)
	assert.Equal(t, "bootstrap", key.Name)

	// 已有密钥时不再签发
	again, err := svc.EnsureBootstrapKey()
	require.NoError(t, err)
	assert.Empty(t, again)

	keys, err := svc.ListAPIKeys()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestListAPIKeys(t *testing.T) {
	svc := setupAuthTest(t)

	_, _, err := svc.CreateAPIKey("key-a", "admin", nil)
	require.NoError(t, err)
	_, _, err = svc.CreateAPIKey("key-b", "admin", nil)
	require.NoError(t, err)

	keys, err := svc.ListAPIKeys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
