/*
 * @module service/auth_service
 * @description API密钥鉴权服务，负责密钥的签发、校验与吊销
 * @architecture 分层架构 - 服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 密钥签发(返回一次明文) -> bcrypt散列落库 -> 请求校验 -> 吊销
 * @rules 明文密钥形如 uvk_<prefix>_<secret>，库中仅存散列
 * @dependencies golang.org/x/crypto/bcrypt, gorm.io/gorm
 * @refs api/middleware/api_key_auth.go
 */

package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"uavsec-service/service/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidAPIKey API密钥无效
var ErrInvalidAPIKey = errors.New("API密钥无效")

// AuthService API密钥鉴权服务
type AuthService struct {
	db *gorm.DB
}

// NewAuthService 创建鉴权服务
func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{db: db}
}

// CreateAPIKey 签发新密钥，返回的明文只在此处出现一次
func (s *AuthService) CreateAPIKey(name, createdBy string, expiresAt *time.Time) (*models.APIKey, string, error) {
	prefix, err := randomHex(4)
	if err != nil {
		return nil, "", err
	}
	secret, err := randomHex(16)
	if err != nil {
		return nil, "", err
	}

	plaintext := fmt.Sprintf("uvk_%s_%s", prefix, secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("生成密钥散列失败: %w", err)
	}

	key := &models.APIKey{
		Name:      name,
		Prefix:    prefix,
		KeyHash:   string(hash),
		CreatedBy: createdBy,
		IsActive:  true,
		ExpiresAt: expiresAt,
	}

	if err := s.db.Create(key).Error; err != nil {
		return nil, "", fmt.Errorf("保存API密钥失败: %w", err)
	}

	return key, plaintext, nil
}

// VerifyAPIKey 校验明文密钥，成功时刷新last_used_at
func (s *AuthService) VerifyAPIKey(plaintext string) (*models.APIKey, error) {
	parts := strings.Split(plaintext, "_")
	if len(parts) != 3 || parts[0] != "uvk" {
		return nil, ErrInvalidAPIKey
	}
	prefix := parts[1]

	var candidates []models.APIKey
	if err := s.db.Where("prefix = ? AND is_active = ?", prefix, true).Find(&candidates).Error; err != nil {
		return nil, err
	}

	for i := range candidates {
		key := &candidates[i]
		if key.IsExpired() {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(plaintext)) == nil {
			now := time.Now()
			s.db.Model(key).Update("last_used_at", now)
			return key, nil
		}
	}

	return nil, ErrInvalidAPIKey
}

// EnsureBootstrapKey 首次部署时签发引导密钥，已有任何密钥记录则不做任何事
// 返回的明文只在签发时出现一次，由调用方负责展示
func (s *AuthService) EnsureBootstrapKey() (string, error) {
	var count int64
	if err := s.db.Model(&models.APIKey{}).Count(&count).Error; err != nil {
		return "", fmt.Errorf("查询API密钥失败: %w", err)
	}
	if count > 0 {
		return "", nil
	}

	_, plaintext, err := s.CreateAPIKey("bootstrap", "system", nil)
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

// RevokeAPIKey 吊销密钥
func (s *AuthService) RevokeAPIKey(keyID string) error {
	result := s.db.Model(&models.APIKey{}).Where("id = ?", keyID).Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidAPIKey
	}
	return nil
}

// ListAPIKeys 查询密钥列表，不含散列
func (s *AuthService) ListAPIKeys() ([]models.APIKey, error) {
	var keys []models.APIKey
	err := s.db.Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// randomHex 生成n字节的十六进制随机串
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
