/*
 * @module service/config/config_service
 * @description 配置服务，提供数据库+环境变量双层的系统配置读写与缓存
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 服务调用 -> 缓存 -> 环境变量 -> 数据库 -> 默认值
 * @rules 环境变量优先于数据库配置，缓存5分钟后失效
 * @dependencies uavsec-service/service/models, gorm.io/gorm, github.com/spf13/cast
 * @refs service/cleanup/retention_service.go, service/training_service.go
 */

package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"uavsec-service/service/models"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// 配置默认值
const (
	DefaultDetectionRetentionDays   = 30
	DefaultAuditLogRetentionDays    = 90
	DefaultTrainingRunRetentionDays = 30
	DefaultArtifactDir              = "./artifacts"
	DefaultDatasetDir               = "./datasets"

	cacheExpiry = 5 * time.Minute
	envPrefix   = "UAVSEC_"
)

// defaultConfigs 默认配置项，数据库中不存在时生效
var defaultConfigs = map[string]string{
	models.ConfigKeyDetectionRetentionDays:   "30",
	models.ConfigKeyAuditLogRetentionDays:    "90",
	models.ConfigKeyTrainingRunRetentionDays: "30",
	models.ConfigKeyArtifactDir:              DefaultArtifactDir,
	models.ConfigKeyDatasetDir:               DefaultDatasetDir,
}

// configDescriptions 默认配置项说明
var configDescriptions = map[string]string{
	models.ConfigKeyDetectionRetentionDays:   "检测记录保存天数",
	models.ConfigKeyAuditLogRetentionDays:    "审计日志保存天数",
	models.ConfigKeyTrainingRunRetentionDays: "训练任务记录保存天数",
	models.ConfigKeyArtifactDir:              "模型产物存储目录",
	models.ConfigKeyDatasetDir:               "上传数据集存储目录",
}

// cachedValue 带过期时间的缓存值
type cachedValue struct {
	value    string
	cachedAt time.Time
}

// ConfigService 配置服务
type ConfigService struct {
	db    *gorm.DB
	mu    sync.RWMutex
	cache map[string]cachedValue
}

// NewConfigService 创建配置服务实例
func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{
		db:    db,
		cache: make(map[string]cachedValue),
	}
}

// GetString 获取配置值，查找顺序: 缓存 -> 环境变量 -> 数据库 -> 默认值
func (s *ConfigService) GetString(key, fallback string) string {
	s.mu.RLock()
	if cached, ok := s.cache[key]; ok && time.Since(cached.cachedAt) < cacheExpiry {
		s.mu.RUnlock()
		return cached.value
	}
	s.mu.RUnlock()

	value, ok := s.lookup(key)
	if !ok {
		if def, exists := defaultConfigs[key]; exists {
			return def
		}
		return fallback
	}

	s.mu.Lock()
	s.cache[key] = cachedValue{value: value, cachedAt: time.Now()}
	s.mu.Unlock()

	return value
}

// GetInt 获取整型配置值，解析失败时返回fallback
func (s *ConfigService) GetInt(key string, fallback int) int {
	value := s.GetString(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := cast.ToIntE(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// lookup 从环境变量和数据库查找配置
func (s *ConfigService) lookup(key string) (string, bool) {
	// 环境变量形如 UAVSEC_DETECTION_RETENTION_DAYS
	envKey := envPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if value := os.Getenv(envKey); value != "" {
		return value, true
	}

	var config models.SystemConfig
	err := s.db.Where("key = ? AND environment = ?", key, "default").First(&config).Error
	if err != nil {
		return "", false
	}
	return config.Value, true
}

// SetConfig 写入配置并使缓存失效
func (s *ConfigService) SetConfig(key, value, description string) error {
	var config models.SystemConfig
	err := s.db.Where("key = ? AND environment = ?", key, "default").First(&config).Error
	if err != nil {
		config = models.SystemConfig{
			ID:          uuid.New().String(),
			Key:         key,
			Value:       value,
			Environment: "default",
			Description: description,
		}
		if createErr := s.db.Create(&config).Error; createErr != nil {
			return fmt.Errorf("创建配置失败: %w", createErr)
		}
	} else {
		updates := map[string]interface{}{"value": value}
		if description != "" {
			updates["description"] = description
		}
		if updateErr := s.db.Model(&config).Updates(updates).Error; updateErr != nil {
			return fmt.Errorf("更新配置失败: %w", updateErr)
		}
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	return nil
}

// ConfigItem 配置项视图
type ConfigItem struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"` // 数据库中不存在、取自默认值
}

// ListConfigs 列出所有配置，数据库中缺失的键以默认值补齐
func (s *ConfigService) ListConfigs() ([]ConfigItem, error) {
	var configs []models.SystemConfig
	if err := s.db.Where("environment = ?", "default").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("查询配置失败: %w", err)
	}

	items := make([]ConfigItem, 0, len(configs)+len(defaultConfigs))
	existing := make(map[string]bool, len(configs))
	for _, config := range configs {
		existing[config.Key] = true
		items = append(items, ConfigItem{
			Key:         config.Key,
			Value:       config.Value,
			Description: config.Description,
		})
	}

	for key, value := range defaultConfigs {
		if !existing[key] {
			items = append(items, ConfigItem{
				Key:         key,
				Value:       value,
				Description: configDescriptions[key],
				IsDefault:   true,
			})
		}
	}

	return items, nil
}

// ClearCache 清除配置缓存
func (s *ConfigService) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]cachedValue)
	s.mu.Unlock()
}
