/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移、各业务服务装配与可选的遥测接入
 * @architecture 分层架构 - 服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 应用启动时执行初始化流程
 * @rules 确保所有依赖服务正常启动后才提供API服务，Redis/MQTT/Kafka为可选依赖
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs dev_docs/model.md
 */

package service

import (
	"fmt"
	"log"
	"os"
	"uavsec-service/service/cleanup"
	"uavsec-service/service/config"
	"uavsec-service/service/database"
	"uavsec-service/service/distributed_lock"
	"uavsec-service/service/event"
	"uavsec-service/service/fusion"
	"uavsec-service/service/rate_limiter"
	"uavsec-service/service/telemetry"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// EventService 事件服务类型别名，控制器层统一通过service包引用
type EventService = event.EventService

var (
	DB                     *gorm.DB
	GlobalEventService     *event.EventService
	GlobalConfigService    *config.ConfigService
	GlobalTrainingService  *TrainingService
	GlobalRegistryService  *RegistryService
	GlobalDetectionService *DetectionService
	GlobalFusionEngine     *fusion.Engine
	GlobalAuthService      *AuthService
	GlobalRetentionService *cleanup.RetentionService
	GlobalMQTTSource       *telemetry.MQTTSource
	GlobalKafkaPublisher   *telemetry.KafkaPublisher
	GlobalRateLimiter      *rate_limiter.RedisRateLimiter
)

// Init 装配数据库连接、迁移与全部业务服务，必须在挂载路由前调用
// 不放在包init()中，避免单元测试加载本包时强制要求PostgreSQL
func Init() {
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		// 使用分离的环境变量构建连接字符串
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "uavsec2024")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Asia/Shanghai",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	log.Println("开始运行数据库迁移...")

	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")

	if err := database.InitializeData(DB); err != nil {
		log.Fatalf("基础数据初始化失败: %v", err)
	}
	log.Println("基础数据初始化完成")

	if err := database.AutoMigrateView(DB); err != nil {
		log.Fatalf("视图迁移失败: %v", err)
	}
	log.Println("视图迁移完成")

	log.Println("所有数据库迁移任务完成")
}

// initServices 初始化服务
func initServices() {
	// Redis分布式锁为可选依赖，连接失败时降级为单实例模式
	var lock distributed_lock.DistributedLock
	redisLock, err := distributed_lock.NewRedisLock()
	if err != nil {
		log.Printf("Redis分布式锁初始化失败，降级为单实例模式: %v", err)
	} else {
		lock = redisLock
	}

	GlobalEventService = event.NewEventService(DB)
	GlobalConfigService = config.NewConfigService(DB)
	GlobalRegistryService = NewRegistryService(DB)
	GlobalDetectionService = NewDetectionService(DB, GlobalRegistryService)
	GlobalTrainingService = NewTrainingService(DB, GlobalEventService, lock, GlobalConfigService)
	GlobalFusionEngine = fusion.NewEngine()
	GlobalAuthService = NewAuthService(DB)
	GlobalRetentionService = cleanup.NewRetentionService(DB, GlobalConfigService, lock)

	// 首次部署时签发引导密钥，否则没有任何密钥能调用 POST /auth/keys
	if plaintext, bootErr := GlobalAuthService.EnsureBootstrapKey(); bootErr != nil {
		log.Printf("引导API密钥签发失败: %v", bootErr)
	} else if plaintext != "" {
		log.Printf("已签发引导API密钥（仅此一次展示，请立即妥善保存）: %s", plaintext)
	}

	// 启动数据保留定时清理
	if err := GlobalRetentionService.StartScheduledCleanup(); err != nil {
		log.Printf("启动数据清理调度器失败: %v", err)
	}

	// Redis限流器同样为可选依赖，不可用时检测接口不限流
	if limiter, limitErr := rate_limiter.NewRedisRateLimiter(); limitErr != nil {
		log.Printf("Redis限流器初始化失败，检测接口不限流: %v", limitErr)
	} else {
		GlobalRateLimiter = limiter
	}

	// 可选的Kafka检测结果发布
	if kafkaConfig := telemetry.KafkaPublisherConfigFromEnv(); kafkaConfig != nil {
		GlobalKafkaPublisher = telemetry.NewKafkaPublisher(kafkaConfig)
	}

	// 可选的MQTT遥测接入
	initTelemetry()

	log.Println("服务初始化完成")
}

// initTelemetry 初始化MQTT遥测接入，未配置broker时跳过
func initTelemetry() {
	mqttConfig := telemetry.MQTTSourceConfigFromEnv()
	if mqttConfig == nil {
		log.Println("未配置MQTT broker，跳过遥测接入")
		return
	}

	GlobalMQTTSource = telemetry.NewMQTTSource(mqttConfig, GlobalDetectionService, GlobalKafkaPublisher)
	if err := GlobalMQTTSource.Start(); err != nil {
		log.Printf("MQTT遥测接入启动失败: %v", err)
		GlobalMQTTSource = nil
	}
}
