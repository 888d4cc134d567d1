/*
 * @module service/event_service
 * @description 事件管理服务，提供SSE事件推送和告警表变更监听功能
 * @architecture 事件驱动架构 - 业务服务层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 事件监听 -> 事件处理 -> 事件分发 -> 客户端推送
 * @rules 确保训练进度与告警事件的实时性，队列已满时丢弃而不阻塞
 * @dependencies uavsec-service/service/models, gorm.io/gorm, github.com/lib/pq
 * @refs dev_docs/requirements.md
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
	"uavsec-service/service/models"
	"uavsec-service/service/monitoring"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// 告警变更通知使用的PostgreSQL通知通道
const alertNotifyChannel = "uavsec_alerts"

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// EventService 事件管理服务
type EventService struct {
	db          *gorm.DB
	connections map[string]map[string]*SSEClient // userName -> connectionID -> client
	mu          sync.RWMutex
	dbListener  *pq.Listener
	ctx         context.Context
	cancel      context.CancelFunc
}

// SSEClient SSE客户端连接
type SSEClient struct {
	ID       string
	UserName string
	Channel  chan *models.SSEEvent
	Done     chan bool
	ClientIP string
}

// NewEventService 创建事件服务实例
func NewEventService(db *gorm.DB) *EventService {
	ctx, cancel := context.WithCancel(context.Background())

	service := &EventService{
		db:          db,
		connections: make(map[string]map[string]*SSEClient),
		ctx:         ctx,
		cancel:      cancel,
	}

	// 启动告警变更监听器
	go service.startAlertListener()

	// 启动事件处理器
	go service.startEventProcessor()

	return service
}

// === SSE连接管理 ===

// AddSSEConnection 添加SSE连接
func (s *EventService) AddSSEConnection(userName, connectionID, clientIP string) *SSEClient {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connections[userName] == nil {
		s.connections[userName] = make(map[string]*SSEClient)
	}

	client := &SSEClient{
		ID:       connectionID,
		UserName: userName,
		Channel:  make(chan *models.SSEEvent, 100), // 缓冲100个事件
		Done:     make(chan bool),
		ClientIP: clientIP,
	}

	s.connections[userName][connectionID] = client
	monitoring.SSEConnectionOpened()

	// 记录连接到数据库
	connection := &models.SSEConnection{
		UserName:     userName,
		ConnectionID: connectionID,
		ClientIP:     clientIP,
		ConnectedAt:  time.Now(),
		LastPingAt:   time.Now(),
		IsActive:     true,
	}
	s.db.Create(connection)

	log.Printf("SSE连接已建立: 用户=%s, 连接ID=%s, IP=%s", userName, connectionID, clientIP)
	return client
}

// RemoveSSEConnection 移除SSE连接
func (s *EventService) RemoveSSEConnection(userName, connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userConnections, exists := s.connections[userName]; exists {
		if client, exists := userConnections[connectionID]; exists {
			close(client.Done)
			delete(userConnections, connectionID)
			monitoring.SSEConnectionClosed()

			if len(userConnections) == 0 {
				delete(s.connections, userName)
			}

			// 更新数据库连接状态
			s.db.Model(&models.SSEConnection{}).
				Where("connection_id = ?", connectionID).
				Update("is_active", false)

			log.Printf("SSE连接已断开: 用户=%s, 连接ID=%s", userName, connectionID)
		}
	}
}

// SendEventToUser 向指定用户发送事件
func (s *EventService) SendEventToUser(userName string, event *models.SSEEvent) error {
	s.mu.RLock()
	userConnections, exists := s.connections[userName]
	s.mu.RUnlock()

	if !exists {
		log.Printf("用户 %s 没有活跃的SSE连接", userName)
		return fmt.Errorf("用户 %s 没有活跃的SSE连接", userName)
	}

	// 保存事件到数据库
	if err := s.db.Create(event).Error; err != nil {
		log.Printf("保存SSE事件失败: %v", err)
		return err
	}

	// 向所有连接发送事件
	for _, client := range userConnections {
		select {
		case client.Channel <- event:
			log.Printf("事件已发送到用户 %s 的连接 %s", userName, client.ID)
		default:
			log.Printf("用户 %s 的连接 %s 事件队列已满，跳过发送", userName, client.ID)
		}
	}

	return nil
}

// BroadcastEvent 广播事件给所有用户
func (s *EventService) BroadcastEvent(event *models.SSEEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// 保存事件到数据库
	if err := s.db.Create(event).Error; err != nil {
		log.Printf("保存广播事件失败: %v", err)
		return err
	}

	for userName, userConnections := range s.connections {
		for _, client := range userConnections {
			eventCopy := *event
			eventCopy.UserName = userName

			select {
			case client.Channel <- &eventCopy:
				log.Printf("广播事件已发送到用户 %s 的连接 %s", userName, client.ID)
			default:
				log.Printf("用户 %s 的连接 %s 事件队列已满，跳过广播", userName, client.ID)
			}
		}
	}

	return nil
}

// === 告警变更监听 ===

// startAlertListener 启动告警表变更监听器
func (s *EventService) startAlertListener() {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		// 从环境变量构建连接字符串
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "uavsec2024")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")

		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}

	// 创建PostgreSQL监听器
	s.dbListener = pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("PostgreSQL监听器事件: %v, 错误: %v", ev, err)
		}
	})

	// 确保告警表触发器存在
	if err := s.ensureAlertTrigger(); err != nil {
		log.Printf("创建告警表触发器失败: %v", err)
	}

	// 监听告警变更通知
	if err := s.dbListener.Listen(alertNotifyChannel); err != nil {
		log.Printf("监听告警变更通知失败: %v", err)
		return
	}

	log.Println("告警变更监听器已启动")

	for {
		select {
		case notification := <-s.dbListener.Notify:
			if notification != nil {
				s.handleAlertNotification(notification)
			}
		case <-s.ctx.Done():
			log.Println("告警变更监听器已停止")
			return
		}
	}
}

// handleAlertNotification 处理告警变更通知，新告警广播给所有连接
func (s *EventService) handleAlertNotification(notification *pq.Notification) {
	var changeData map[string]interface{}
	if err := json.Unmarshal([]byte(notification.Extra), &changeData); err != nil {
		log.Printf("解析告警变更通知失败: %v", err)
		return
	}

	eventType, _ := changeData["type"].(string)
	if eventType != "INSERT" {
		return
	}

	event := &models.SSEEvent{
		EventType: models.EventTypeAlertCreated,
		Data:      changeData,
	}

	if err := s.BroadcastEvent(event); err != nil {
		log.Printf("广播告警事件失败: %v", err)
	}
}

// ensureAlertTrigger 确保告警表的通知函数与触发器存在
func (s *EventService) ensureAlertTrigger() error {
	createFunctionSQL := fmt.Sprintf(`
CREATE OR REPLACE FUNCTION notify_uavsec_alerts()
RETURNS TRIGGER AS $$
DECLARE
    payload JSON;
BEGIN
    payload := json_build_object(
        'table', TG_TABLE_NAME,
        'type', TG_OP,
        'record_id', NEW.id,
        'new_data', row_to_json(NEW),
        'timestamp', extract(epoch from now())
    );

    PERFORM pg_notify('%s', payload::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;`, alertNotifyChannel)

	if err := s.db.Exec(createFunctionSQL).Error; err != nil {
		return fmt.Errorf("执行创建函数SQL失败: %v", err)
	}

	createTriggerSQL := `
		CREATE OR REPLACE TRIGGER alerts_notify
		AFTER INSERT ON alerts
		FOR EACH ROW
		EXECUTE FUNCTION notify_uavsec_alerts();
	`

	if err := s.db.Exec(createTriggerSQL).Error; err != nil {
		return fmt.Errorf("执行创建触发器SQL失败: %v", err)
	}

	return nil
}

// startEventProcessor 启动事件处理器
func (s *EventService) startEventProcessor() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupInactiveConnections()
		case <-s.ctx.Done():
			log.Println("事件处理器已停止")
			return
		}
	}
}

// cleanupInactiveConnections 清理不活跃的连接
func (s *EventService) cleanupInactiveConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userName, userConnections := range s.connections {
		for connectionID, client := range userConnections {
			select {
			case <-client.Done:
				delete(userConnections, connectionID)
				monitoring.SSEConnectionClosed()
				log.Printf("清理已断开的连接: 用户=%s, 连接ID=%s", userName, connectionID)
			default:
				// 连接仍然活跃
			}
		}

		if len(userConnections) == 0 {
			delete(s.connections, userName)
		}
	}
}

// Stop 停止事件服务
func (s *EventService) Stop() {
	s.cancel()

	if s.dbListener != nil {
		s.dbListener.Close()
	}

	// 关闭所有SSE连接
	s.mu.Lock()
	for _, userConnections := range s.connections {
		for _, client := range userConnections {
			close(client.Done)
		}
	}
	s.connections = make(map[string]map[string]*SSEClient)
	s.mu.Unlock()

	log.Println("事件服务已停止")
}

// GetSSEConnectionList 获取SSE连接列表
func (s *EventService) GetSSEConnectionList(page, pageSize int, userName, clientIP string, isActive *bool) ([]models.SSEConnection, int64, error) {
	var connections []models.SSEConnection
	var total int64

	query := s.db.Model(&models.SSEConnection{})

	// 添加过滤条件
	if userName != "" {
		query = query.Where("user_name = ?", userName)
	}
	if clientIP != "" {
		query = query.Where("client_ip = ?", clientIP)
	}
	if isActive != nil {
		query = query.Where("is_active = ?", *isActive)
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	err := query.Order("connected_at DESC").
		Offset(offset).Limit(pageSize).Find(&connections).Error

	return connections, total, err
}

// GetEventHistoryList 获取事件历史列表
func (s *EventService) GetEventHistoryList(page, pageSize int, userName, eventType string) ([]models.SSEEvent, int64, error) {
	var events []models.SSEEvent
	var total int64

	query := s.db.Model(&models.SSEEvent{})

	// 添加过滤条件
	if userName != "" {
		query = query.Where("user_name = ?", userName)
	}
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").
		Offset(offset).Limit(pageSize).Find(&events).Error

	return events, total, err
}
