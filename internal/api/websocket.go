// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yzy0324/neon-tape-vn/internal/audio"
	"github.com/yzy0324/neon-tape-vn/internal/services"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 表示一个订阅某次运行的连接
type WebSocketClient struct {
	conn      WebSocketConnection
	runID     string
	send      chan []byte
	closed    int32 // 原子操作标志，0=开启，1=关闭
	lastPing  int64 // unix nano
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, runID string) *WebSocketClient {
	now := time.Now()
	return &WebSocketClient{
		conn:      conn,
		runID:     runID,
		send:      make(chan []byte, 64),
		lastPing:  now.UnixNano(),
		createdAt: now,
	}
}

// Close 安全关闭底层连接。发送通道只由中心关闭。
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) && client.conn != nil {
		client.conn.Close()
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后活跃时间
func (client *WebSocketClient) UpdatePing() {
	atomic.StoreInt64(&client.lastPing, time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	last := time.Unix(0, atomic.LoadInt64(&client.lastPing))
	return time.Since(last) > timeout
}

// WebSocketHub 按运行分组的推送中心。实现运行事件与音频通知两个接收方。
type WebSocketHub struct {
	connections map[string]map[*WebSocketClient]bool // runID -> clients
	unregister  chan *WebSocketClient
	stop        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	pingTimeout time.Duration
	logger      *utils.Logger
}

var (
	_ services.EventPublisher = (*WebSocketHub)(nil)
	_ audio.Notifier          = (*WebSocketHub)(nil)
)

// NewWebSocketHub 创建并启动推送中心
func NewWebSocketHub() *WebSocketHub {
	hub := &WebSocketHub{
		connections: make(map[string]map[*WebSocketClient]bool),
		unregister:  make(chan *WebSocketClient, 64),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		pingTimeout: 90 * time.Second,
		logger:      utils.GetLogger(),
	}
	go hub.run()
	return hub
}

// run 主循环
func (hub *WebSocketHub) run() {
	defer close(hub.done)
	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case client := <-hub.unregister:
			hub.unregisterClient(client)
		case <-cleanupTicker.C:
			hub.cleanupExpiredConnections()
		case <-hub.stop:
			hub.shutdown()
			return
		}
	}
}

func (hub *WebSocketHub) registerClient(client *WebSocketClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if hub.connections[client.runID] == nil {
		hub.connections[client.runID] = make(map[*WebSocketClient]bool)
	}
	hub.connections[client.runID][client] = true
	client.UpdatePing()
	hub.logger.Debug("WebSocket 客户端已连接", utils.Fields{"run_id": client.runID})
}

func (hub *WebSocketHub) unregisterClient(client *WebSocketClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.removeLocked(client)
}

// removeLocked 移除客户端并关闭其发送通道，调用方持有写锁
func (hub *WebSocketHub) removeLocked(client *WebSocketClient) {
	clients, ok := hub.connections[client.runID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(hub.connections, client.runID)
	}
	close(client.send)
	client.Close()
}

// cleanupExpiredConnections 清理过期和死连接
func (hub *WebSocketHub) cleanupExpiredConnections() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	for _, clients := range hub.connections {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(hub.pingTimeout) {
				hub.removeLocked(client)
			}
		}
	}
}

func (hub *WebSocketHub) shutdown() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	for _, clients := range hub.connections {
		for client := range clients {
			hub.removeLocked(client)
		}
	}
	hub.logger.Info("WebSocket 推送中心已关闭", nil)
}

// Stop 关闭所有连接并停止主循环
func (hub *WebSocketHub) Stop() {
	hub.stopOnce.Do(func() { close(hub.stop) })
	<-hub.done
}

// Register 同步注册客户端，返回后即可收到推送；中心已停止时返回 false
func (hub *WebSocketHub) Register(client *WebSocketClient) bool {
	select {
	case <-hub.stop:
		return false
	default:
	}
	hub.registerClient(client)
	return true
}

// Unregister 注销客户端
func (hub *WebSocketHub) Unregister(client *WebSocketClient) {
	select {
	case hub.unregister <- client:
	case <-hub.stop:
	}
}

// ClientCount 某次运行的订阅数
func (hub *WebSocketHub) ClientCount(runID string) int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.connections[runID])
}

// GetStatus 获取中心状态
func (hub *WebSocketHub) GetStatus() map[string]interface{} {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	runs := make(map[string]int, len(hub.connections))
	total := 0
	for runID, clients := range hub.connections {
		runs[runID] = len(clients)
		total += len(clients)
	}
	return map[string]interface{}{
		"total_runs":        len(hub.connections),
		"total_connections": total,
		"runs":              runs,
	}
}

// BroadcastToRun 向订阅某次运行的所有连接推送。队列满的连接丢弃这条消息。
func (hub *WebSocketHub) BroadcastToRun(runID string, message map[string]interface{}) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		hub.logger.Error("序列化推送消息失败", utils.Fields{"error": err.Error()})
		return
	}

	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	for client := range hub.connections[runID] {
		if client.IsClosed() {
			continue
		}
		select {
		case client.send <- msgBytes:
		default:
			hub.logger.Warn("客户端消息队列已满，消息被丢弃", utils.Fields{"run_id": runID})
		}
	}
}

// PublishRunEvent 推送运行变化
func (hub *WebSocketHub) PublishRunEvent(event services.RunEvent) {
	hub.BroadcastToRun(event.RunID, map[string]interface{}{
		"type":  "transition",
		"event": event,
	})
}

// SceneEntered 推送环境音提示
func (hub *WebSocketHub) SceneEntered(runID string, cue audio.Cue) {
	hub.BroadcastToRun(runID, map[string]interface{}{
		"type":      "audio_cue",
		"cue":       cue,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Sfx 推送短音效
func (hub *WebSocketHub) Sfx(runID string, kind audio.SfxKind) {
	hub.BroadcastToRun(runID, map[string]interface{}{
		"type":      "sfx",
		"kind":      kind,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
