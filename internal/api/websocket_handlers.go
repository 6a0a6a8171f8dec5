// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yzy0324/neon-tape-vn/internal/services"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
)

// WebSocketHandler 处理运行推送通道
type WebSocketHandler struct {
	hub      *WebSocketHub
	sessions *services.SessionService
	rh       *ResponseHelper
	logger   *utils.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(hub *WebSocketHub, sessions *services.SessionService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		sessions: sessions,
		rh:       NewResponseHelper(),
		logger:   utils.GetLogger(),
	}
}

// RunWebSocket 订阅一次运行的变化
func (wh *WebSocketHandler) RunWebSocket(c *gin.Context) {
	runID := c.Param("id")
	if _, err := wh.sessions.Get(runID); err != nil {
		wh.rh.AppError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wh.logger.Warn("WebSocket 升级失败", utils.Fields{"run_id": runID, "error": err.Error()})
		return
	}

	client := newWebSocketClient(conn, runID)
	if !wh.hub.Register(client) {
		conn.Close()
		return
	}

	go wh.handleWebSocketWrites(client)
	wh.sendWelcomeMessage(client)
	wh.handleWebSocketReads(client)
	wh.hub.Unregister(client)
}

// handleWebSocketReads 读取循环，连接断开时返回
func (wh *WebSocketHandler) handleWebSocketReads(client *WebSocketClient) {
	client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for !client.IsClosed() {
		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wh.logger.Debug("WebSocket 读取错误", utils.Fields{"run_id": client.runID, "error": err.Error()})
			}
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		client.UpdatePing()

		var message map[string]interface{}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			wh.sendError(client, "消息不是合法的 JSON")
			continue
		}
		wh.handleMessage(client, message)
	}
}

// handleWebSocketWrites 写入循环。发送通道被中心关闭后退出。
func (wh *WebSocketHandler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理客户端消息：ping 与 choose
func (wh *WebSocketHandler) handleMessage(client *WebSocketClient, message map[string]interface{}) {
	msgType, _ := message["type"].(string)
	switch msgType {
	case "ping":
		wh.reply(client, map[string]interface{}{"type": "pong", "timestamp": time.Now().Unix()})
	case "choose":
		index, ok := message["index"].(float64)
		if !ok {
			wh.sendError(client, "缺少选项序号")
			return
		}
		view, err := wh.sessions.Choose(client.runID, int(index))
		if err != nil {
			wh.sendError(client, err.Error())
			return
		}
		wh.reply(client, map[string]interface{}{"type": "view", "view": view})
	default:
		wh.sendError(client, "未知的消息类型: "+msgType)
	}
}

func (wh *WebSocketHandler) sendWelcomeMessage(client *WebSocketClient) {
	wh.reply(client, map[string]interface{}{
		"type":      "connected",
		"run_id":    client.runID,
		"timestamp": time.Now().Format(time.RFC3339),
		"message":   "WebSocket 连接已建立",
	})
}

func (wh *WebSocketHandler) sendError(client *WebSocketClient, errorMsg string) {
	wh.reply(client, map[string]interface{}{
		"type":      "error",
		"error":     errorMsg,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// reply 只发给当前连接
func (wh *WebSocketHandler) reply(client *WebSocketClient, message map[string]interface{}) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		return
	}
	wh.hub.mutex.RLock()
	defer wh.hub.mutex.RUnlock()
	if !wh.hub.connections[client.runID][client] {
		return
	}
	select {
	case client.send <- msgBytes:
	default:
		wh.logger.Warn("无法发送消息到客户端，队列已满", utils.Fields{"run_id": client.runID})
	}
}
