package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/monitoring"
	"smsrent/backend/internal/service"
)

// OrderWatcher 订单查询与轮询控制接口
type OrderWatcher interface {
	Get(ctx context.Context, idOrPhone string) (*domain.Order, error)
	Watch(ctx context.Context, idOrPhone string) (*service.Poller, error)
	Unwatch(orderID string)
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if origin == "*" || strings.EqualFold(origin, requestOrigin) {
					return true
				}
			}
			return false
		},
	}
}

var errClientGone = errors.New("client disconnected")

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeOrderUpdate MessageType = "order_update"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	OrderID   string          `json:"orderId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	orderIDs map[string]bool // 订阅的订单ID
	mu       sync.Mutex
	log      *zap.Logger
}

// Hub 管理所有WebSocket连接。一个订单的首个订阅者启动轮询，最后一个订阅者离开时停止。
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	orders         map[string]map[string]*Client // orderID -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	mu             sync.RWMutex
	watchMu        sync.Mutex // 串行化订阅计数变化与轮询启停
	log            *zap.Logger
	metrics        *monitoring.Metrics
	allowedOrigins []string
	watcher        OrderWatcher
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	OrderID string
	Message *Message
}

// NewHub 创建WebSocket Hub
//
// 参数:
//   - allowedOrigins: 允许的 Origin 列表，为空时允许所有来源
//   - watcher: 订单查询与轮询控制
func NewHub(allowedOrigins []string, watcher OrderWatcher, logger *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		orders:         make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            logger.Named("websocket"),
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
		watcher:        watcher,
	}
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.UpdateWebSocketClients(n)
			h.log.Debug("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			emptied, n, ok := h.detach(client)
			if ok {
				if len(emptied) > 0 {
					go h.unwatchIdle(emptied)
				}
				h.metrics.UpdateWebSocketClients(n)
				h.log.Debug("client unregistered", zap.String("id", client.ID))
			}

		case msg := <-h.broadcast:
			h.broadcastToOrder(msg.OrderID, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NotifyOrderUpdate 推送订单变化给订阅者，Hub 繁忙时丢弃
func (h *Hub) NotifyOrderUpdate(order domain.Order) {
	data, err := json.Marshal(order.View(time.Now()))
	if err != nil {
		h.log.Error("failed to marshal order update", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeOrderUpdate,
		OrderID:   order.ID,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- &BroadcastMessage{OrderID: order.ID, Message: msg}:
	default:
		h.log.Warn("broadcast queue full, dropping order update", zap.String("order_id", order.ID))
	}
}

// Subscribers 返回订阅某订单的客户端数量
func (h *Hub) Subscribers(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.orders[orderID])
}

// broadcastToOrder 向订阅特定订单的客户端广播消息
func (h *Hub) broadcastToOrder(orderID string, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.orders[orderID] {
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{Type: MessageTypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接并停止相关轮询
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	for _, client := range h.clients {
		close(client.send)
	}
	orderIDs := make([]string, 0, len(h.orders))
	for orderID := range h.orders {
		orderIDs = append(orderIDs, orderID)
	}
	h.clients = make(map[string]*Client)
	h.orders = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, orderID := range orderIDs {
		h.watcher.Unwatch(orderID)
	}
	h.metrics.UpdateWebSocketClients(0)
}

// detach 在锁内把客户端从所有订阅中移除后关闭发送通道，返回因此失去订阅者的订单
func (h *Hub) detach(c *Client) ([]string, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return nil, len(h.clients), false
	}
	delete(h.clients, c.ID)

	var emptied []string
	for orderID, clients := range h.orders {
		if _, ok := clients[c.ID]; !ok {
			continue
		}
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(h.orders, orderID)
			emptied = append(emptied, orderID)
		}
	}
	close(c.send)
	return emptied, len(h.clients), true
}

// unwatchIdle 停止仍无订阅者的订单轮询，期间重新订阅的订单保持不变
func (h *Hub) unwatchIdle(orderIDs []string) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	for _, orderID := range orderIDs {
		h.mu.RLock()
		idle := len(h.orders[orderID]) == 0
		h.mu.RUnlock()
		if idle {
			h.watcher.Unwatch(orderID)
		}
	}
}

// retain 登记订阅，首个订阅者启动轮询
func (h *Hub) retain(orderID string, c *Client) error {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return errClientGone
	}
	if h.orders[orderID] == nil {
		h.orders[orderID] = make(map[string]*Client)
	}
	first := len(h.orders[orderID]) == 0
	h.orders[orderID][c.ID] = c
	h.mu.Unlock()

	if !first {
		return nil
	}
	if _, err := h.watcher.Watch(context.Background(), orderID); err != nil {
		h.mu.Lock()
		delete(h.orders[orderID], c.ID)
		if len(h.orders[orderID]) == 0 {
			delete(h.orders, orderID)
		}
		h.mu.Unlock()
		return err
	}
	return nil
}

// release 取消订阅，最后一个订阅者离开时停止轮询
func (h *Hub) release(orderID string, c *Client) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	h.mu.Lock()
	clients, ok := h.orders[orderID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(clients, c.ID)
	last := len(clients) == 0
	if last {
		delete(h.orders, orderID)
	}
	h.mu.Unlock()

	if last {
		h.watcher.Unwatch(orderID)
	}
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:       uuid.NewString(),
			conn:     conn,
			hub:      hub,
			send:     make(chan []byte, 256),
			orderIDs: make(map[string]bool),
			log:      hub.log,
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribeOrder(msg.OrderID)
	case MessageTypeUnsubscribe:
		c.unsubscribeOrder(msg.OrderID)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.sendError("unknown message type: " + string(msg.Type))
	}
}

// subscribeOrder 订阅订单，orderID 也可以是号码
func (c *Client) subscribeOrder(idOrPhone string) {
	idOrPhone = strings.TrimSpace(idOrPhone)
	if idOrPhone == "" {
		c.sendError("order ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	order, err := c.hub.watcher.Get(ctx, idOrPhone)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.mu.Lock()
	already := c.orderIDs[order.ID]
	c.mu.Unlock()
	if !already {
		if err := c.hub.retain(order.ID, c); err != nil {
			c.sendError(err.Error())
			return
		}
		c.mu.Lock()
		c.orderIDs[order.ID] = true
		c.mu.Unlock()
	}

	c.log.Debug("subscribed to order",
		zap.String("clientID", c.ID),
		zap.String("order_id", order.ID))

	data, _ := json.Marshal(order.View(time.Now()))
	c.sendMessage(&Message{
		Type:      MessageTypeSubscribed,
		OrderID:   order.ID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// unsubscribeOrder 取消订阅订单
func (c *Client) unsubscribeOrder(orderID string) {
	c.mu.Lock()
	subscribed := c.orderIDs[orderID]
	delete(c.orderIDs, orderID)
	c.mu.Unlock()

	if subscribed {
		c.hub.release(orderID, c)
	}
	c.log.Debug("unsubscribed from order",
		zap.String("clientID", c.ID),
		zap.String("order_id", orderID))
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	defer func() {
		// send 已被 Hub 关闭
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
