package display

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 200 * time.Millisecond
	sendBuffer = 16
)

// client 单个 websocket 连接，帧经 send 队列由独立 goroutine 写出
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub 向所有 websocket 客户端广播帧，新连接先收到最近一帧。
// Render 不做网络写，队列满的客户端直接丢帧。
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte

	dropped atomic.Uint64
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// join 注册连接，最近一帧先入队
func (h *Hub) join(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last != nil {
		c.send <- h.last
	}
	h.clients[c] = struct{}{}
	return c
}

// remove 注销连接并关闭其队列，可重复调用
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// writePump 把队列中的帧写到连接，写失败时关闭连接
func (h *Hub) writePump(c *client) {
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			h.logger.Debug("Display client write failed", zap.Error(err))
			_ = c.conn.Close()
			return
		}
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped 因客户端队列已满而丢弃的帧数
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Render 实现 Sink
func (h *Hub) Render(f Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("Failed to encode display frame", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = b
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped.Add(1)
		}
	}
}
