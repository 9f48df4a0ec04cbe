package push

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 简化处理，允许所有跨域
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub 维护所有活跃的 WebSocket 连接，并按客户维度推送订单状态消息。
type Hub struct {
	clients    map[string]*Client // key: customerID
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run 处理连接注册与注销，随进程生命周期运行。
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			if old, ok := h.clients[client.customerID]; ok {
				close(old.send)
			}
			h.clients[client.customerID] = client
			h.lock.Unlock()
			zlog.Debug().Str("customer", client.customerID).Msg("push client registered")
		case client := <-h.unregister:
			h.lock.Lock()
			if cur, ok := h.clients[client.customerID]; ok && cur == client {
				delete(h.clients, client.customerID)
				close(client.send)
			}
			h.lock.Unlock()
			zlog.Debug().Str("customer", client.customerID).Msg("push client unregistered")
		}
	}
}

// Send 向指定客户推送一条消息；客户不在线时丢弃。
func (h *Hub) Send(customerID string, payload []byte) {
	h.lock.RLock()
	client, ok := h.clients[customerID]
	h.lock.RUnlock()
	if !ok {
		return
	}
	select {
	case client.send <- payload:
	default:
		// 发送缓冲已满，视为连接失活
		h.unregister <- client
	}
}

// Client 是一个 WebSocket 连接的代表。
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	customerID string
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// 只消费心跳，客户端不向服务端发业务消息
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ServeWs 将 HTTP 请求升级为 WebSocket 并注册到 Hub。
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		http.Error(w, "customer_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), customerID: customerID}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
