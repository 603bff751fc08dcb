package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Message はWebSocketで画面に送るメッセージ
type Message struct {
	Type    string      `json:"type"` // "notification" | "listings"
	Payload interface{} `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // 書き込みは1コネクションにつき同時に1つ
}

// Hub は画面のWebSocket接続を管理し、更新をブロードキャストする
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub はハブを作成（checkOrigin が nil なら全オリジンを許可）
func NewHub(logger *zap.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		logger:   logger.Named("ws"),
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:  make(map[string]*client),
	}
}

// ServeWS はWebSocketへアップグレードしてクライアントを登録する
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	c := &client{conn: conn}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	h.logger.Debug("WebSocket client connected", zap.String("client_id", id))

	go h.pingLoop(id, c)
	go h.readLoop(id, c)
}

// Broadcast は全クライアントにメッセージを送る
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal websocket message", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make(map[string]*client, len(h.clients))
	for id, c := range h.clients {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		h.write(id, c, func(conn *websocket.Conn) error {
			return conn.WriteMessage(websocket.TextMessage, data)
		})
	}
}

// Len は接続中のクライアント数
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close は全接続を閉じる
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) pingLoop(id string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if !h.alive(id, c) {
			return
		}
		h.write(id, c, func(conn *websocket.Conn) error {
			return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		})
	}
}

// readLoop はクライアントからの入力を読み捨て、切断を検知する
func (h *Hub) readLoop(id string, c *client) {
	defer h.remove(id, c)

	c.conn.SetReadLimit(4 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *Hub) write(id string, c *client, fn func(*websocket.Conn) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := fn(c.conn); err != nil {
		h.logger.Debug("WebSocket write failed", zap.String("client_id", id), zap.Error(err))
		h.remove(id, c)
	}
}

func (h *Hub) alive(id string, c *client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id] == c
}

func (h *Hub) remove(id string, c *client) {
	_ = c.conn.Close()
	h.mu.Lock()
	if current, ok := h.clients[id]; ok && current == c {
		delete(h.clients, id)
		h.logger.Debug("WebSocket client disconnected", zap.String("client_id", id))
	}
	h.mu.Unlock()
}
