package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"memories-social/internal/config"
	"memories-social/internal/imtypes"
)

// sendBuffer is the number of outbound frames queued per client.
const sendBuffer = 256

// ConnHandler owns the per-connection state of a chat socket.
type ConnHandler interface {
	// HandleEnvelope is called for every frame the client sends, in order.
	HandleEnvelope(ctx context.Context, env imtypes.ClientEnvelope)
	// Close releases the connection's state once the socket is gone.
	Close()
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	// Authenticated user of this connection.
	UserID   string
	Username string
}

// NewClient builds a client that is not attached to a socket yet. ServeWs
// attaches one; tests drain Outbound instead.
func NewClient(hub *Hub, userID, username string) *Client {
	return &Client{
		hub:      hub,
		send:     make(chan []byte, sendBuffer),
		UserID:   userID,
		Username: username,
	}
}

// Send queues env for the socket. It reports false when the client is closed
// or its queue is full; a full queue also drops the connection.
func (c *Client) Send(env *imtypes.ServerEnvelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("错误: 无法序列化发往用户 %s 的帧: %v", c.UserID, err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Printf("警告: UserID %s 的发送通道已满，断开连接。", c.UserID)
		if c.conn != nil {
			c.conn.Close()
		}
		return false
	}
}

// Outbound exposes the queued frames; it is closed when the client is unregistered.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps frames from the websocket connection to the handler.
func (c *Client) readPump(wsCfg config.WebSocketConfig, handler ConnHandler) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		handler.Close()
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket 错误 (客户端: %s): %v", c.UserID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			log.Printf("警告: 客户端 %s 发送了非文本消息类型: %d", c.UserID, messageType)
			continue
		}

		var env imtypes.ClientEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.Send(imtypes.NewErrorEnvelope("", "", "无法解析的消息帧"))
			continue
		}
		handler.HandleEnvelope(ctx, env)
	}
}

// writePump pumps frames from the send queue to the websocket connection.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(wsCfg.WriteWaitSeconds) * time.Second
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// ServeWs upgrades the request, registers the client with the hub and starts
// its pumps. connect builds the per-connection handler once the client exists.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig,
	userID, username string, connect func(*Client) ConnHandler) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ServeWs - Upgrade失败:", err)
		return
	}
	client := NewClient(hub, userID, username)
	client.conn = conn
	if !hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump(wsCfg)
	go client.readPump(wsCfg, connect(client))

	log.Printf("客户端已连接: UserID %s", userID)
}
