package chatserver

import (
	"log"
	"net/http"
	"strings"

	"memories-social/internal/auth"
	"memories-social/internal/config"
	"memories-social/internal/realtime"
	"memories-social/internal/services"
	"memories-social/internal/session"
	"memories-social/internal/storage"
	ws "memories-social/internal/websocket"
)

// WebSocketHandler 负责处理 WebSocket 连接请求。
type WebSocketHandler struct {
	hub       *ws.Hub
	registry  services.ConversationRegistry
	messages  storage.MessageRepository
	feed      realtime.Feed
	blacklist auth.TokenBlacklist
	cfg       config.Config
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
// messages 应当是发布变更事件的仓库，这样其他连接才能收到新消息。
func NewWebSocketHandler(hub *ws.Hub, registry services.ConversationRegistry, messages storage.MessageRepository,
	feed realtime.Feed, blacklist auth.TokenBlacklist, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		registry:  registry,
		messages:  messages,
		feed:      feed,
		blacklist: blacklist,
		cfg:       cfg,
	}
}

// ServeWS 验证令牌后把 HTTP 连接升级为 WebSocket 连接。
// 令牌来自 ?token= 查询参数或 Authorization 头。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "缺少认证令牌", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(r.Context(), token, h.cfg.Auth.JWTSecretKey, h.blacklist)
	if err != nil {
		log.Printf("WebSocket 连接尝试失败：令牌无效: %v", err)
		http.Error(w, "令牌无效", http.StatusUnauthorized)
		return
	}

	ws.ServeWs(h.hub, w, r, h.cfg.WebSocket, claims.UserID, claims.Username, func(c *ws.Client) ws.ConnHandler {
		return NewConn(c, session.FromClaims(claims), h.registry, h.messages, h.feed, h.cfg.Realtime)
	})
}
