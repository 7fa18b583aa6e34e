package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"memories-social/internal/middleware"
	"memories-social/internal/services"
	"memories-social/internal/session"
)

// TimelineFactory builds a MessageTimeline for one request.
type TimelineFactory func() services.MessageTimeline

// ConversationHandler 处理会话与消息相关的 HTTP 请求。
// REST 请求之间不共享消息缓存：每个请求新建时间线并在返回前关闭。
type ConversationHandler struct {
	registry    services.ConversationRegistry
	newTimeline TimelineFactory
	resolver    session.IdentityResolver
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(registry services.ConversationRegistry, newTimeline TimelineFactory, resolver session.IdentityResolver) *ConversationHandler {
	return &ConversationHandler{
		registry:    registry,
		newTimeline: newTimeline,
		resolver:    resolver,
	}
}

// DirectConversationPayload 单聊会话请求体。Peer 可以是用户ID或用户名。
type DirectConversationPayload struct {
	Peer string `json:"peer" validate:"required,max=100"`
}

// GroupConversationPayload 群聊会话请求体。创建者会自动加入。
type GroupConversationPayload struct {
	Name           string   `json:"name" validate:"required,max=100"`
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,dive,uuid"`
}

// SendMessagePayload 发送消息请求体。
type SendMessagePayload struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// GetUserConversationsHandler handles GET /api/v1/conversations
func (h *ConversationHandler) GetUserConversationsHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	conversations, err := h.registry.ListConversations(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, err, "获取会话列表失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, conversations)
}

// FindOrCreateDirectHandler handles POST /api/v1/conversations/direct
func (h *ConversationHandler) FindOrCreateDirectHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	var payload DirectConversationPayload
	if err := decodeAndValidate(r, &payload); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	peerID, err := h.resolver.Resolve(r.Context(), payload.Peer)
	if err != nil {
		writeServiceError(w, err, "查找用户失败")
		return
	}

	conversation, err := h.registry.FindOrCreateDirect(r.Context(), sess.UserID, peerID)
	if err != nil {
		writeServiceError(w, err, "创建会话失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, conversation)
}

// CreateGroupHandler handles POST /api/v1/conversations/group
func (h *ConversationHandler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	var payload GroupConversationPayload
	if err := decodeAndValidate(r, &payload); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	conversation, err := h.registry.CreateGroup(r.Context(), payload.Name, payload.ParticipantIDs, sess.UserID)
	if err != nil {
		writeServiceError(w, err, "创建群聊失败")
		return
	}
	writeJSONResponse(w, http.StatusCreated, conversation)
}

// GetMessagesHandler handles GET /api/v1/conversations/{conversationID}/messages
func (h *ConversationHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	conversationID := mux.Vars(r)["conversationID"]

	if err := h.registry.RequireParticipant(r.Context(), conversationID, sess.UserID); err != nil {
		writeServiceError(w, err, "获取消息失败")
		return
	}

	timeline := h.newTimeline()
	defer timeline.Close()
	messages, err := timeline.FetchHistory(r.Context(), conversationID)
	if err != nil {
		writeServiceError(w, err, "获取消息失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, messages)
}

// SendMessageHandler handles POST /api/v1/conversations/{conversationID}/messages
func (h *ConversationHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	conversationID := mux.Vars(r)["conversationID"]

	var payload SendMessagePayload
	if err := decodeAndValidate(r, &payload); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	timeline := h.newTimeline()
	defer timeline.Close()
	msg, err := timeline.Send(r.Context(), sess, conversationID, payload.Content)
	if err != nil {
		writeServiceError(w, err, "发送消息失败")
		return
	}
	writeJSONResponse(w, http.StatusCreated, msg)
}
