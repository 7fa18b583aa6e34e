package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"memories-social/internal/middleware"
	"memories-social/internal/services"
)

// FriendRequestHandler handles HTTP requests related to friend requests.
type FriendRequestHandler struct {
	friendService services.FriendGraphService
}

// NewFriendRequestHandler creates a new FriendRequestHandler.
func NewFriendRequestHandler(fs services.FriendGraphService) *FriendRequestHandler {
	return &FriendRequestHandler{friendService: fs}
}

// SendFriendRequestPayload defines the expected JSON body for sending a friend request.
// Recipient is a user id, a username or an @handle.
type SendFriendRequestPayload struct {
	Recipient string `json:"recipient" validate:"required,max=100"`
}

// SendFriendRequestHandler handles POST /api/v1/friend-requests
func (h *FriendRequestHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	var payload SendFriendRequestPayload
	if err := decodeAndValidate(r, &payload); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	request, err := h.friendService.SendRequest(r.Context(), sess, payload.Recipient)
	if err != nil {
		writeServiceError(w, err, "发送好友请求失败")
		return
	}
	writeJSONResponse(w, http.StatusCreated, request)
}

// AcceptFriendRequestHandler handles POST /api/v1/friend-requests/{requestID}/accept
func (h *FriendRequestHandler) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, true)
}

// RejectFriendRequestHandler handles POST /api/v1/friend-requests/{requestID}/reject
func (h *FriendRequestHandler) RejectFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, false)
}

func (h *FriendRequestHandler) respond(w http.ResponseWriter, r *http.Request, accept bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	requestID := mux.Vars(r)["requestID"]
	if requestID == "" {
		writeJSONError(w, "缺少好友请求ID", http.StatusBadRequest)
		return
	}

	request, err := h.friendService.Respond(r.Context(), sess, requestID, accept)
	if err != nil {
		writeServiceError(w, err, "处理好友请求失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, request)
}

// ListPendingRequestsHandler handles GET /api/v1/friend-requests/pending
func (h *FriendRequestHandler) ListPendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	pending, err := h.friendService.ListPendingInbox(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, err, "获取待处理请求失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, pending)
}

// ListFriendsHandler handles GET /api/v1/friends
func (h *FriendRequestHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	friends, err := h.friendService.ListFriends(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, err, "获取好友列表失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, friends)
}
