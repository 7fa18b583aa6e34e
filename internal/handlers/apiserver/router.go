package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"memories-social/internal/auth"
	"memories-social/internal/middleware"
)

// Handlers groups everything the REST router dispatches to.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	FriendRequest *FriendRequestHandler
	Conversation  *ConversationHandler
}

// NewRouter 注册所有 REST 路由。/api/v1 下的路由需要认证。
func NewRouter(h Handlers, jwtSecret string, blacklist auth.TokenBlacklist) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/auth/register", h.Auth.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Auth.Login).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.AuthMiddleware(jwtSecret, blacklist))

	api.HandleFunc("/auth/logout", h.Auth.LogoutHandler).Methods(http.MethodPost)

	api.HandleFunc("/users/me", h.Users.GetMyProfileHandler).Methods(http.MethodGet)
	api.HandleFunc("/users/search", h.Users.SearchUsersHandler).Methods(http.MethodGet)

	api.HandleFunc("/friends", h.FriendRequest.ListFriendsHandler).Methods(http.MethodGet)
	api.HandleFunc("/friend-requests", h.FriendRequest.SendFriendRequestHandler).Methods(http.MethodPost)
	api.HandleFunc("/friend-requests/pending", h.FriendRequest.ListPendingRequestsHandler).Methods(http.MethodGet)
	api.HandleFunc("/friend-requests/{requestID}/accept", h.FriendRequest.AcceptFriendRequestHandler).Methods(http.MethodPost)
	api.HandleFunc("/friend-requests/{requestID}/reject", h.FriendRequest.RejectFriendRequestHandler).Methods(http.MethodPost)

	api.HandleFunc("/conversations", h.Conversation.GetUserConversationsHandler).Methods(http.MethodGet)
	api.HandleFunc("/conversations/direct", h.Conversation.FindOrCreateDirectHandler).Methods(http.MethodPost)
	api.HandleFunc("/conversations/group", h.Conversation.CreateGroupHandler).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{conversationID}/messages", h.Conversation.GetMessagesHandler).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{conversationID}/messages", h.Conversation.SendMessageHandler).Methods(http.MethodPost)

	return r
}
