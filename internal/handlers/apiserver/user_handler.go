package apiserver

import (
	"net/http"
	"strconv"

	"memories-social/internal/middleware"
	"memories-social/internal/services"
)

// UserHandler 封装了用户相关的 HTTP 处理器方法。
type UserHandler struct {
	userService services.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetMyProfileHandler 处理获取当前登录用户信息的请求。
func (h *UserHandler) GetMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	user, err := h.userService.GetUserProfile(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, err, "获取用户信息失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// SearchUsersHandler 处理 GET /api/v1/users/search?q=...&page=1&perPage=10
func (h *UserHandler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))

	users, err := h.userService.SearchUsers(r.Context(), q.Get("q"), sess.UserID, page, perPage)
	if err != nil {
		writeServiceError(w, err, "搜索用户失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, users)
}
