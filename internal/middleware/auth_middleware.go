package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"memories-social/internal/auth"
	"memories-social/internal/session"
)

// contextKey 是用于在 context.Context 中存储值的自定义类型，以避免键冲突。
type contextKey string

// claimsKey 是用于在上下文中存储 JWT claims 的键。
const claimsKey contextKey = "claims"

// AuthMiddleware 验证 Bearer JWT，并将 session.Session 与 claims 放入请求上下文。
// blacklist 为 nil 时不检查吊销状态。
func AuthMiddleware(jwtSecret string, blacklist auth.TokenBlacklist) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "请求未包含有效的授权令牌")
				return
			}

			claims, err := auth.ValidateToken(r.Context(), tokenString, jwtSecret, blacklist)
			if err != nil {
				writeUnauthorized(w, "令牌无效")
				return
			}

			ctx := session.NewContext(r.Context(), session.FromClaims(claims))
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext 从上下文中获取当前会话。
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	return session.FromContext(ctx)
}

// ClaimsFromContext 从上下文中获取已验证的 JWT claims。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// bearerToken reads "Authorization: Bearer <token>". Websocket clients that
// cannot set headers may pass ?token= instead.
func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
