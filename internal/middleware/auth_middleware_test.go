package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memories-social/internal/auth"
	"memories-social/internal/config"
)

const testSecret = "middleware-secret"

func protected(t *testing.T, blacklist auth.TokenBlacklist) http.Handler {
	t.Helper()
	return AuthMiddleware(testSecret, blacklist)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, sess.UserID, claims.UserID)
		w.Header().Set("X-User", sess.Username)
		w.WriteHeader(http.StatusNoContent)
	}))
}

func issue(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateToken("user-1", "lee", config.AuthConfig{JWTSecretKey: testSecret, JWTExpiry: time.Minute})
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	token := issue(t)
	h := protected(t, auth.NewMemoryTokenBlacklist())

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"missing token", "/", "", http.StatusUnauthorized},
		{"malformed header", "/", "Token " + token, http.StatusUnauthorized},
		{"bad token", "/", "Bearer nope", http.StatusUnauthorized},
		{"bearer header", "/", "Bearer " + token, http.StatusNoContent},
		{"query token", "/?token=" + token, "", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusNoContent {
				assert.Equal(t, "lee", rec.Header().Get("X-User"))
			} else {
				assert.Contains(t, rec.Body.String(), "error")
			}
		})
	}
}

func TestAuthMiddlewareRejectsRevokedToken(t *testing.T) {
	token := issue(t)
	blacklist := auth.NewMemoryTokenBlacklist()
	claims, err := auth.ValidateToken(context.Background(), token, testSecret, nil)
	require.NoError(t, err)
	require.NoError(t, blacklist.Add(context.Background(), claims.ID, claims.ExpiresAt.Time))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(t, blacklist).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
