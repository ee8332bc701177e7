package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/earnflowhq/earnflow_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/users/:userId/ping", RequireUser(), func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": userId})
	})
	return r
}

func doRequest(t *testing.T, r *gin.Engine, path string, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_ValidTokenResolvesUser(t *testing.T) {
	r := newAuthRouter()
	token, err := utils.JwtGenerate("user-1", "user")
	require.NoError(t, err)

	w := doRequest(t, r, "/users/user-1/ping", token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "user-1")
}

func TestAuthMiddleware_MissingTokenIsUnauthorized(t *testing.T) {
	r := newAuthRouter()
	w := doRequest(t, r, "/users/user-1/ping", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_GarbageTokenIsUnauthorized(t *testing.T) {
	r := newAuthRouter()
	w := doRequest(t, r, "/users/user-1/ping", "garbage")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_CrossUserAccessForbidden(t *testing.T) {
	r := newAuthRouter()
	token, err := utils.JwtGenerate("user-1", "user")
	require.NoError(t, err)

	w := doRequest(t, r, "/users/user-2/ping", token)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireUser_OperatorMayActOnAnyUser(t *testing.T) {
	r := newAuthRouter()
	token, err := utils.JwtGenerate("ops-1", "operator")
	require.NoError(t, err)

	w := doRequest(t, r, "/users/user-2/ping", token)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCorrelationMiddleware_GeneratesAndEchoesId(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context())
		require.True(t, ok)
		c.String(http.StatusOK, cid)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Correlation-Id"))
	require.Equal(t, w.Header().Get("X-Correlation-Id"), w.Body.String())

	// Caller-supplied ids are preserved.
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-Id", "cid-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "cid-123", w.Body.String())
}
