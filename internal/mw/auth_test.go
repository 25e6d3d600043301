package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func setupAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTAuth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"workspaceId": GetWorkspaceID(c),
			"userId":      GetUserID(c),
			"role":        GetRole(c),
		})
	})
	r.GET("/admin", JWTAuth(testSecret), RequireRole("admin", "owner"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doGet(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r := setupAuthRouter()

	t.Run("valid token", func(t *testing.T) {
		token, err := GenerateJWT(testSecret, "ws-1", "user-1", "member", time.Hour)
		require.NoError(t, err)

		w := doGet(r, "/me", token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"workspaceId":"ws-1","userId":"user-1","role":"member"}`, w.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		w := doGet(r, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateJWT("other-secret", "ws-1", "user-1", "member", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", token).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := GenerateJWT(testSecret, "ws-1", "user-1", "member", -time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", token).Code)
	})

	t.Run("missing identity claims", func(t *testing.T) {
		token, err := GenerateJWT(testSecret, "", "user-1", "member", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", token).Code)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{WorkspaceID: "ws-1", UserID: "user-1"})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", signed).Code)
	})
}

func TestRequireRole(t *testing.T) {
	r := setupAuthRouter()

	admin, err := GenerateJWT(testSecret, "ws-1", "user-1", "owner", time.Hour)
	require.NoError(t, err)
	member, err := GenerateJWT(testSecret, "ws-1", "user-2", "member", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, doGet(r, "/admin", admin).Code)
	assert.Equal(t, http.StatusForbidden, doGet(r, "/admin", member).Code)
}

func TestJWTAuth_EmptySecretRejectsEverything(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", JWTAuth(""), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{WorkspaceID: "ws-1", UserID: "user-1", Role: "admin"})
	signed, err := forged.SignedString([]byte(""))
	require.NoError(t, err)

	w := doGet(r, "/admin", signed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
