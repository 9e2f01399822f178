package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/chat/internal/api/middleware"
	"greendrake/chat/internal/auth"
	"greendrake/chat/internal/config"
	"greendrake/chat/internal/utils"
)

const testSecret = "test-secret"

func setupAuthEngine(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestLogger())
	r.Use(middleware.AuthMiddleware(auth.NewGateway(cfg)))
	r.GET("/me", func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": userID, "ok": ok})
	})
	return r
}

func TestAuthMiddleware_Bearer(t *testing.T) {
	router := setupAuthEngine(&config.Config{JwtSecret: testSecret})
	userID := utils.NewSixID()
	token, err := auth.GenerateJWT(userID, testSecret, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ID string `json:"id"`
		OK bool   `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, userID.String(), body.ID)
	assert.True(t, body.OK)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	router := setupAuthEngine(&config.Config{JwtSecret: testSecret})
	otherToken, err := auth.GenerateJWT(utils.NewSixID(), "other-secret", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no credential", ""},
		{"wrong secret", "Bearer " + otherToken},
		{"garbage", "Bearer abc.def.ghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "UNAUTHENTICATED")
		})
	}
}

func TestAuthMiddleware_DevHeaderOnlyWhenEnabled(t *testing.T) {
	userID := utils.NewSixID()
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/me", nil)
		r.Header.Set(auth.DevUserHeader, userID.String())
		return r
	}

	w := httptest.NewRecorder()
	setupAuthEngine(&config.Config{JwtSecret: testSecret, DevAuthHeader: true}).ServeHTTP(w, req())
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	setupAuthEngine(&config.Config{JwtSecret: testSecret}).ServeHTTP(w, req())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
