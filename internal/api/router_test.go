package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/chat/internal/api"
	"greendrake/chat/internal/api/middleware"
	"greendrake/chat/internal/auth"
	"greendrake/chat/internal/config"
	"greendrake/chat/internal/email"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/models"
	"greendrake/chat/internal/realtime"
	"greendrake/chat/internal/services"
	"greendrake/chat/internal/store"
	"greendrake/chat/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func testConfig() *config.Config {
	return &config.Config{
		RunMode:                "api",
		AppEnv:                 "test",
		JwtSecret:              "router-test-secret",
		SessionCookieName:      "chat_session",
		DevAuthHeader:          true,
		CorsAllowedOrigin:      "http://localhost:3000",
		ChatMaxTextLength:      2000,
		ChatMaxAttachments:     4,
		ChatDefaultPageSize:    30,
		ChatMaxPageSize:        100,
		RateLimitSendBurst:     2,
		RateLimitSendPerSecond: 0.01,
		SmtpFromAddress:        "noreply@example.com",
	}
}

type routerFixture struct {
	router  *gin.Engine
	cfg     *config.Config
	listing models.ListingRef
	seller  utils.SixID
	buyer   utils.SixID
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{cfg: testConfig(), seller: utils.NewSixID(), buyer: utils.NewSixID()}
	f.listing = models.ListingRef{ID: utils.NewSixID(), OwnerID: f.seller, Title: "Armchair"}

	hub := realtime.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()

	chat := services.NewChatService(store.NewMemoryStore(), services.NewStaticListingService(f.listing), hub, nil, f.cfg)
	f.router = api.SetupRouter(f.cfg, api.Deps{
		Chat:    chat,
		Hub:     hub,
		Emitter: hub,
		Gateway: auth.NewGateway(f.cfg),
		Limiter: middleware.NewSendLimiter(f.cfg),
	})
	return f
}

func (f *routerFixture) do(method, path string, as utils.SixID, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if !as.IsZero() {
		req.Header.Set(auth.DevUserHeader, as.String())
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_RequiresIdentity(t *testing.T) {
	f := newRouterFixture(t)

	for _, path := range []string{"/v1/threads", "/v1/unread-count", "/v1/ws"} {
		w := f.do(http.MethodGet, path, utils.SixID{}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Contains(t, w.Body.String(), `"code":"UNAUTHENTICATED"`, path)
	}

	w := f.do(http.MethodGet, "/v1/ping", utils.SixID{}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_ConversationOverREST(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodPost, "/v1/threads", f.buyer, gin.H{"listingId": f.listing.ID.String()})
	require.Equal(t, http.StatusOK, w.Code)
	var thread models.Thread
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &thread))

	w = f.do(http.MethodPost, "/v1/threads/"+thread.ID.String()+"/messages", f.buyer, gin.H{"text": "Still for sale?"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/v1/unread-count", f.seller, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":1}`, w.Body.String())

	w = f.do(http.MethodPost, "/v1/threads/"+thread.ID.String()+"/read", f.seller, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/v1/unread-count", f.seller, nil)
	assert.JSONEq(t, `{"total":0}`, w.Body.String())

	// outsiders see the thread as forbidden
	w = f.do(http.MethodGet, "/v1/threads/"+thread.ID.String()+"/messages", utils.NewSixID(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSetupRouter_SendIsRateLimited(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodPost, "/v1/threads", f.buyer, gin.H{"listingId": f.listing.ID.String()})
	require.Equal(t, http.StatusOK, w.Code)
	var thread models.Thread
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &thread))
	path := "/v1/threads/" + thread.ID.String() + "/messages"

	for i := 0; i < f.cfg.RateLimitSendBurst; i++ {
		require.Equal(t, http.StatusCreated, f.do(http.MethodPost, path, f.buyer, gin.H{"text": "ping"}).Code)
	}
	w = f.do(http.MethodPost, path, f.buyer, gin.H{"text": "ping"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"RATE_LIMITED"`)

	// the bucket is per user
	w = f.do(http.MethodPost, path, f.seller, gin.H{"text": "pong"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSetupRouter_CORSPreflight(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/threads", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func setupServiceRouter(t *testing.T) (*gin.Engine, *redis.Client, *miniredis.Miniredis, chan struct{}) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	shutdown := make(chan struct{}, 1)
	return api.SetupServiceRouter(testConfig(), rdb, shutdown), rdb, mr, shutdown
}

func postServiceAPI(r http.Handler, method string, args interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(gin.H{"method": method, "arguments": args})
	req := httptest.NewRequest(http.MethodPost, "/api", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServiceRouter_HealthAndMetrics(t *testing.T) {
	r, _, mr, _ := setupServiceRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "websocket_connections")

	mr.Close()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServiceRouter_Shutdown(t *testing.T) {
	r, _, _, shutdown := setupServiceRouter(t)

	w := postServiceAPI(r, "shutdown", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("shutdown was not signalled")
	}

	// a second request must not block on the full channel
	shutdown <- struct{}{}
	w = postServiceAPI(r, "shutdown", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServiceRouter_GetTestEmail(t *testing.T) {
	r, rdb, mr, _ := setupServiceRouter(t)
	cfg := testConfig()

	msg := email.Message{
		From:    cfg.SmtpFromAddress,
		To:      "buyer@example.com",
		Subject: "You have 1 unread message",
		Kind:    "chat_unread_reminder",
		Body:    "Hi",
	}
	require.NoError(t, email.NewRedisSender(rdb, cfg).Send(context.Background(), []string{msg.To}, msg.Subject, msg.Render(time.Now())))

	w := postServiceAPI(r, "getTestEmail", []string{"chat_unread_reminder", "buyer@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool            `json:"success"`
		Data    email.MockEmail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "You have 1 unread message", resp.Data.Subject)
	assert.Equal(t, "chat_unread_reminder", resp.Data.Kind)

	// consumed on read
	assert.False(t, mr.Exists(email.MockEmailKey("buyer@example.com", "chat_unread_reminder")))
}

func TestServiceRouter_BadRequests(t *testing.T) {
	r, _, _, _ := setupServiceRouter(t)

	w := postServiceAPI(r, "getTestEmail", []string{"only-one"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postServiceAPI(r, "reindex", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
