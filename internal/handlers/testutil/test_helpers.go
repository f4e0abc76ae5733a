package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/api"
	"github.com/randevubu/randevubu-server/internal/app"
	iauth "github.com/randevubu/randevubu-server/internal/auth"
	"github.com/randevubu/randevubu-server/internal/cache"
	sharedtestutil "github.com/randevubu/randevubu-server/internal/database/testutil"
	"github.com/randevubu/randevubu-server/internal/middleware"
	"github.com/randevubu/randevubu-server/internal/monitoring"
	"github.com/randevubu/randevubu-server/internal/services"
	"github.com/randevubu/randevubu-server/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database and cache for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Store      *cache.MemoryStore
	Cache      *cache.Service
	Services   *services.Services
	Monitoring *monitoring.Module
	Router     *gin.Engine
	Tokens     *iauth.TokenIssuer
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithRateLimit enables the request limiter.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit = app.RateLimitConfig{Enabled: true, Requests: requests, Window: window}
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	mod, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)

	store := cache.NewMemoryStore()
	metrics, err := cache.NewMetrics(mod.Registry(), "randevubu")
	require.NoError(t, err)
	cacheSvc, err := cache.NewService(store, cache.ServiceOptions{
		Logger:        zap.NewNop(),
		Metrics:       metrics,
		JitterPercent: -1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheSvc.Close() })

	svc, err := services.New(db, cacheSvc, mod, zap.NewNop())
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tokens, err := iauth.NewTokenIssuer(cfg.Auth.TokenConfig())
	require.NoError(t, err)

	router, err := api.NewRouter(api.Options{
		Config:     cfg,
		Services:   svc,
		Tokens:     tokens,
		Cache:      cacheSvc,
		Monitoring: mod,
		RateStore:  middleware.NewRateStore(store),
	})
	require.NoError(t, err)

	return &Env{
		T:          t,
		DB:         db,
		Store:      store,
		Cache:      cacheSvc,
		Services:   svc,
		Monitoring: mod,
		Router:     router,
		Tokens:     tokens,
	}
}

// Account is a registered user together with a valid access token.
type Account struct {
	ID    string
	Email string
	Token string
}

// Register creates a user through the public API and returns its access token.
func (e *Env) Register(password string) Account {
	e.T.Helper()

	email := "user-" + uuid.NewString()[:8] + "@example.com"
	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     "Test User",
	}, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	var result SessionPayload
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &result)
	require.NotEmpty(e.T, result.Token.AccessToken)
	return Account{ID: result.User.ID, Email: email, Token: result.Token.AccessToken}
}

// RegisterAdmin registers a user and grants administrative access.
func (e *Env) RegisterAdmin(password string) Account {
	e.T.Helper()

	account := e.Register(password)
	_, err := e.Services.Users.SetAdmin(context.Background(), account.Email, true)
	require.NoError(e.T, err)
	return account
}

// SessionPayload mirrors the register and login response payload.
type SessionPayload struct {
	User struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		IsAdmin bool   `json:"is_admin"`
	} `json:"user"`
	Token struct {
		AccessToken string    `json:"access_token"`
		TokenType   string    `json:"token_type"`
		ExpiresAt   time.Time `json:"expires_at"`
	} `json:"token"`
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Cached reports whether key is present in the cache store.
func (e *Env) Cached(key string) bool {
	e.T.Helper()
	_, ok, err := e.Store.Get(context.Background(), key)
	require.NoError(e.T, err)
	return ok
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, buf)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
