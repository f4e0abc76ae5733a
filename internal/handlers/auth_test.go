package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randevubu/randevubu-server/internal/handlers/testutil"
)

func TestAuthRegisterLoginAndProfile(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "Ayse@Example.com",
		"password": "Secret123!",
		"name":     "Ayşe",
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var registered testutil.SessionPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &registered)
	require.Equal(t, "ayse@example.com", registered.User.Email)
	require.Equal(t, "Bearer", registered.Token.TokenType)

	// Duplicate registration conflicts.
	resp = env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "ayse@example.com",
		"password": "Secret123!",
	}, "")
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "ayse@example.com",
		"password": "wrong-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeResponse(t, resp).Error.Code)

	resp = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "ayse@example.com",
		"password": "Secret123!",
	}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var login testutil.SessionPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &login)
	require.NotEmpty(t, login.Token.AccessToken)

	summary := env.Monitoring.Snapshot()
	require.Equal(t, uint64(1), summary.Auth.Success)
	require.Equal(t, uint64(1), summary.Auth.Failure)

	resp = env.Request(http.MethodGet, "/api/auth/me", nil, login.Token.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.True(t, env.Cached("v2:profile:"+registered.User.ID))

	resp = env.Request(http.MethodPatch, "/api/auth/me", map[string]string{"name": "Ayşe Y."}, login.Token.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.False(t, env.Cached("v2:profile:"+registered.User.ID))
	require.Contains(t, resp.Body.String(), "Ayşe Y.")
}

func TestAuthRegisterValidatesPayload(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := testutil.DecodeResponse(t, resp)
	require.Contains(t, body.Error.Message, "email must be a valid email address")
	require.Contains(t, body.Error.Message, "password must be at least 8 characters")
}
