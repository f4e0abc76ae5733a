package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randevubu/randevubu-server/internal/handlers/testutil"
)

type businessPayload struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	IsActive bool   `json:"is_active"`
}

type servicePayload struct {
	ID              string `json:"id"`
	BusinessID      string `json:"business_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

func createBusiness(t *testing.T, env *testutil.Env, token, name string) businessPayload {
	t.Helper()
	resp := env.Request(http.MethodPost, "/api/businesses", map[string]any{
		"name":     name,
		"timezone": "Europe/Istanbul",
		"working_hours": map[string]any{
			"monday": map[string]string{"open": "09:00", "close": "18:00"},
		},
	}, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var business businessPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &business)
	return business
}

func createService(t *testing.T, env *testutil.Env, token, businessID string) servicePayload {
	t.Helper()
	resp := env.Request(http.MethodPost, "/api/businesses/"+businessID+"/services", map[string]any{
		"name":             "Saç Kesimi",
		"duration_minutes": 30,
		"price_cents":      25000,
	}, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var service servicePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &service)
	return service
}

func TestBusinessLifecycleKeepsCacheCoherent(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.Register("Secret123!")

	business := createBusiness(t, env, owner.Token, "Güzellik Merkezi")
	require.Equal(t, owner.ID, business.OwnerID)
	require.Equal(t, "guzellik-merkezi", business.Slug)

	resp := env.Request(http.MethodGet, "/api/businesses/"+business.ID, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, env.Cached("v2:business:"+business.ID))

	resp = env.Request(http.MethodGet, "/api/directory/"+business.Slug, nil, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/businesses?q=zellik", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	list := testutil.DecodeResponse(t, resp)
	require.Equal(t, 1, list.Meta.Total)

	name := "Güzellik Salonu"
	resp = env.Request(http.MethodPatch, "/api/businesses/"+business.ID, map[string]any{"name": name}, owner.Token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.False(t, env.Cached("v2:business:"+business.ID))

	resp = env.Request(http.MethodGet, "/api/businesses/"+business.ID, nil, "")
	var refreshed businessPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &refreshed)
	require.Equal(t, name, refreshed.Name)

	resp = env.Request(http.MethodGet, "/api/me/businesses", nil, owner.Token)
	require.Equal(t, http.StatusOK, resp.Code)
	var mine []businessPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &mine)
	require.Len(t, mine, 1)

	resp = env.Request(http.MethodDelete, "/api/businesses/"+business.ID, nil, owner.Token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodGet, "/api/businesses/"+business.ID, nil, "")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestBusinessMutationsRequireOwner(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.Register("Secret123!")
	stranger := env.Register("Secret123!")
	business := createBusiness(t, env, owner.Token, "Berber Ali")

	resp := env.Request(http.MethodPatch, "/api/businesses/"+business.ID, map[string]any{"name": "Hijacked"}, stranger.Token)
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.Request(http.MethodPost, "/api/businesses/"+business.ID+"/services", map[string]any{
		"name":             "Tıraş",
		"duration_minutes": 15,
	}, stranger.Token)
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.Request(http.MethodDelete, "/api/businesses/missing", nil, owner.Token)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestBusinessCreateRejectsInvalidWorkingHours(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.Register("Secret123!")

	resp := env.Request(http.MethodPost, "/api/businesses", map[string]any{
		"name": "Spa",
		"working_hours": map[string]any{
			"monday": map[string]string{"open": "9am", "close": "18:00"},
		},
	}, owner.Token)
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
}

func TestOfferingRoutes(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.Register("Secret123!")
	business := createBusiness(t, env, owner.Token, "Nail Studio")
	service := createService(t, env, owner.Token, business.ID)

	resp := env.Request(http.MethodGet, "/api/businesses/"+business.ID+"/services", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var services []servicePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &services)
	require.Len(t, services, 1)

	resp = env.Request(http.MethodGet, "/api/businesses/"+business.ID+"/services/"+service.ID, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, env.Cached("v2:service:biz:"+business.ID+":"+service.ID))

	resp = env.Request(http.MethodPatch, "/api/businesses/"+business.ID+"/services/"+service.ID, map[string]any{"is_active": false}, owner.Token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.False(t, env.Cached("v2:service:biz:"+business.ID+":"+service.ID))

	resp = env.Request(http.MethodGet, "/api/businesses/"+business.ID+"/services", nil, "")
	var raw []json.RawMessage
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &raw)
	require.Empty(t, raw)

	resp = env.Request(http.MethodDelete, "/api/businesses/"+business.ID+"/services/"+service.ID, nil, owner.Token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}
