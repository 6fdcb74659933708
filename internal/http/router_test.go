package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/idmx-dev/poolhouse/internal/appregistry"
	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/flow"
	"github.com/idmx-dev/poolhouse/internal/flow/enginemem"
	"github.com/idmx-dev/poolhouse/internal/identity"
	"github.com/idmx-dev/poolhouse/internal/mfa"
	"github.com/idmx-dev/poolhouse/internal/security/password"
	"github.com/idmx-dev/poolhouse/internal/store"
	"github.com/idmx-dev/poolhouse/internal/store/storetest"
)

type apiHarness struct {
	srv    *httptest.Server
	engine *enginemem.Engine
	conn   store.Connection
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	conn := storetest.NewConn(t)

	accounts := identity.NewService(conn, identity.WithHashParams(
		password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}))
	registry := appregistry.New(conn)
	mfaSvc := mfa.NewService(conn, "poolhouse-test", 4)
	engine := enginemem.New(time.Minute, accounts)
	orch := flow.NewOrchestrator(engine, accounts, mfaSvc, flow.NewSessionStore(time.Minute), conn, "https://idp.test/auth")

	srv := httptest.NewServer(NewRouter(conn, accounts, registry, orch))
	t.Cleanup(srv.Close)
	return &apiHarness{srv: srv, engine: engine, conn: conn}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func TestHealthAndReady(t *testing.T) {
	h := newAPIHarness(t)

	resp, body := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])

	resp, body = h.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "redis", body["backend"])
}

func TestAdminPoolLifecycle(t *testing.T) {
	h := newAPIHarness(t)

	resp, body := h.do(t, http.MethodPost, "/admin/pools", map[string]any{
		"pool_id": "acme", "name": "Acme Corp",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "acme", body["pool_id"])

	// Duplicado -> 409
	resp, body = h.do(t, http.MethodPost, "/admin/pools", map[string]any{
		"pool_id": "acme", "name": "Acme otra vez",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "already_exists", body["error"])

	resp, body = h.do(t, http.MethodGet, "/admin/pools/acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Acme Corp", body["name"])

	resp, _ = h.do(t, http.MethodDelete, "/admin/pools/acme", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/admin/pools/acme", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", body["error"])
}

func TestAdminUserCreateAndList(t *testing.T) {
	h := newAPIHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/admin/pools", map[string]any{"pool_id": "acme", "name": "Acme"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/admin/pools/acme/users", map[string]any{
		"email": "ana@example.com", "password": "S3cure-pass", "given_name": "Ana",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Contains(t, body["user_id"], "usr_")
	// El hash nunca sale por el wire.
	require.NotContains(t, body, "password_hash")

	resp, body = h.do(t, http.MethodGet, "/admin/pools/acme/users?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
}

func TestAdminClientCreateReturnsSecretOnce(t *testing.T) {
	h := newAPIHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/admin/pools", map[string]any{"pool_id": "acme", "name": "Acme"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/admin/clients", map[string]any{
		"pool_id": "acme", "client_name": "Mi App", "redirect_uris": []string{"https://app.test/cb"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, body["client_secret"])
	clientID, _ := body["client_id"].(string)
	require.NotEmpty(t, clientID)

	// El GET posterior no vuelve a exponer el secret.
	resp, body = h.do(t, http.MethodGet, "/admin/clients/"+clientID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotContains(t, body, "client_secret")
}

func TestInteractionLoginOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()

	_, err := h.conn.Pools().Create(ctx, repository.CreatePoolInput{ID: "acme", Name: "Acme"})
	require.NoError(t, err)
	_, err = h.conn.Clients().Create(ctx, repository.CreateClientInput{
		ClientID: "app_acme", ClientSecret: "s", PoolID: "acme",
		RedirectURIs: []string{"https://app.test/cb"},
	})
	require.NoError(t, err)

	resp, _ := h.do(t, http.MethodPost, "/admin/pools/acme/users", map[string]any{
		"email": "ana@example.com", "password": "S3cure-pass",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	uid := h.engine.Begin(flow.Interaction{
		ClientID:    "app_acme",
		RedirectURI: "https://app.test/cb",
		State:       "st",
		Scope:       "openid",
		Prompt:      flow.Prompt{Name: "login"},
	})

	// Password malo: 200 con status de retry, la interaction sigue viva.
	resp, body := h.do(t, http.MethodPost, "/interaction/"+uid+"/login", map[string]any{
		"email": "ana@example.com", "password": "nope",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(flow.StatusInvalidCredentials), body["status"])

	resp, body = h.do(t, http.MethodPost, "/interaction/"+uid+"/login", map[string]any{
		"email": "ana@example.com", "password": "S3cure-pass",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(flow.StatusFinished), body["status"])
	require.NotEmpty(t, body["redirect_to"])

	// Interaction inexistente -> 410
	resp, body = h.do(t, http.MethodPost, "/interaction/no-such/login", map[string]any{
		"email": "ana@example.com", "password": "S3cure-pass",
	})
	require.Equal(t, http.StatusGone, resp.StatusCode)
	require.Equal(t, "interaction_expired", body["error"])
}
