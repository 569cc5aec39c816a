package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/remote"
	"github.com/ledgerline/ledgerline/internal/remote/remotetest"
	"github.com/ledgerline/ledgerline/internal/shared"
	"github.com/ledgerline/ledgerline/internal/tenant"
)

type fakeBackend struct {
	tenants map[string]string // slug -> tenant id, api key is always "secret"
}

func (b *fakeBackend) Authenticate(ctx context.Context, slug, apiKey string) (string, error) {
	id, ok := b.tenants[slug]
	if !ok || apiKey != "secret" {
		return "", shared.ErrInvalidCredentials
	}
	return id, nil
}

func (b *fakeBackend) StorefrontProducts(ctx context.Context, slug string) ([]remote.Row, error) {
	if _, ok := b.tenants[slug]; !ok {
		return nil, shared.ErrNotFound
	}
	return []remote.Row{{"id": "p1", "name": "Anvil", "price": 49.9}}, nil
}

type testEnv struct {
	router http.Handler
	store  *remotetest.Store
	stream *remotetest.Stream
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := remotetest.NewStore("tenant-a")
	stream := remotetest.NewStream()
	sessions := shared.NewSessionManager(client, time.Hour)
	workspaces := tenant.NewManager(tenant.Dependencies{
		Logger: slog.Default(),
		Stores: staticProvider{store: store},
		Stream: stream,
	})
	t.Cleanup(workspaces.Shutdown)

	backend := &fakeBackend{tenants: map[string]string{"acme": "tenant-a"}}
	api := NewAPI(slog.Default(), sessions, workspaces, backend)
	router := NewRouter(MiddlewareConfig{
		Logger:     slog.Default(),
		Sessions:   sessions,
		Workspaces: workspaces,
	}, api)
	return &testEnv{router: router, store: store, stream: stream}
}

type staticProvider struct {
	store *remotetest.Store
}

func (p staticProvider) Tenant(string) remote.Store { return p.store }

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signIn(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/sessions", "", map[string]string{
		"slug": "acme", "api_key": "secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var out struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Data.Token)
	return out.Data.Token
}

func TestHealthz(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSignInRejectsBadKey(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/sessions", "", map[string]string{
		"slug": "acme", "api_key": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthedRoutesRequireSession(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/products", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/products", "bogus-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductLifecycleOverHTTP(t *testing.T) {
	env := newEnv(t)
	token := env.signIn(t)

	rec := env.do(t, http.MethodPost, "/v1/products", token, map[string]any{
		"name": "Anvil", "sku": "ANV-1", "price": 49.9, "stock": 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodGet, "/v1/products", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Anvil")

	rec = env.do(t, http.MethodDelete, "/v1/products/"+created.Data.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestValidationErrorsMapTo422(t *testing.T) {
	env := newEnv(t)
	token := env.signIn(t)
	rec := env.do(t, http.MethodPost, "/v1/products", token, map[string]any{"sku": "X"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCategoryConflictMapsTo409(t *testing.T) {
	env := newEnv(t)
	token := env.signIn(t)

	rec := env.do(t, http.MethodPost, "/v1/categories", token, map[string]any{"name": "Mugs"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	env.store.Seed("products", remote.Row{
		"id": "p1", "name": "mug", "sku": "M-1",
		"category_id": created.Data.ID, "is_active": true,
	})
	rec = env.do(t, http.MethodDelete, "/v1/categories/"+created.Data.ID, token, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignOutInvalidatesSession(t *testing.T) {
	env := newEnv(t)
	token := env.signIn(t)

	rec := env.do(t, http.MethodDelete, "/v1/sessions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/products", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStorefrontIsPublic(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/storefront/acme/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Anvil")

	rec = env.do(t, http.MethodGet, "/v1/storefront/ghost/products", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedBodyMapsTo422(t *testing.T) {
	env := newEnv(t)
	token := env.signIn(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/products", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
