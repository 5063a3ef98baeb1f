package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/cache"
	"github.com/invertase/react-native-firebase/internal/events"
	"github.com/invertase/react-native-firebase/internal/handlers"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/service"
	"github.com/invertase/react-native-firebase/internal/session"
	"github.com/invertase/react-native-firebase/internal/ws"
)

func newRouter(t *testing.T, app http.Handler) (http.Handler, *session.Tokens) {
	t.Helper()
	snapshots, err := cache.Open(cache.Options{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = snapshots.Close() })

	reg := registry.New(nil)
	mgr := apps.NewManager(reg, registry.NewTransactions(), snapshots, apps.Config{}, nil)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	hub := ws.NewHub(nil)
	h := handlers.New(hub, service.New(mgr, events.New(reg, hub, nil), nil), nil)

	tokens := session.NewTokens([]byte("0123456789abcdef0123456789abcdef"), 0)
	return New(h, tokens, app, slog.Default()), tokens
}

func TestHealthIsPublic(t *testing.T) {
	r, _ := newRouter(t, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBridgeRoutesNeedToken(t *testing.T) {
	r, tokens := newRouter(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/apps", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := tokens.Issue("test")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUnknownPathsGoToApp(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "app "+r.URL.Path)
	})
	r, _ := newRouter(t, app)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/main.js", nil))
	assert.Equal(t, "app /assets/main.js", rec.Body.String())

	r, _ = newRouter(t, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/main.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
