package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/cache"
	"github.com/invertase/react-native-firebase/internal/events"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/service"
	"github.com/invertase/react-native-firebase/internal/ws"
)

func newHandler(t *testing.T) *Handler {
	t.Helper()
	t.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:1")
	snapshots, err := cache.Open(cache.Options{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = snapshots.Close() })

	reg := registry.New(nil)
	mgr := apps.NewManager(reg, registry.NewTransactions(), snapshots, apps.Config{}, nil)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	hub := ws.NewHub(nil)
	return New(hub, service.New(mgr, events.New(reg, hub, nil), nil), nil)
}

func call(t *testing.T, h *Handler, raw string) gjson.Result {
	t.Helper()
	out := h.CallJSON(context.Background(), []byte(raw))
	require.True(t, gjson.ValidBytes(out), string(out))
	return gjson.ParseBytes(out)
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"id": 4, "method": "app.listApps", "args": {"a": 1}}`))
	require.NoError(t, err)
	assert.Equal(t, "4", req.ID)
	assert.Equal(t, "app.listApps", req.Method)
	assert.Equal(t, int64(1), req.Args.Get("a").Int())

	_, err = ParseRequest([]byte(`{"id": 1`))
	assert.Equal(t, nativeerr.InvalidArgument, nativeerr.CodeOf(err))

	req, err = ParseRequest([]byte(`{"id": "x"}`))
	assert.Equal(t, nativeerr.InvalidArgument, nativeerr.CodeOf(err))
	assert.Equal(t, "x", req.ID)
}

func TestIDArgument(t *testing.T) {
	args := gjson.Parse(`{"n": 12, "s": "abc", "empty": "", "obj": {}}`)

	got, err := id(args, "n")
	require.NoError(t, err)
	assert.Equal(t, "12", got)

	got, err = id(args, "s")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	for _, name := range []string{"empty", "obj", "missing"} {
		_, err := id(args, name)
		assert.Equal(t, nativeerr.InvalidArgument, nativeerr.CodeOf(err), name)
	}

	_, err = kind(gjson.Parse(`{"eventType": "child_moved"}`), "eventType")
	require.NoError(t, err)
	_, err = kind(gjson.Parse(`{"eventType": "nope"}`), "eventType")
	assert.Equal(t, nativeerr.InvalidArgument, nativeerr.CodeOf(err))
}

func TestUnknownMethod(t *testing.T) {
	h := newHandler(t)
	resp := call(t, h, `{"id": "1", "method": "storage.upload"}`)
	assert.Equal(t, "1", resp.Get("id").String())
	assert.Equal(t, string(nativeerr.Unimplemented), resp.Get("error.code").String())
	assert.False(t, resp.Get("result").Exists())

	resp = call(t, h, `not json`)
	assert.Equal(t, string(nativeerr.InvalidArgument), resp.Get("error.code").String())
}

func TestAppLifecycle(t *testing.T) {
	h := newHandler(t)

	resp := call(t, h, `{"id": "1", "method": "app.initializeApp", "args": {
		"name": "secondary",
		"options": {"projectId": "demo-bridge", "databaseURL": "localhost:9000?ns=demo-bridge"}
	}}`)
	require.False(t, resp.Get("error").Exists(), resp.Raw)
	assert.Equal(t, "secondary", resp.Get("result.name").String())
	assert.Equal(t, "demo-bridge", resp.Get("result.options.projectId").String())

	resp = call(t, h, `{"id": "2", "method": "app.initializeApp", "args": {"name": "secondary", "options": {}}}`)
	assert.Equal(t, string(nativeerr.AlreadyExists), resp.Get("error.code").String())

	resp = call(t, h, `{"id": "3", "method": "app.listApps"}`)
	assert.Equal(t, "secondary", resp.Get("result.0.name").String())

	resp = call(t, h, `{"id": "4", "method": "app.deleteApp", "args": {"name": "secondary"}}`)
	assert.False(t, resp.Get("error").Exists(), resp.Raw)

	resp = call(t, h, `{"id": "5", "method": "database.once", "args": {"app": "secondary", "path": "a", "eventType": "value"}}`)
	assert.Equal(t, string(nativeerr.NotFound), resp.Get("error.code").String())
}

func TestDatabaseArgumentErrors(t *testing.T) {
	h := newHandler(t)
	resp := call(t, h, `{"id": "1", "method": "database.on", "args": {"path": "rooms", "eventType": "value"}}`)
	assert.Equal(t, string(nativeerr.InvalidArgument), resp.Get("error.code").String())

	resp = call(t, h, `{"id": "2", "method": "database.transactionTryCommit", "args": {"id": 9, "value": 1}}`)
	assert.Equal(t, string(nativeerr.NotFound), resp.Get("error.code").String())
}

func TestHTTPEndpoints(t *testing.T) {
	h := newHandler(t)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","apps":0,"clients":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.HandleCall(rec, httptest.NewRequest(http.MethodPost, "/call",
		strings.NewReader(`{"id": "7", "method": "app.listApps"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"7","result":[]}`, rec.Body.String())
}
