package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/events"
)

type fakeClient struct {
	id   string
	send chan []byte
}

func newFakeClient(id string, buffer int) *fakeClient {
	return &fakeClient{id: id, send: make(chan []byte, buffer)}
}

func (c *fakeClient) ID() string           { return c.id }
func (c *fakeClient) GetSend() chan []byte { return c.send }
func (c *fakeClient) WritePump()           {}

func TestBroadcastReachesJoinedClients(t *testing.T) {
	h := NewHub(nil)
	a, b := newFakeClient("a", 4), newFakeClient("b", 4)
	h.Register(a)
	h.Register(b)
	h.Join("[DEFAULT]", a)
	h.Join("[DEFAULT]", a)
	h.Join("other", b)
	assert.Equal(t, 2, h.Len())

	h.Broadcast("[DEFAULT]", []byte("x"))
	require.Len(t, a.send, 1)
	assert.Empty(t, b.send)
	assert.Equal(t, []byte("x"), <-a.send)
}

func TestJoinNeedsRegister(t *testing.T) {
	h := NewHub(nil)
	c := newFakeClient("c", 1)
	h.Join("s", c)
	h.Broadcast("s", []byte("x"))
	assert.Empty(t, c.send)
	assert.False(t, h.Push(c, []byte("y")))
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := NewHub(nil)
	c := newFakeClient("c", 1)
	h.Register(c)
	h.Join("s", c)

	h.Broadcast("s", []byte("1"))
	h.Broadcast("s", []byte("2"))
	assert.Len(t, c.send, 1)
	assert.False(t, h.Push(c, []byte("3")))
}

func TestUnregisterClosesSend(t *testing.T) {
	h := NewHub(nil)
	c := newFakeClient("c", 1)
	h.Register(c)
	h.Join("s", c)
	h.Unregister(c)
	h.Unregister(c)

	_, ok := <-c.send
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
	h.Broadcast("s", []byte("x"))
}

func TestEmitEncodesEvent(t *testing.T) {
	h := NewHub(nil)
	c := newFakeClient("c", 1)
	h.Register(c)
	h.Join("app", c)

	require.NoError(t, h.Emit(context.Background(), events.Event{
		Name:     "database_sync_event",
		Store:    "app",
		Listener: "7",
	}))
	require.Len(t, c.send, 1)
	msg := gjson.ParseBytes(<-c.send)
	assert.Equal(t, "database_sync_event", msg.Get("name").String())
	assert.Equal(t, "7", msg.Get("listenerId").String())
}
