package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invertase/react-native-firebase/internal/events"
	"github.com/invertase/react-native-firebase/internal/registry"
)

type recordingNative struct {
	payloads []string
	err      error
}

func (n *recordingNative) OnEvent(payload string) error {
	n.payloads = append(n.payloads, payload)
	return n.err
}

func TestSinkEncodesEvents(t *testing.T) {
	native := &recordingNative{}
	s := Sink{Native: native}
	require.NoError(t, s.Emit(context.Background(), events.Event{
		Name:     events.NameValue,
		Store:    "app",
		Listener: "7",
		Kind:     registry.KindValue,
		Path:     "rooms",
	}))
	require.Len(t, native.payloads, 1)
	assert.JSONEq(t, `{"name":"value","store":"app","listenerId":"7","kind":"value","path":"rooms"}`, native.payloads[0])

	native.err = errors.New("detached")
	assert.ErrorContains(t, s.Emit(context.Background(), events.Event{Name: events.NameValue}), "detached")
}
