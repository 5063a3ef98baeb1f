// Package bridge connects the event router to a native host embedding the
// bridge through gomobile.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invertase/react-native-firebase/internal/events"
)

// NativeBridge is implemented by the native side (Swift/Kotlin).
// gomobile exposes this as an interface that native code can satisfy.
//
// Rules for gomobile compatibility:
//   - methods may only use primitive types, strings, []byte, or other
//     gomobile-bound types as parameters and return values
//   - no variadic parameters
//   - errors are returned as a second return value
type NativeBridge interface {
	// OnEvent receives one JSON encoded event:
	// {"name", "store", "listenerId", "body"|"error"}.
	OnEvent(payload string) error
}

var _ events.Sink = Sink{}

// Sink delivers router events to a NativeBridge.
type Sink struct {
	Native NativeBridge
}

func (s Sink) Emit(_ context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Name, err)
	}
	if err := s.Native.OnEvent(string(data)); err != nil {
		return fmt.Errorf("native %s event: %w", ev.Name, err)
	}
	return nil
}
