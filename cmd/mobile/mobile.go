// Package mobile is the gomobile entry point. Native code registers a
// NativeBridge, starts the bridge and then calls into it with JSON
// requests.
package mobile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/invertase/react-native-firebase/internal/bridge"
	"github.com/invertase/react-native-firebase/internal/config"
	"github.com/invertase/react-native-firebase/internal/logger"
	"github.com/invertase/react-native-firebase/internal/server"
)

var (
	mu     sync.Mutex
	native bridge.NativeBridge
	srv    *server.Server
)

func RegisterBridge(b bridge.NativeBridge) {
	mu.Lock()
	defer mu.Unlock()
	native = b
}

// Start runs the bridge with its files under dataDir and returns the
// websocket endpoint for webview based runtimes. secret is a base64
// session secret kept by the host platform; empty generates one for this
// run only.
func Start(dataDir string, secret string) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if srv != nil {
		return "", fmt.Errorf("server already running")
	}
	if native == nil {
		return "", fmt.Errorf("call RegisterBridge before Start")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg := config.Default(dataDir)
	if secret == "" {
		var err error
		if secret, err = config.NewSecret(); err != nil {
			return "", err
		}
	}
	cfg.SessionSecret = secret

	slogger := logger.New("debug", "text", os.Stdout)
	s, err := server.New(&cfg, slogger, bridge.Sink{Native: native})
	if err != nil {
		return "", err
	}
	if _, err := s.Start(); err != nil {
		_ = s.Shutdown(context.Background())
		return "", err
	}
	url, err := s.BridgeURL("mobile")
	if err != nil {
		_ = s.Shutdown(context.Background())
		return "", err
	}
	srv = s
	return url, nil
}

// Call runs one JSON request and returns the JSON response. Calls that
// wait on the network block, so native code should not call this from
// the main thread.
func Call(request string) string {
	mu.Lock()
	s := srv
	mu.Unlock()

	if s == nil {
		return `{"error":{"code":"failed-precondition","message":"bridge not started"}}`
	}
	return string(s.Handler().CallJSON(context.Background(), []byte(request)))
}

func Stop() {
	mu.Lock()
	defer mu.Unlock()

	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	srv = nil
}
