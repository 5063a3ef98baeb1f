// Package server wires the bridge together and serves it over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/cache"
	"github.com/invertase/react-native-firebase/internal/config"
	"github.com/invertase/react-native-firebase/internal/devproxy"
	"github.com/invertase/react-native-firebase/internal/events"
	"github.com/invertase/react-native-firebase/internal/handlers"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/router"
	"github.com/invertase/react-native-firebase/internal/service"
	"github.com/invertase/react-native-firebase/internal/session"
	"github.com/invertase/react-native-firebase/internal/ws"
)

type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	cache   *cache.Store
	apps    *apps.Manager
	hub     *ws.Hub
	tokens  *session.Tokens
	handler *handlers.Handler
	http    *http.Server

	listener net.Listener
}

// New builds every component. Events go to connected websocket clients
// and to sinks.
func New(cfg *config.Config, logger *slog.Logger, sinks ...events.Sink) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secret, err := cfg.Secret()
	if err != nil {
		return nil, err
	}
	snapshots, err := cache.Open(cache.Options{
		Dir:     cfg.CacheDir,
		HotSize: cfg.CacheSize,
		TTL:     cfg.CacheTTL,
	}, logger)
	if err != nil {
		return nil, err
	}

	reg := registry.New(logger)
	mgr := apps.NewManager(reg, registry.NewTransactions(), snapshots,
		apps.Config{PollInterval: cfg.PollInterval}, logger)
	hub := ws.NewHub(logger)
	evts := events.New(reg, append(events.Fanout{hub}, sinks...), logger)
	svc := service.New(mgr, evts, logger)
	h := handlers.New(hub, svc, logger)
	tokens := session.NewTokens(secret, 0)

	var app http.Handler
	if cfg.AppURL != "" {
		if app, err = devproxy.New(cfg.AppURL, logger); err != nil {
			_ = snapshots.Close()
			return nil, err
		}
	}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		cache:   snapshots,
		apps:    mgr,
		hub:     hub,
		tokens:  tokens,
		handler: h,
		http:    &http.Server{Handler: router.New(h, tokens, app, logger)},
	}, nil
}

func (s *Server) Handler() *handlers.Handler { return s.handler }

// InitializeApps creates the instances listed in the config.
func (s *Server) InitializeApps(ctx context.Context) error {
	var errs []error
	for _, a := range s.cfg.Apps {
		opts, err := a.Options()
		if err == nil {
			_, err = s.apps.Initialize(ctx, a.Name, opts)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("app %q: %w", a.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Start listens on the configured address and serves in the background.
// It returns the base URL.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln
	addr := "http://" + ln.Addr().String()
	s.logger.Info("server starting", "addr", addr)

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "err", err)
		}
	}()
	return addr, nil
}

// BridgeURL is the websocket endpoint for client, with a fresh token.
func (s *Server) BridgeURL(client string) (string, error) {
	if s.listener == nil {
		return "", errors.New("server: not started")
	}
	token, err := s.tokens.Issue(client)
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme:   "ws",
		Host:     s.listener.Addr().String(),
		Path:     "/bridge",
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	return u.String(), nil
}

// Shutdown stops serving, deletes every instance and closes the cache.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.listener != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.apps.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
