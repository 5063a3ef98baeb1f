// Package devproxy serves the application page from the bridge origin so
// the page can reach the bridge without cross-origin requests.
package devproxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

func New(appURL string, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	target, err := url.Parse(appURL)
	if err != nil {
		return nil, fmt.Errorf("devproxy: parse %q: %w", appURL, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("devproxy: unsupported scheme %q", target.Scheme)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("app proxy failed", "path", r.URL.Path, "err", err)
		http.Error(w, "application unavailable", http.StatusBadGateway)
	}
	return proxy, nil
}
