// Package webview hosts an application page in a desktop window and points
// it at the bridge.
package webview

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/toqueteos/webbrowser"
	webview "github.com/webview/webview_go"
)

const BaseTitle = "Firebridge"

type Options struct {
	// URL is the application page.
	URL string
	// BridgeURL is the websocket endpoint, token included.
	BridgeURL string
	Title     string
	Width     int
	Height    int
	Debug     bool
}

type Window struct {
	mu     sync.Mutex
	view   webview.WebView
	title  string
	logger *slog.Logger
}

func Title(title string) string {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return BaseTitle
	}
	return fmt.Sprintf("%s | %s", BaseTitle, trimmed)
}

// InitScript exposes the bridge endpoint as window.__FIREBRIDGE__ and
// sends links that leave appOrigin to the system browser.
func InitScript(bridgeURL, appOrigin string) string {
	cfg, _ := json.Marshal(map[string]string{"url": bridgeURL})
	origin, _ := json.Marshal(appOrigin)
	return fmt.Sprintf(`
    window.__FIREBRIDGE__ = %s;
    document.addEventListener("click", function(e) {
        const a = e.target.closest("a");
        if (!a || !a.href) return;
        if (a.href.startsWith(%s) || a.href.startsWith("/")) return;
        e.preventDefault();
        openExternal(a.href);
    });
`, cfg, origin)
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

func New(opts Options, logger *slog.Logger) *Window {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 1040, 768
	}
	w := webview.New(opts.Debug)
	title := Title(opts.Title)
	w.SetTitle(title)
	w.SetSize(opts.Width, opts.Height, webview.HintMin)
	w.Init(InitScript(opts.BridgeURL, origin(opts.URL)))
	w.Bind("openExternal", func(target string) error {
		logger.Debug("opening external link", "url", target)
		return webbrowser.Open(target)
	})
	w.Navigate(opts.URL)
	return &Window{view: w, title: title, logger: logger}
}

// Run blocks until the window closes.
func (w *Window) Run() {
	w.view.Run()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.view.Destroy()
	w.view = nil
}

func (w *Window) GetTitle() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}

func (w *Window) SetTitle(title string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.title = Title(title)
	if w.view != nil {
		view, newTitle := w.view, w.title
		view.Dispatch(func() {
			view.SetTitle(newTitle)
		})
	}
}

// Close ends Run from any goroutine.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.view == nil {
		return
	}
	view := w.view
	view.Dispatch(func() {
		view.Terminate()
	})
}
