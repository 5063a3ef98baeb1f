package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/toqueteos/webbrowser"

	"github.com/invertase/react-native-firebase/internal/config"
	"github.com/invertase/react-native-firebase/internal/logger"
	"github.com/invertase/react-native-firebase/internal/server"
	"github.com/invertase/react-native-firebase/internal/webview"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "config file (default: user config dir)")
		listen     = pflag.StringP("listen", "l", "", "listen address, overrides the config")
		logLevel   = pflag.String("log-level", "", "debug, info, warn or error")
		appURL     = pflag.String("app-url", "", "application page for --window and --open")
		window     = pflag.Bool("window", false, "open the application page in a desktop window")
		open       = pflag.Bool("open", false, "open the application page in the system browser")
		debug      = pflag.Bool("debug", false, "enable webview developer tools")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *appURL != "" {
		cfg.AppURL = *appURL
	}

	slogger := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(slogger)

	if err := os.MkdirAll(cfg.CacheDir, 0700); err != nil {
		slogger.Error("failed to create cache directory", "err", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, slogger)
	if err != nil {
		slogger.Error("failed to build server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.InitializeApps(ctx); err != nil {
		slogger.Warn("some apps failed to initialize", "err", err)
	}

	addr, err := srv.Start()
	if err != nil {
		slogger.Error("failed to start server", "err", err)
		os.Exit(1)
	}
	bridgeURL, err := srv.BridgeURL("desktop")
	if err != nil {
		slogger.Error("failed to issue bridge token", "err", err)
		os.Exit(1)
	}
	fmt.Println(bridgeURL)

	switch {
	case *window && cfg.AppURL != "":
		w := webview.New(webview.Options{
			URL:       cfg.AppURL,
			BridgeURL: bridgeURL,
			Debug:     *debug,
		}, slogger)
		go func() {
			<-ctx.Done()
			w.Close()
		}()
		w.Run()
		slogger.Info("window closed, shutting down")
	case *open && cfg.AppURL != "":
		if err := webbrowser.Open(withBridge(cfg.AppURL, bridgeURL)); err != nil {
			slogger.Warn("failed to open browser", "err", err)
		}
		<-ctx.Done()
	default:
		slogger.Info("bridge ready", "addr", addr)
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slogger.Error("shutdown failed", "err", err)
		os.Exit(1)
	}
}

// withBridge passes the bridge endpoint to a browser page in its fragment.
func withBridge(page, bridgeURL string) string {
	u, err := url.Parse(page)
	if err != nil {
		return page
	}
	u.Fragment = "firebridge=" + url.QueryEscape(bridgeURL)
	return u.String()
}
