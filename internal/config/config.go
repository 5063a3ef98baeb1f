// Package config loads the bridge host configuration.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/credentials"
)

const (
	appName    = "firebridge"
	configFile = "config.yaml"
	secretKey  = "session_secret"
)

// App is an instance initialized at startup.
type App struct {
	Name          string `yaml:"name"`
	ProjectID     string `yaml:"projectId"`
	DatabaseURL   string `yaml:"databaseURL"`
	StorageBucket string `yaml:"storageBucket,omitempty"`
	// Credentials is a service account file path, "keyring", or empty for
	// application default credentials.
	Credentials string `yaml:"credentials,omitempty"`
}

func (a App) Options() (apps.Options, error) {
	key, err := credentials.Resolve(a.Name, a.Credentials)
	if err != nil {
		return apps.Options{}, err
	}
	return apps.Options{
		ProjectID:     a.ProjectID,
		DatabaseURL:   a.DatabaseURL,
		StorageBucket: a.StorageBucket,
		Credentials:   key,
	}, nil
}

type Config struct {
	Listen       string        `yaml:"listen"`
	CacheDir     string        `yaml:"cache_dir"`
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
	// AppURL is the page the desktop window opens.
	AppURL string `yaml:"app_url,omitempty"`
	Apps   []App  `yaml:"apps,omitempty"`

	SessionSecret string `yaml:"-"`
}

func Default(dir string) Config {
	return Config{
		Listen:       "127.0.0.1:0",
		CacheDir:     filepath.Join(dir, "cache"),
		CacheSize:    1024,
		CacheTTL:     24 * time.Hour,
		PollInterval: time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName, configFile), nil
}

// Load reads path, or the default location when path is empty. A missing
// file is created with defaults. The session secret comes from the
// keyring and is generated on first use. Environment variables win over
// both.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	appDir := filepath.Dir(path)
	cfg := Default(appDir)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(appDir, 0700); err != nil {
			return nil, err
		}
		out, _ := yaml.Marshal(cfg)
		_ = os.WriteFile(path, out, 0600)
		log.Printf("Generated new config at: %s", path)
	default:
		return nil, err
	}

	cfg.SessionSecret, err = credentials.LoadAppSecret(secretKey)
	if err != nil {
		if cfg.SessionSecret, err = NewSecret(); err != nil {
			return nil, err
		}
		if err := credentials.StoreAppSecret(secretKey, cfg.SessionSecret); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewSecret returns a random base64 session secret.
func NewSecret() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(secret), nil
}

// Secret decodes the session secret.
func (c *Config) Secret() ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(c.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("session secret: %w", err)
	}
	return secret, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("FIREBRIDGE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("FIREBRIDGE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("FIREBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FIREBRIDGE_APP_URL"); v != "" {
		cfg.AppURL = v
	}
	if v := os.Getenv("FIREBRIDGE_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("FIREBRIDGE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FIREBRIDGE_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	return nil
}
