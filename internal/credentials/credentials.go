// Package credentials keeps service account keys and bridge secrets in the
// OS keyring.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/zalando/go-keyring"
)

const (
	serviceName  = "firebridge"
	knownAppsKey = "app:known_apps"
)

var ErrNotFound = errors.New("credentials: not found")

func accountKey(app string) string { return app + ":service_account" }

// StoreServiceAccount saves a service account key for app after checking
// that it is a JSON object.
func StoreServiceAccount(app string, key []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(key, &obj); err != nil {
		return fmt.Errorf("service account for %s: %w", app, err)
	}
	if err := keyring.Set(serviceName, accountKey(app), string(key)); err != nil {
		return fmt.Errorf("store service account: %w", err)
	}
	return addKnownApp(app)
}

func LoadServiceAccount(app string) ([]byte, error) {
	raw, err := keyring.Get(serviceName, accountKey(app))
	if err != nil {
		return nil, fmt.Errorf("%w: service account for %s", ErrNotFound, app)
	}
	return []byte(raw), nil
}

func DeleteServiceAccount(app string) {
	_ = keyring.Delete(serviceName, accountKey(app))
	_ = removeKnownApp(app)
}

// Resolve loads the key that ref points to: "" means none, "keyring" the
// key stored for app, anything else a file path.
func Resolve(app, ref string) ([]byte, error) {
	switch ref {
	case "":
		return nil, nil
	case "keyring":
		return LoadServiceAccount(app)
	}
	key, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("service account for %s: %w", app, err)
	}
	return key, nil
}

func StoreAppSecret(key string, value string) error {
	return keyring.Set(serviceName, "app:"+key, value)
}

func LoadAppSecret(key string) (string, error) {
	val, err := keyring.Get(serviceName, "app:"+key)
	if err != nil {
		return "", ErrNotFound
	}
	return val, nil
}

func DeleteAppSecret(key string) {
	_ = keyring.Delete(serviceName, "app:"+key)
}

func addKnownApp(app string) error {
	apps := KnownApps()
	if slices.Contains(apps, app) {
		return nil
	}
	apps = append(apps, app)
	data, _ := json.Marshal(apps)
	return keyring.Set(serviceName, knownAppsKey, string(data))
}

func removeKnownApp(app string) error {
	apps := slices.DeleteFunc(KnownApps(), func(a string) bool { return a == app })
	data, _ := json.Marshal(apps)
	return keyring.Set(serviceName, knownAppsKey, string(data))
}

// KnownApps lists the apps with a stored service account.
func KnownApps() []string {
	raw, err := keyring.Get(serviceName, knownAppsKey)
	if err != nil {
		return nil
	}
	var apps []string
	_ = json.Unmarshal([]byte(raw), &apps)
	return apps
}
