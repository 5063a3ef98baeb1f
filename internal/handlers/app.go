package handlers

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/credentials"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
)

// appOptions reads {projectId, databaseURL, storageBucket, credentials}.
// Credentials may be inline service account JSON, a file path or
// "keyring" for a key stored under the app name.
func appOptions(name string, r gjson.Result) (apps.Options, error) {
	opts := apps.Options{
		ProjectID:     r.Get("projectId").String(),
		DatabaseURL:   r.Get("databaseURL").String(),
		StorageBucket: r.Get("storageBucket").String(),
	}
	c := r.Get("credentials")
	if c.IsObject() {
		opts.Credentials = []byte(c.Raw)
		return opts, nil
	}
	key, err := credentials.Resolve(name, c.String())
	if err != nil {
		return opts, nativeerr.Wrap(nativeerr.FailedPrecondition, err)
	}
	opts.Credentials = key
	return opts, nil
}

func (h *Handler) initializeApp(ctx context.Context, args gjson.Result) (any, error) {
	name := args.Get("name").String()
	opts, err := appOptions(name, args.Get("options"))
	if err != nil {
		return nil, err
	}
	return h.svc.Apps.Initialize(ctx, name, opts)
}

func (h *Handler) deleteApp(ctx context.Context, args gjson.Result) (any, error) {
	return nil, h.svc.Apps.Delete(ctx, args.Get("name").String())
}

func (h *Handler) listApps(context.Context, gjson.Result) (any, error) {
	return h.svc.Apps.List(), nil
}
