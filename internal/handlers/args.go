package handlers

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/snapshot"
)

func required(args gjson.Result, name string) (gjson.Result, error) {
	r := args.Get(name)
	if !r.Exists() {
		return r, nativeerr.New(nativeerr.InvalidArgument, "missing argument %q", name)
	}
	return r, nil
}

// id reads an identifier argument. Numbers are accepted and stringified.
func id(args gjson.Result, name string) (string, error) {
	r, err := required(args, name)
	if err != nil {
		return "", err
	}
	switch r.Type {
	case gjson.String, gjson.Number:
		if s := r.String(); s != "" {
			return s, nil
		}
	}
	return "", nativeerr.New(nativeerr.InvalidArgument, "argument %q must be a string or number", name)
}

func kind(args gjson.Result, name string) (registry.Kind, error) {
	r, err := required(args, name)
	if err != nil {
		return "", err
	}
	k, ok := registry.ParseKind(r.String())
	if !ok {
		return "", nativeerr.Wrap(nativeerr.InvalidArgument, fmt.Errorf("unknown event type %q", r.String()))
	}
	return k, nil
}

// listenOptions reads {includeMetadataChanges}.
func listenOptions(r gjson.Result) snapshot.Options {
	return snapshot.Options{IncludeMetadataChanges: r.Get("includeMetadataChanges").Bool()}
}

// getOptions reads {source}.
func getOptions(r gjson.Result) snapshot.Options {
	return snapshot.Options{Source: snapshot.ParseSource(r.Get("source").String())}
}
