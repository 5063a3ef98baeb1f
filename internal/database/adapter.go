// Package database adapts the Realtime Database Go SDK to the bridge. The
// SDK speaks REST, so live listeners poll and diff successive reads.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"time"

	"firebase.google.com/go/v4/db"
	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

var errAborted = errors.New("database: transaction aborted by caller")

const DefaultPollInterval = time.Second

type Options struct {
	PollInterval time.Duration
}

type Adapter struct {
	base     context.Context
	store    string
	client   *db.Client
	interval time.Duration
	logger   *slog.Logger
}

func New(base context.Context, store string, client *db.Client, opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Adapter{
		base:     base,
		store:    store,
		client:   client,
		interval: opts.PollInterval,
		logger:   logger.With("store", store, "sdk", "database"),
	}
}

// Location is one read of a location, children in query order.
type Location struct {
	Path     string
	Exists   bool
	Value    tagged.Value
	Children []models.ChildValue
}

func (l Location) Document(store string) models.Document {
	return models.Document{Store: store, Path: l.Path, Exists: l.Exists, Data: l.Value}
}

func (a *Adapter) child(location string, c models.ChildValue) models.Document {
	return models.Document{
		Store:  a.store,
		Path:   path.Join(location, c.Key),
		Exists: true,
		Data:   c.Value,
	}
}

func locationFromRaw(p string, raw json.RawMessage) Location {
	loc := Location{Path: p, Value: tagged.Null()}
	if len(raw) == 0 {
		return loc
	}
	v := tagged.FromPlain(gjson.ParseBytes(raw))
	switch v.Kind() {
	case tagged.KindNull:
		return loc
	case tagged.KindMap:
		fields := slices.Clone(v.Fields())
		slices.SortStableFunc(fields, func(a, b tagged.Field) int {
			switch {
			case keyLess(a.Key, b.Key):
				return -1
			case keyLess(b.Key, a.Key):
				return 1
			}
			return 0
		})
		for _, f := range fields {
			loc.Children = append(loc.Children, models.ChildValue{Key: f.Key, Value: f.Value})
		}
		v = tagged.Map(fields...)
	case tagged.KindArray:
		for i, it := range v.Items() {
			if it.IsNull() {
				continue
			}
			loc.Children = append(loc.Children, models.ChildValue{Key: fmt.Sprint(i), Value: it})
		}
	}
	loc.Exists = true
	loc.Value = v
	return loc
}

func locationFromNodes(p string, nodes []db.QueryNode) (Location, error) {
	loc := Location{Path: p, Value: tagged.Null()}
	if len(nodes) == 0 {
		return loc, nil
	}
	fields := make([]tagged.Field, 0, len(nodes))
	for _, n := range nodes {
		var raw json.RawMessage
		if err := n.Unmarshal(&raw); err != nil {
			return Location{}, fmt.Errorf("read child %s of %s: %w", n.Key(), p, err)
		}
		c := models.ChildValue{Key: n.Key(), Value: tagged.FromPlain(gjson.ParseBytes(raw))}
		loc.Children = append(loc.Children, c)
		fields = append(fields, tagged.Field{Key: c.Key, Value: c.Value})
	}
	loc.Exists = true
	loc.Value = tagged.Map(fields...)
	return loc, nil
}

func (a *Adapter) Get(ctx context.Context, spec QuerySpec) (Location, error) {
	if !spec.IsQuery() {
		var raw json.RawMessage
		if err := a.client.NewRef(spec.Path).Get(ctx, &raw); err != nil {
			return Location{}, err
		}
		return locationFromRaw(spec.Path, raw), nil
	}
	nodes, err := spec.Build(a.client).GetOrdered(ctx)
	if err != nil {
		return Location{}, err
	}
	return locationFromNodes(spec.Path, nodes)
}

// watch holds the state of one polling listener.
type watch struct {
	adapter *Adapter
	spec    QuerySpec
	etag    string
	last    *Location
}

// fetch reads the location and reports whether it differs from the last
// read. Plain locations use ETags so unchanged data is not downloaded.
func (w *watch) fetch(ctx context.Context) (Location, bool, error) {
	var loc Location
	if w.spec.IsQuery() {
		var err error
		if loc, err = w.adapter.Get(ctx, w.spec); err != nil {
			return Location{}, false, err
		}
	} else {
		ref := w.adapter.client.NewRef(w.spec.Path)
		var raw json.RawMessage
		if w.etag == "" {
			etag, err := ref.GetWithETag(ctx, &raw)
			if err != nil {
				return Location{}, false, err
			}
			w.etag = etag
		} else {
			changed, etag, err := ref.GetIfChanged(ctx, w.etag, &raw)
			if err != nil {
				return Location{}, false, err
			}
			if !changed {
				return *w.last, false, nil
			}
			w.etag = etag
		}
		loc = locationFromRaw(w.spec.Path, raw)
	}
	if w.last != nil && w.last.Exists == loc.Exists && tagged.Equal(w.last.Value, loc.Value) {
		return loc, false, nil
	}
	return loc, true, nil
}

// emit sends child events then the value event for loc.
func (w *watch) emit(ctx context.Context, loc Location, l models.Listener) {
	var prev []models.ChildValue
	if w.last != nil {
		prev = w.last.Children
	}
	events := models.DiffChildren(models.NewChildTree(prev), models.NewChildTree(loc.Children))
	for _, ev := range events {
		doc := w.adapter.child(loc.Path, ev.Child)
		switch ev.Type {
		case models.ChangeAdded:
			l.OnChildAdded(ctx, doc, ev.PreviousKey)
		case models.ChangeModified:
			l.OnChildChanged(ctx, doc, ev.PreviousKey)
		case models.ChangeMoved:
			l.OnChildMoved(ctx, doc, ev.PreviousKey)
		case models.ChangeRemoved:
			l.OnChildRemoved(ctx, doc)
		}
	}
	l.OnValue(ctx, loc.Document(w.adapter.store))
	w.last = &loc
}

// pollBackoff spaces out reads after transient failures, starting at the
// poll interval.
func (a *Adapter) pollBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.interval
	b.MaxInterval = max(30*time.Second, a.interval)
	b.MaxElapsedTime = 0
	return b
}

// Watch polls spec until the handle is released. The first read reports
// every child as added and always produces a value event. Transient
// failures are reported and polling continues with backoff; terminal ones
// end the watch.
func (a *Adapter) Watch(spec QuerySpec, l models.Listener) models.Handle {
	ctx, cancel := context.WithCancel(a.base)
	w := &watch{adapter: a, spec: spec}
	go func() {
		b := a.pollBackoff()
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			wait := a.interval
			loc, changed, err := w.fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			switch {
			case err != nil:
				l.OnError(ctx, err)
				if nativeerr.IsTerminal(err) {
					a.logger.Debug("database watch ended", "path", spec.Path, "err", err)
					return
				}
				wait = b.NextBackOff()
				a.logger.Debug("database watch retrying", "path", spec.Path, "in", wait, "err", err)
			case changed:
				b.Reset()
				w.emit(ctx, loc, l)
			default:
				b.Reset()
			}
			timer.Reset(wait)
		}
	}()
	return models.HandleFunc(cancel)
}

func (a *Adapter) Set(ctx context.Context, p string, v tagged.Value) error {
	return a.client.NewRef(CleanPath(p)).Set(ctx, json.RawMessage(v.Plain()))
}

// Update writes several children at once. Keys may be relative paths.
func (a *Adapter) Update(ctx context.Context, p string, values tagged.Value) error {
	if values.Kind() != tagged.KindMap || values.Len() == 0 {
		return nativeerr.New(nativeerr.InvalidArgument, "update values must be a non-empty object")
	}
	m := make(map[string]any, values.Len())
	for _, f := range values.Fields() {
		m[f.Key] = json.RawMessage(f.Value.Plain())
	}
	return a.client.NewRef(CleanPath(p)).Update(ctx, m)
}

func (a *Adapter) Remove(ctx context.Context, p string) error {
	return a.client.NewRef(CleanPath(p)).Delete(ctx)
}

// Attempt computes the next value of a location from its current value.
// Abort ends the transaction without writing.
type Attempt func(ctx context.Context, current Location) (next tagged.Value, abort bool, err error)

// Transact runs attempt against the location until a write succeeds
// without conflict. It returns the location as committed and whether
// anything was written.
func (a *Adapter) Transact(ctx context.Context, p string, attempt Attempt) (Location, bool, error) {
	p = CleanPath(p)
	var (
		result    Location
		committed bool
	)
	err := a.client.NewRef(p).Transaction(ctx, func(node db.TransactionNode) (any, error) {
		var raw json.RawMessage
		if err := node.Unmarshal(&raw); err != nil {
			return nil, err
		}
		current := locationFromRaw(p, raw)
		next, abort, err := attempt(ctx, current)
		if err != nil {
			return nil, err
		}
		if abort {
			result, committed = current, false
			return nil, errAborted
		}
		plain := next.Plain()
		result, committed = locationFromRaw(p, plain), true
		return json.RawMessage(plain), nil
	})
	if errors.Is(err, errAborted) {
		return result, false, nil
	}
	if err != nil {
		return Location{}, false, fmt.Errorf("transaction on %s: %w", p, err)
	}
	return result, committed, nil
}
