// Package firestore adapts the Cloud Firestore Go SDK to the bridge: reads,
// snapshot streams, writes and transactions for one store instance.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/invertase/react-native-firebase/internal/codec"
	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

var errAborted = errors.New("firestore: transaction aborted by caller")

type Adapter struct {
	base    context.Context
	store   string
	client  *gcfirestore.Client
	codec   *codec.Codec
	logger  *slog.Logger
	backoff func() backoff.BackOff
}

// New binds an adapter to client. base bounds the lifetime of every
// snapshot stream the adapter starts.
func New(base context.Context, store string, client *gcfirestore.Client, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		base:    base,
		store:   store,
		client:  client,
		codec:   codec.New(store, client),
		logger:  logger.With("store", store, "sdk", "firestore"),
		backoff: streamBackoff,
	}
}

func (a *Adapter) Codec() *codec.Codec { return a.codec }

func (a *Adapter) Close() error { return a.client.Close() }

func (a *Adapter) doc(path string) (*gcfirestore.DocumentRef, error) {
	if err := codec.ValidateDocumentPath(path); err != nil {
		return nil, nativeerr.Wrap(nativeerr.InvalidArgument, err)
	}
	ref := a.client.Doc(path)
	if ref == nil {
		return nil, nativeerr.New(nativeerr.InvalidArgument, "%q is not a document path", path)
	}
	return ref, nil
}

func (a *Adapter) document(path string, snap *gcfirestore.DocumentSnapshot) models.Document {
	doc := models.Document{Store: a.store, Path: path}
	if snap == nil {
		return doc
	}
	if snap.Ref != nil {
		doc.Path = codec.RelativePath(snap.Ref.Path)
	}
	if snap.Exists() {
		doc.Exists = true
		doc.Data = snap.Data()
	}
	return doc
}

func (a *Adapter) GetDocument(ctx context.Context, path string) (models.Document, error) {
	ref, err := a.doc(path)
	if err != nil {
		return models.Document{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return models.Document{}, err
	}
	return a.document(path, snap), nil
}

func (a *Adapter) GetQuery(ctx context.Context, spec QuerySpec) (models.QueryResult, error) {
	q, err := spec.Build(a.client, a.codec)
	if err != nil {
		return models.QueryResult{}, err
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return models.QueryResult{}, err
	}
	res := models.QueryResult{Store: a.store, Path: spec.Path}
	for i, snap := range snaps {
		doc := a.document("", snap)
		res.Docs = append(res.Docs, doc)
		res.Changes = append(res.Changes, models.Change{
			Type:     models.ChangeAdded,
			Doc:      doc,
			OldIndex: -1,
			NewIndex: i,
		})
	}
	return res, nil
}

func streamBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// stream runs next until the handle is released. Terminal errors end the
// stream after the listener has seen them; other errors restart it with
// backoff.
func (a *Adapter) stream(
	l models.Listener,
	what string,
	open func(ctx context.Context) (next func() error, stop func()),
) models.Handle {
	ctx, cancel := context.WithCancel(a.base)
	go func() {
		b := a.backoff()
		for {
			next, stop := open(ctx)
			err := a.pump(ctx, next, b)
			stop()
			if ctx.Err() != nil || err == nil {
				return
			}
			l.OnError(ctx, err)
			if nativeerr.IsTerminal(err) {
				a.logger.Debug("snapshot stream ended", "target", what, "err", err)
				return
			}
			wait := b.NextBackOff()
			a.logger.Debug("snapshot stream restarting", "target", what, "in", wait, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}()
	return models.HandleFunc(cancel)
}

func (a *Adapter) pump(ctx context.Context, next func() error, b backoff.BackOff) error {
	for {
		err := next()
		if ctx.Err() != nil || errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		b.Reset()
	}
}

func (a *Adapter) WatchDocument(path string, l models.Listener) (models.Handle, error) {
	ref, err := a.doc(path)
	if err != nil {
		return nil, err
	}
	return a.stream(l, path, func(ctx context.Context) (func() error, func()) {
		it := ref.Snapshots(ctx)
		next := func() error {
			snap, err := it.Next()
			if err != nil {
				return err
			}
			l.OnValue(ctx, a.document(path, snap))
			return nil
		}
		return next, it.Stop
	}), nil
}

func (a *Adapter) WatchQuery(spec QuerySpec, l models.Listener) (models.Handle, error) {
	q, err := spec.Build(a.client, a.codec)
	if err != nil {
		return nil, err
	}
	return a.stream(l, spec.Path, func(ctx context.Context) (func() error, func()) {
		it := q.Snapshots(ctx)
		next := func() error {
			qs, err := it.Next()
			if err != nil {
				return err
			}
			res, err := a.queryResult(spec.Path, qs)
			if err != nil {
				return err
			}
			l.OnQuery(ctx, res)
			return nil
		}
		return next, it.Stop
	}), nil
}

func (a *Adapter) queryResult(path string, qs *gcfirestore.QuerySnapshot) (models.QueryResult, error) {
	snaps, err := qs.Documents.GetAll()
	if err != nil {
		return models.QueryResult{}, err
	}
	res := models.QueryResult{Store: a.store, Path: path}
	for _, snap := range snaps {
		res.Docs = append(res.Docs, a.document("", snap))
	}
	for _, ch := range qs.Changes {
		res.Changes = append(res.Changes, models.Change{
			Type:     changeType(ch.Kind),
			Doc:      a.document("", ch.Doc),
			OldIndex: ch.OldIndex,
			NewIndex: ch.NewIndex,
		})
	}
	return res, nil
}

func changeType(k gcfirestore.DocumentChangeKind) models.ChangeType {
	switch k {
	case gcfirestore.DocumentAdded:
		return models.ChangeAdded
	case gcfirestore.DocumentRemoved:
		return models.ChangeRemoved
	default:
		return models.ChangeModified
	}
}

// SetOptions selects merge behavior for Set. MergeFields wins over Merge.
type SetOptions struct {
	Merge       bool
	MergeFields []gcfirestore.FieldPath
}

func (o SetOptions) native() []gcfirestore.SetOption {
	switch {
	case len(o.MergeFields) > 0:
		return []gcfirestore.SetOption{gcfirestore.Merge(o.MergeFields...)}
	case o.Merge:
		return []gcfirestore.SetOption{gcfirestore.MergeAll}
	}
	return nil
}

func (a *Adapter) fields(v tagged.Value) (map[string]any, error) {
	if v.Kind() != tagged.KindMap {
		return nil, nativeerr.New(nativeerr.InvalidArgument, "document data must be an object, got %s", v.Kind())
	}
	native, err := a.codec.Decode(v)
	if err != nil {
		return nil, err
	}
	return native.(map[string]any), nil
}

// updates turns a map keyed by dotted field paths into SDK updates.
func (a *Adapter) updates(v tagged.Value) ([]gcfirestore.Update, error) {
	if v.Kind() != tagged.KindMap {
		return nil, nativeerr.New(nativeerr.InvalidArgument, "update data must be an object, got %s", v.Kind())
	}
	out := make([]gcfirestore.Update, 0, v.Len())
	for _, f := range v.Fields() {
		fp, err := splitFieldPath(f.Key)
		if err != nil {
			return nil, err
		}
		native, err := a.codec.Decode(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, gcfirestore.Update{FieldPath: fp, Value: native})
	}
	return out, nil
}

func (a *Adapter) Set(ctx context.Context, path string, data tagged.Value, opts SetOptions) error {
	ref, err := a.doc(path)
	if err != nil {
		return err
	}
	m, err := a.fields(data)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, m, opts.native()...)
	return err
}

func (a *Adapter) Update(ctx context.Context, path string, data tagged.Value) error {
	ref, err := a.doc(path)
	if err != nil {
		return err
	}
	ups, err := a.updates(data)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, ups)
	return err
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	ref, err := a.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return err
}

type WriteType string

const (
	WriteSet    WriteType = "SET"
	WriteUpdate WriteType = "UPDATE"
	WriteDelete WriteType = "DELETE"
)

// Write is one entry of an atomic batch.
type Write struct {
	Type    WriteType
	Path    string
	Data    tagged.Value
	Options SetOptions
}

// Batch commits writes atomically.
func (a *Adapter) Batch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	return a.client.RunTransaction(ctx, func(ctx context.Context, tx *gcfirestore.Transaction) error {
		for _, w := range writes {
			ref, err := a.doc(w.Path)
			if err != nil {
				return err
			}
			switch w.Type {
			case WriteSet:
				m, err := a.fields(w.Data)
				if err != nil {
					return err
				}
				err = tx.Set(ref, m, w.Options.native()...)
				if err != nil {
					return err
				}
			case WriteUpdate:
				ups, err := a.updates(w.Data)
				if err != nil {
					return err
				}
				if err := tx.Update(ref, ups); err != nil {
					return err
				}
			case WriteDelete:
				if err := tx.Delete(ref); err != nil {
					return err
				}
			default:
				return nativeerr.New(nativeerr.InvalidArgument, "unknown write type %q", w.Type)
			}
		}
		return nil
	})
}

// Attempt computes the next document value from the current one. Abort
// ends the transaction without writing. A null next value deletes the
// document.
type Attempt func(ctx context.Context, current models.Document) (next tagged.Value, abort bool, err error)

// Transact runs attempt inside a Firestore transaction on one document,
// retrying it as often as the SDK asks. It returns the document as
// committed and whether anything was written.
func (a *Adapter) Transact(ctx context.Context, path string, attempt Attempt) (models.Document, bool, error) {
	ref, err := a.doc(path)
	if err != nil {
		return models.Document{}, false, err
	}
	var (
		result    models.Document
		committed bool
	)
	err = a.client.RunTransaction(ctx, func(ctx context.Context, tx *gcfirestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		current := a.document(path, snap)
		next, abort, err := attempt(ctx, current)
		if err != nil {
			return err
		}
		if abort {
			result, committed = current, false
			return errAborted
		}
		if next.IsNull() {
			result, committed = models.Document{Store: a.store, Path: path}, true
			return tx.Delete(ref)
		}
		m, err := a.fields(next)
		if err != nil {
			return err
		}
		result = models.Document{Store: a.store, Path: path, Exists: true, Data: m}
		committed = true
		return tx.Set(ref, m)
	})
	if errors.Is(err, errAborted) {
		return result, false, nil
	}
	if err != nil {
		return models.Document{}, false, fmt.Errorf("transaction on %s: %w", path, err)
	}
	// Transforms such as server timestamps only resolve on the server.
	if result.Exists {
		if fresh, err := a.GetDocument(ctx, path); err == nil {
			return fresh, true, nil
		}
	}
	return result, committed, nil
}
