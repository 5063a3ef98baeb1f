package service

import (
	"context"
	"log/slog"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/events"
	"github.com/invertase/react-native-firebase/internal/firestore"
	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/snapshot"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

type FirestoreService struct {
	*BaseService
}

func NewFirestoreService(
	mgr *apps.Manager,
	router *events.Router,
	logger *slog.Logger,
) *FirestoreService {
	base := NewBaseService(mgr, router, logger)
	base.logger = base.logger.With("module", "firestore")
	return &FirestoreService{BaseService: base}
}

func (s *FirestoreService) adapter(ctx context.Context, store string) (*firestore.Adapter, string, error) {
	inst, err := s.apps.Get(store)
	if err != nil {
		return nil, "", err
	}
	a, err := inst.Firestore(ctx)
	if err != nil {
		return nil, "", err
	}
	return a, inst.Name(), nil
}

func (s *FirestoreService) DocumentOnSnapshot(
	ctx context.Context,
	store, listener, path string,
	opts snapshot.Options,
) error {
	a, name, err := s.adapter(ctx, store)
	if err != nil {
		return err
	}
	key := registry.Key{Store: name, Listener: listener, Kind: registry.KindSnapshot}
	desc := registry.Descriptor{Path: path, Options: opts}
	return s.register(ctx, key, desc, func(ctx context.Context, reg *registry.Registration) (models.Handle, error) {
		return a.WatchDocument(path, s.router.Forwarder(reg, snapshot.New(a.Codec())))
	})
}

func (s *FirestoreService) CollectionOnSnapshot(
	ctx context.Context,
	store, listener string,
	spec firestore.QuerySpec,
	opts snapshot.Options,
) error {
	a, name, err := s.adapter(ctx, store)
	if err != nil {
		return err
	}
	key := registry.Key{Store: name, Listener: listener, Kind: registry.KindSnapshot}
	desc := registry.Descriptor{Path: spec.Path, Query: spec, Options: opts}
	return s.register(ctx, key, desc, func(ctx context.Context, reg *registry.Registration) (models.Handle, error) {
		return a.WatchQuery(spec, s.router.Forwarder(reg, snapshot.New(a.Codec())))
	})
}

func (s *FirestoreService) OffSnapshot(ctx context.Context, store, listener string) int {
	return s.registry().UnregisterListener(ctx, storeName(store), "", listener)
}

// fetch reads through the snapshot cache when one is configured.
func (s *FirestoreService) fetch(
	ctx context.Context,
	store, key string,
	source snapshot.Source,
	fn func(ctx context.Context) (snapshot.Envelope, error),
) (snapshot.Envelope, error) {
	if c := s.apps.Cache(); c != nil {
		return c.Fetch(ctx, store, key, source, fn)
	}
	if source == snapshot.SourceCache {
		return snapshot.Envelope{}, nativeerr.New(nativeerr.Unavailable, "failed to get %s from cache", key)
	}
	return fn(ctx)
}

func (s *FirestoreService) invalidate(store string, paths ...string) {
	c := s.apps.Cache()
	if c == nil {
		return
	}
	for _, p := range paths {
		if err := c.Delete(store, p); err != nil {
			s.logger.Warn("snapshot cache invalidation failed", "store", store, "path", p, "err", err)
		}
	}
}

func (s *FirestoreService) DocumentGet(ctx context.Context, store, path string, source snapshot.Source) (snapshot.Envelope, error) {
	a, name, err := s.adapter(ctx, store)
	if err != nil {
		return snapshot.Envelope{}, err
	}
	ser := snapshot.New(a.Codec())
	return s.fetch(ctx, name, path, source, func(ctx context.Context) (snapshot.Envelope, error) {
		doc, err := a.GetDocument(ctx, path)
		if err != nil {
			return snapshot.Envelope{}, err
		}
		return ser.Document(doc, snapshot.Options{Source: source})
	})
}

func (s *FirestoreService) CollectionGet(
	ctx context.Context,
	store string,
	spec firestore.QuerySpec,
	opts snapshot.Options,
) (snapshot.Envelope, error) {
	a, name, err := s.adapter(ctx, store)
	if err != nil {
		return snapshot.Envelope{}, err
	}
	ser := snapshot.New(a.Codec())
	return s.fetch(ctx, name, "query:"+spec.Key(), opts.Source, func(ctx context.Context) (snapshot.Envelope, error) {
		res, err := a.GetQuery(ctx, spec)
		if err != nil {
			return snapshot.Envelope{}, err
		}
		return ser.Query(res, opts)
	})
}

func (s *FirestoreService) DocumentSet(
	ctx context.Context,
	store, path string,
	data tagged.Value,
	opts firestore.SetOptions,
) error {
	a, name, err := s.adapter(ctx, store)
	if err != nil {
		return err
	}
	defer s.invalidate(name, path)
	return a.Set(ctx, path, data, opts)
}

func (s *FirestoreService) DocumentUpdate(ctx context.Context, store, path string, data tagged.Value) error {
	a, name, err := s.adapter(ctx, store)
	if err != nil {
		return err
	}
	defer s.invalidate(name, path)
	return a.Update(ctx, path, data)
}

func (s *FirestoreService) DocumentDelete(ctx context.Context, store, path string) error {
	a, name, err := s.adapter(ctx, store)
	if err != nil {
		return err
	}
	defer s.invalidate(name, path)
	return a.Delete(ctx, path)
}

func (s *FirestoreService) DocumentBatch(ctx context.Context, store string, writes []firestore.Write) error {
	a, name, err := s.adapter(ctx, store)
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(writes))
	for _, w := range writes {
		paths = append(paths, w.Path)
	}
	defer s.invalidate(name, paths...)
	return a.Batch(ctx, writes)
}

// TransactionBegin starts a read-modify-write of one document. Attempts
// and the outcome are reported as transaction_update events.
func (s *FirestoreService) TransactionBegin(ctx context.Context, store, id, path string) error {
	a, name, err := s.adapter(ctx, store)
	if err != nil {
		return err
	}
	tx, err := s.begin(name, id, path)
	if err != nil {
		return err
	}
	go s.runTransaction(context.WithoutCancel(ctx), a, tx)
	return nil
}

func (s *FirestoreService) runTransaction(ctx context.Context, a *firestore.Adapter, tx *registry.Transaction) {
	run, cancel := s.txContext(ctx, tx)
	defer cancel()
	ser := snapshot.New(a.Codec())
	doc, committed, err := a.Transact(run, tx.Path, func(ctx context.Context, current models.Document) (tagged.Value, bool, error) {
		env, err := ser.Document(current, snapshot.Options{})
		if err != nil {
			return tagged.Null(), false, err
		}
		u, err := s.awaitUpdate(ctx, tx, env)
		if err != nil {
			return tagged.Null(), false, err
		}
		return u.Value, u.Abort, nil
	})
	var env snapshot.Envelope
	if err == nil {
		env, err = ser.Document(doc, snapshot.Options{})
	}
	if err != nil {
		s.logger.Debug("transaction failed", "store", tx.Store, "id", tx.ID, "err", err)
	} else if committed {
		s.invalidate(tx.Store, tx.Path)
	}
	s.router.CompleteTransaction(ctx, s.transactions(), tx, env, committed, err)
}

func (s *FirestoreService) TransactionTryCommit(store, id string, value tagged.Value, abort bool) error {
	return s.offer(storeName(store), id, registry.Update{Value: value, Abort: abort})
}

// TransactionDispose aborts transaction id. Disposing an unknown or
// finished transaction is a no-op.
func (s *FirestoreService) TransactionDispose(store, id string) {
	tx, ok := s.transactions().Get(storeName(store), id)
	if !ok {
		return
	}
	if err := tx.Offer(registry.Update{Abort: true}); err != nil {
		s.logger.Debug("transaction dispose ignored", "id", id, "err", err)
	}
}
