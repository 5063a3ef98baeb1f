package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/codec"
	"github.com/invertase/react-native-firebase/internal/database"
	"github.com/invertase/react-native-firebase/internal/events"
	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/promise"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/snapshot"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

// Database snapshots cross the boundary as plain JSON.
var plain = snapshot.Options{Plain: true}

type DatabaseService struct {
	*BaseService
}

func NewDatabaseService(
	mgr *apps.Manager,
	router *events.Router,
	logger *slog.Logger,
) *DatabaseService {
	base := NewBaseService(mgr, router, logger)
	base.logger = base.logger.With("module", "database")
	return &DatabaseService{BaseService: base}
}

// scope names the database a listener of store observes.
func (s *DatabaseService) scope(store, url string) string {
	inst, err := s.apps.Get(store)
	if err != nil {
		return url
	}
	return inst.DatabaseURL(url)
}

func (s *DatabaseService) adapter(ctx context.Context, store, url string) (*database.Adapter, string, error) {
	inst, err := s.apps.Get(store)
	if err != nil {
		return nil, "", err
	}
	a, err := inst.Database(ctx, url)
	if err != nil {
		return nil, "", err
	}
	return a, inst.Name(), nil
}

func serializer(store string) *snapshot.Serializer {
	return snapshot.New(codec.New(store, nil))
}

func databaseKind(kind registry.Kind) error {
	if kind == registry.KindSnapshot {
		return nativeerr.New(nativeerr.InvalidArgument, "unsupported database event type %q", kind)
	}
	return nil
}

// On starts a live listener. Subscribing the same listener and event type
// twice on one database keeps the first subscription.
func (s *DatabaseService) On(
	ctx context.Context,
	store, url, listener string,
	kind registry.Kind,
	spec database.QuerySpec,
) error {
	if err := databaseKind(kind); err != nil {
		return err
	}
	a, name, err := s.adapter(ctx, store, url)
	if err != nil {
		return err
	}
	key := registry.Key{Store: name, Scope: s.scope(store, url), Listener: listener, Kind: kind}
	desc := registry.Descriptor{Path: spec.Path, Query: spec, Options: plain}
	return s.register(ctx, key, desc, func(ctx context.Context, reg *registry.Registration) (models.Handle, error) {
		return a.Watch(spec, s.router.Forwarder(reg, serializer(name))), nil
	})
}

// Off removes the listener for one event type on the database at url, or
// for all of them when kind is empty. It reports how many registrations
// were removed.
func (s *DatabaseService) Off(ctx context.Context, store, url, listener string, kind registry.Kind) int {
	name := storeName(store)
	scope := s.scope(name, url)
	if kind == "" {
		return s.registry().UnregisterListener(ctx, name, scope, listener)
	}
	if s.registry().Unregister(ctx, registry.Key{Store: name, Scope: scope, Listener: listener, Kind: kind}) {
		return 1
	}
	return 0
}

// Once reads the location for value events. Child event types wait for
// the first matching event from a temporary listener.
func (s *DatabaseService) Once(
	ctx context.Context,
	store, url string,
	kind registry.Kind,
	spec database.QuerySpec,
) (snapshot.Envelope, error) {
	if err := databaseKind(kind); err != nil {
		return snapshot.Envelope{}, err
	}
	a, name, err := s.adapter(ctx, store, url)
	if err != nil {
		return snapshot.Envelope{}, err
	}
	if kind == registry.KindValue {
		loc, err := a.Get(ctx, spec)
		if err != nil {
			return snapshot.Envelope{}, err
		}
		return serializer(name).Document(loc.Document(name), plain)
	}

	result := promise.New[snapshot.Envelope]()
	key := registry.Key{Store: name, Listener: "once:" + uuid.NewString(), Kind: kind}
	desc := registry.Descriptor{Path: spec.Path, Query: spec, Options: plain}
	_, err = s.registry().Register(ctx, key, desc, func(ctx context.Context, reg *registry.Registration) (models.Handle, error) {
		h := a.Watch(spec, s.router.Forwarder(reg, serializer(name)).Once(result))
		return models.HandleFunc(func() {
			h.Release()
			events.Settle(s.logger, result, snapshot.Envelope{},
				nativeerr.New(nativeerr.Cancelled, "listener on %s removed", spec.Path))
		}), nil
	})
	if err != nil {
		return snapshot.Envelope{}, err
	}
	env, err := result.Wait(ctx)
	s.registry().Unregister(context.WithoutCancel(ctx), key)
	return env, err
}

func (s *DatabaseService) Set(ctx context.Context, store, url, path string, v tagged.Value) error {
	a, _, err := s.adapter(ctx, store, url)
	if err != nil {
		return err
	}
	return a.Set(ctx, path, codec.RestoreNulls(v))
}

func (s *DatabaseService) Update(ctx context.Context, store, url, path string, values tagged.Value) error {
	a, _, err := s.adapter(ctx, store, url)
	if err != nil {
		return err
	}
	return a.Update(ctx, path, codec.RestoreNulls(values))
}

func (s *DatabaseService) Remove(ctx context.Context, store, url, path string) error {
	a, _, err := s.adapter(ctx, store, url)
	if err != nil {
		return err
	}
	return a.Remove(ctx, path)
}

// TransactionStart begins a transaction and returns right away. Each
// attempt is sent to the application layer as a transaction_update event
// and the outcome arrives as a final one.
func (s *DatabaseService) TransactionStart(ctx context.Context, store, url, id, path string) error {
	a, name, err := s.adapter(ctx, store, url)
	if err != nil {
		return err
	}
	tx, err := s.begin(name, id, database.CleanPath(path))
	if err != nil {
		return err
	}
	go s.runTransaction(context.WithoutCancel(ctx), a, tx)
	return nil
}

func (s *DatabaseService) runTransaction(ctx context.Context, a *database.Adapter, tx *registry.Transaction) {
	run, cancel := s.txContext(ctx, tx)
	defer cancel()
	ser := serializer(tx.Store)
	loc, committed, err := a.Transact(run, tx.Path, func(ctx context.Context, current database.Location) (tagged.Value, bool, error) {
		env, err := ser.Document(current.Document(tx.Store), plain)
		if err != nil {
			return tagged.Null(), false, err
		}
		u, err := s.awaitUpdate(ctx, tx, env)
		if err != nil {
			return tagged.Null(), false, err
		}
		return codec.RestoreNulls(u.Value), u.Abort, nil
	})
	var env snapshot.Envelope
	if err == nil {
		env, err = ser.Document(loc.Document(tx.Store), plain)
	}
	if err != nil {
		s.logger.Debug("transaction failed", "store", tx.Store, "id", tx.ID, "err", err)
	}
	s.router.CompleteTransaction(ctx, s.transactions(), tx, env, committed, err)
}

// TransactionTryCommit answers the pending attempt of transaction id.
func (s *DatabaseService) TransactionTryCommit(store, id string, value tagged.Value, abort bool) error {
	return s.offer(storeName(store), id, registry.Update{Value: value, Abort: abort})
}

func storeName(store string) string {
	if store == "" {
		return apps.DefaultName
	}
	return store
}
