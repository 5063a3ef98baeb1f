// Package events routes native callbacks for live registrations to the
// outbound sink and settles one-shot completions.
package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/promise"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/snapshot"
)

const (
	NameValue        = "value"
	NameChildAdded   = "child_added"
	NameChildChanged = "child_changed"
	NameChildRemoved = "child_removed"
	NameChildMoved   = "child_moved"
	NameError        = "error"
	NameTransaction  = "transaction_update"
)

// Transaction event types.
const (
	TxUpdate   = "update"
	TxComplete = "complete"
	TxError    = "error"
)

type Event struct {
	Name      string             `json:"name"`
	Store     string             `json:"store"`
	Listener  string             `json:"listenerId"`
	Kind      registry.Kind      `json:"kind,omitempty"`
	Type      string             `json:"type,omitempty"`
	Path      string             `json:"path,omitempty"`
	Body      *snapshot.Envelope `json:"body,omitempty"`
	Committed *bool              `json:"committed,omitempty"`
	Error     *nativeerr.Error   `json:"error,omitempty"`
}

// Sink carries events to the application layer.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Fanout emits every event to each sink in turn.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Router struct {
	registry *registry.Registry
	sink     Sink
	logger   *slog.Logger
}

func New(reg *registry.Registry, sink Sink, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{registry: reg, sink: sink, logger: logger}
}

func (r *Router) Registry() *registry.Registry { return r.registry }

func eventName(kind registry.Kind, env snapshot.Envelope) string {
	switch env.ChangeType {
	case models.ChangeAdded:
		return NameChildAdded
	case models.ChangeModified:
		return NameChildChanged
	case models.ChangeRemoved:
		return NameChildRemoved
	case models.ChangeMoved:
		return NameChildMoved
	}
	if kind == registry.KindValue || kind == registry.KindSnapshot {
		return NameValue
	}
	return string(kind)
}

// emit hands ev to the sink. When a snapshot event cannot be sent, the
// listener gets a malformed-value error event in its place. Transaction
// updates are left to the caller, which fails the transaction.
func (r *Router) emit(ctx context.Context, ev Event) error {
	err := r.sink.Emit(ctx, ev)
	if err == nil {
		return nil
	}
	r.logger.Warn("event emit failed",
		"name", ev.Name,
		"store", ev.Store,
		"listener", ev.Listener,
		"err", err,
	)
	if ev.Body == nil || ev.Type == TxUpdate {
		return err
	}
	replacement := Event{
		Name:     NameError,
		Store:    ev.Store,
		Listener: ev.Listener,
		Kind:     ev.Kind,
		Path:     ev.Path,
		Error:    nativeerr.Wrap(nativeerr.MalformedValue, err),
	}
	if ev.Name == NameTransaction {
		replacement.Name = NameTransaction
		replacement.Type = TxError
	}
	if rerr := r.sink.Emit(ctx, replacement); rerr != nil {
		r.logger.Warn("error event emit failed",
			"store", ev.Store,
			"listener", ev.Listener,
			"err", rerr,
		)
	}
	return err
}

// Route emits env for reg if reg is still live. It reports whether the
// event was delivered.
func (r *Router) Route(ctx context.Context, reg *registry.Registration, env snapshot.Envelope) bool {
	key := reg.Key()
	return r.registry.Deliver(ctx, reg, func(ctx context.Context) {
		_ = r.emit(ctx, Event{
			Name:     eventName(key.Kind, env),
			Store:    key.Store,
			Listener: key.Listener,
			Kind:     key.Kind,
			Path:     reg.Descriptor().Path,
			Body:     &env,
		})
	})
}

// RouteError emits an error event for reg. Terminal errors also remove the
// registration once the event is out; later native callbacks are dropped.
func (r *Router) RouteError(ctx context.Context, reg *registry.Registration, err error) bool {
	key := reg.Key()
	coded := nativeerr.From(err)
	return r.registry.Deliver(ctx, reg, func(ctx context.Context) {
		_ = r.emit(ctx, Event{
			Name:     NameError,
			Store:    key.Store,
			Listener: key.Listener,
			Kind:     key.Kind,
			Path:     reg.Descriptor().Path,
			Error:    coded,
		})
		if nativeerr.IsTerminal(err) {
			r.logger.Warn("listener failed",
				"store", key.Store,
				"listener", key.Listener,
				"code", coded.Code,
				"err", err,
			)
			r.registry.Remove(ctx, reg)
		}
	})
}

// Settle completes p with v or err. A promise that already settled is left
// alone and the late outcome is logged.
func Settle[T any](logger *slog.Logger, p *promise.Promise[T], v T, err error) {
	var serr error
	if err != nil {
		serr = p.Reject(err)
	} else {
		serr = p.Resolve(v)
	}
	if errors.Is(serr, promise.ErrAlreadySettled) && logger != nil {
		logger.Debug("late completion ignored", "err", err)
	}
}

// TransactionUpdate asks the application layer for the next value of tx,
// given the current one.
func (r *Router) TransactionUpdate(ctx context.Context, tx *registry.Transaction, current snapshot.Envelope) error {
	return r.emit(ctx, Event{
		Name:     NameTransaction,
		Store:    tx.Store,
		Listener: tx.ID,
		Type:     TxUpdate,
		Path:     tx.Path,
		Body:     &current,
	})
}

// CompleteTransaction removes tx from the table, then emits the outcome and
// settles its result. A transaction abandoned with its store only gets the
// error event; its result was already rejected.
func (r *Router) CompleteTransaction(
	ctx context.Context,
	txs *registry.Transactions,
	tx *registry.Transaction,
	env snapshot.Envelope,
	committed bool,
	err error,
) {
	if !txs.Finish(tx) {
		reason := tx.Abandoned()
		if reason == nil {
			r.logger.Debug("transaction already finished", "store", tx.Store, "id", tx.ID)
			return
		}
		_ = r.emit(ctx, Event{
			Name:     NameTransaction,
			Store:    tx.Store,
			Listener: tx.ID,
			Type:     TxError,
			Path:     tx.Path,
			Error:    nativeerr.From(reason),
		})
		return
	}
	ev := Event{
		Name:      NameTransaction,
		Store:     tx.Store,
		Listener:  tx.ID,
		Type:      TxComplete,
		Path:      tx.Path,
		Committed: &committed,
	}
	if err != nil {
		ev.Type = TxError
		ev.Committed = nil
		ev.Error = nativeerr.From(err)
	} else {
		ev.Body = &env
	}
	_ = r.emit(ctx, ev)
	Settle(r.logger, tx.Result, env, err)
}
