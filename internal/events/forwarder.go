package events

import (
	"context"

	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/promise"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/snapshot"
)

var _ models.Listener = (*Forwarder)(nil)

// Forwarder is the one models.Listener implementation. It serializes native
// callbacks for a single registration and hands them to the router.
// Callbacks that do not match the registration kind are ignored.
type Forwarder struct {
	router     *Router
	reg        *registry.Registration
	serializer *snapshot.Serializer
	result     *promise.Promise[snapshot.Envelope]
}

func (r *Router) Forwarder(reg *registry.Registration, s *snapshot.Serializer) *Forwarder {
	return &Forwarder{router: r, reg: reg, serializer: s}
}

// Once turns the forwarder into a one-shot: the first event or error
// settles result and removes the registration. Nothing reaches the sink.
func (f *Forwarder) Once(result *promise.Promise[snapshot.Envelope]) *Forwarder {
	f.result = result
	return f
}

func (f *Forwarder) opts() snapshot.Options { return f.reg.Descriptor().Options }

func (f *Forwarder) wants(kinds ...registry.Kind) bool {
	k := f.reg.Key().Kind
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func (f *Forwarder) deliver(ctx context.Context, env snapshot.Envelope, err error) {
	switch {
	case f.result != nil:
		f.router.registry.Deliver(ctx, f.reg, func(ctx context.Context) {
			Settle(f.router.logger, f.result, env, err)
			f.router.registry.Remove(ctx, f.reg)
		})
	case err != nil:
		f.router.RouteError(ctx, f.reg, err)
	default:
		f.router.Route(ctx, f.reg, env)
	}
}

func (f *Forwarder) OnValue(ctx context.Context, doc models.Document) {
	if !f.wants(registry.KindValue, registry.KindSnapshot) {
		return
	}
	env, err := f.serializer.Document(doc, f.opts())
	f.deliver(ctx, env, err)
}

func (f *Forwarder) child(ctx context.Context, kind registry.Kind, change models.ChangeType, doc models.Document, previousKey string) {
	if !f.wants(kind) {
		return
	}
	env, err := f.serializer.Child(doc, previousKey, change, f.opts())
	f.deliver(ctx, env, err)
}

func (f *Forwarder) OnChildAdded(ctx context.Context, doc models.Document, previousKey string) {
	f.child(ctx, registry.KindChildAdded, models.ChangeAdded, doc, previousKey)
}

func (f *Forwarder) OnChildChanged(ctx context.Context, doc models.Document, previousKey string) {
	f.child(ctx, registry.KindChildChanged, models.ChangeModified, doc, previousKey)
}

func (f *Forwarder) OnChildRemoved(ctx context.Context, doc models.Document) {
	f.child(ctx, registry.KindChildRemoved, models.ChangeRemoved, doc, "")
}

func (f *Forwarder) OnChildMoved(ctx context.Context, doc models.Document, previousKey string) {
	f.child(ctx, registry.KindChildMoved, models.ChangeMoved, doc, previousKey)
}

func (f *Forwarder) OnQuery(ctx context.Context, res models.QueryResult) {
	if !f.wants(registry.KindSnapshot, registry.KindValue) {
		return
	}
	env, err := f.serializer.Query(res, f.opts())
	f.deliver(ctx, env, err)
}

func (f *Forwarder) OnError(ctx context.Context, err error) {
	f.deliver(ctx, snapshot.Envelope{}, err)
}
