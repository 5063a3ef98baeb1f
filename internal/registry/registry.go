// Package registry tracks live listener registrations per store instance
// and the transactions in flight.
package registry

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/snapshot"
)

var ErrAlreadyRegistered = errors.New("registry: listener already registered")

type Kind string

const (
	KindValue        Kind = "value"
	KindChildAdded   Kind = "child_added"
	KindChildChanged Kind = "child_changed"
	KindChildRemoved Kind = "child_removed"
	KindChildMoved   Kind = "child_moved"
	KindSnapshot     Kind = "snapshot"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindValue, KindChildAdded, KindChildChanged, KindChildRemoved, KindChildMoved, KindSnapshot:
		return k, true
	}
	return "", false
}

// Key identifies one registration. Scope separates listeners of one store
// that observe different backends, such as two database URLs.
type Key struct {
	Store    string
	Scope    string
	Listener string
	Kind     Kind
}

// Descriptor says what a registration observes. Query is owned by the SDK
// adapter that created it.
type Descriptor struct {
	Path    string
	Query   any
	Options snapshot.Options
}

type Registration struct {
	key  Key
	desc Descriptor

	mu       sync.Mutex
	handle   models.Handle
	released bool

	deliver sync.Mutex
}

func (r *Registration) Key() Key               { return r.key }
func (r *Registration) Descriptor() Descriptor { return r.desc }

// attach stores the native handle. A registration that was removed while
// the SDK subscription was being set up releases the late handle at once.
func (r *Registration) attach(h models.Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		h.Release()
		return
	}
	r.handle = h
	r.mu.Unlock()
}

func (r *Registration) release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	h := r.handle
	r.handle = nil
	r.mu.Unlock()

	if h != nil {
		h.Release()
	}
}

// Released reports whether the native handle has been given back.
func (r *Registration) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// SubscribeFunc starts the native subscription for reg. It runs outside the
// registry lock and may deliver events before it returns.
type SubscribeFunc func(ctx context.Context, reg *Registration) (models.Handle, error)

// Registry owns registrations. Liveness checks and mutations share one
// lock, so an event for a registration that has been removed is never
// delivered.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]*Registration
	byStore map[string]map[Key]struct{}
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[Key]*Registration),
		byStore: make(map[string]map[Key]struct{}),
		logger:  logger,
	}
}

// Register adds a registration for key and starts its subscription. A
// duplicate key returns the existing registration with
// ErrAlreadyRegistered and subscribes nothing.
func (r *Registry) Register(ctx context.Context, key Key, desc Descriptor, subscribe SubscribeFunc) (*Registration, error) {
	r.mu.Lock()
	if existing, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return existing, ErrAlreadyRegistered
	}
	reg := &Registration{key: key, desc: desc}
	r.entries[key] = reg
	if r.byStore[key.Store] == nil {
		r.byStore[key.Store] = make(map[Key]struct{})
	}
	r.byStore[key.Store][key] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("registry register",
		"store", key.Store,
		"listener", key.Listener,
		"kind", key.Kind,
		"path", desc.Path,
	)

	if subscribe == nil {
		return reg, nil
	}
	h, err := subscribe(ctx, reg)
	if err != nil {
		r.drop(reg)
		reg.release()
		if h != nil {
			h.Release()
		}
		return nil, err
	}
	reg.attach(h)
	return reg, nil
}

// drop removes reg from the tables if it is still the current entry for its
// key. It reports whether anything was removed.
func (r *Registry) drop(reg *Registration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropLocked(reg)
}

func (r *Registry) dropLocked(reg *Registration) bool {
	if r.entries[reg.key] != reg {
		return false
	}
	delete(r.entries, reg.key)
	if keys := r.byStore[reg.key.Store]; keys != nil {
		delete(keys, reg.key)
		if len(keys) == 0 {
			delete(r.byStore, reg.key.Store)
		}
	}
	return true
}

func (r *Registry) LookupKey(key Key) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[key]
	return reg, ok
}

// Lookup returns every registration of one listener id, in kind order.
func (r *Registry) Lookup(store, listener string) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Registration
	for key := range r.byStore[store] {
		if key.Listener == listener {
			out = append(out, r.entries[key])
		}
	}
	slices.SortFunc(out, func(a, b *Registration) int {
		return cmp.Compare(a.key.Kind, b.key.Kind)
	})
	return out
}

func (r *Registry) Live(reg *Registration) bool {
	if reg == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[reg.key] == reg
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Count returns the number of registrations held for store.
func (r *Registry) Count(store string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byStore[store])
}

// Unregister removes the registration for key and releases its handle. It
// returns once no delivery for it is running, unless called from inside
// that delivery.
func (r *Registry) Unregister(ctx context.Context, key Key) bool {
	r.mu.Lock()
	reg, ok := r.entries[key]
	if ok {
		r.dropLocked(reg)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.finish(ctx, reg)
	return true
}

// UnregisterListener removes every kind registered under one listener id.
func (r *Registry) UnregisterListener(ctx context.Context, store, scope, listener string) int {
	r.mu.Lock()
	var removed []*Registration
	for key := range r.byStore[store] {
		if key.Scope == scope && key.Listener == listener {
			reg := r.entries[key]
			r.dropLocked(reg)
			removed = append(removed, reg)
		}
	}
	r.mu.Unlock()

	for _, reg := range removed {
		r.finish(ctx, reg)
	}
	return len(removed)
}

// UnregisterAll tears down every registration of store.
func (r *Registry) UnregisterAll(ctx context.Context, store string) int {
	r.mu.Lock()
	removed := make([]*Registration, 0, len(r.byStore[store]))
	for key := range r.byStore[store] {
		removed = append(removed, r.entries[key])
	}
	for _, reg := range removed {
		r.dropLocked(reg)
	}
	r.mu.Unlock()

	for _, reg := range removed {
		r.finish(ctx, reg)
	}
	if len(removed) > 0 {
		r.logger.Debug("registry teardown", "store", store, "removed", len(removed))
	}
	return len(removed)
}

// Remove drops reg if it is still live, for example after a terminal error.
func (r *Registry) Remove(ctx context.Context, reg *Registration) bool {
	if !r.drop(reg) {
		return false
	}
	r.finish(ctx, reg)
	return true
}

func (r *Registry) finish(ctx context.Context, reg *Registration) {
	if !delivering(ctx, reg) {
		reg.deliver.Lock()
		//nolint:staticcheck // waits for the delivery in flight
		reg.deliver.Unlock()
	}
	reg.release()
	r.logger.Debug("registry unregister",
		"store", reg.key.Store,
		"listener", reg.key.Listener,
		"kind", reg.key.Kind,
	)
}

type deliveryKey struct{}

func delivering(ctx context.Context, reg *Registration) bool {
	if ctx == nil {
		return false
	}
	active, _ := ctx.Value(deliveryKey{}).([]*Registration)
	return slices.Contains(active, reg)
}

// Deliver runs fn for reg if it is still live. Deliveries for one
// registration are serialized. The context handed to fn marks the delivery
// so fn may unregister reg without deadlocking.
func (r *Registry) Deliver(ctx context.Context, reg *Registration, fn func(ctx context.Context)) bool {
	if reg == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if delivering(ctx, reg) {
		if !r.Live(reg) {
			return false
		}
		fn(ctx)
		return true
	}

	reg.deliver.Lock()
	defer reg.deliver.Unlock()

	if !r.Live(reg) {
		r.logger.Debug("registry dropped event",
			"store", reg.key.Store,
			"listener", reg.key.Listener,
			"kind", reg.key.Kind,
		)
		return false
	}

	active, _ := ctx.Value(deliveryKey{}).([]*Registration)
	fn(context.WithValue(ctx, deliveryKey{}, append(slices.Clip(active), reg)))
	return true
}
