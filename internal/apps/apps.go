// Package apps owns the initialized store instances and tears everything
// belonging to one down when it is deleted.
package apps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/invertase/react-native-firebase/internal/cache"
	"github.com/invertase/react-native-firebase/internal/database"
	"github.com/invertase/react-native-firebase/internal/firestore"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/registry"
)

const DefaultName = "[DEFAULT]"

var (
	ErrStoreNotFound = errors.New("apps: store instance not found")
	ErrStoreExists   = errors.New("apps: store instance already initialized")
	ErrStoreDeleted  = errors.New("apps: store instance deleted")
)

type Options struct {
	ProjectID     string `json:"projectId" yaml:"projectId"`
	DatabaseURL   string `json:"databaseURL" yaml:"databaseURL"`
	StorageBucket string `json:"storageBucket,omitempty" yaml:"storageBucket"`
	// Credentials is a service account key. Empty falls back to application
	// default credentials or, against emulators, to no credentials at all.
	Credentials []byte `json:"-" yaml:"-"`
}

type Info struct {
	Name    string  `json:"name"`
	Options Options `json:"options"`
}

// Instance is one initialized app. SDK clients are created on first use.
type Instance struct {
	name    string
	options Options
	app     *firebase.App
	base    context.Context
	cancel  context.CancelFunc
	poll    time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	firestore *firestore.Adapter
	databases map[string]*database.Adapter
}

func (i *Instance) Name() string { return i.name }

func (i *Instance) Options() Options { return i.options }

func (i *Instance) Firestore(ctx context.Context) (*firestore.Adapter, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.firestore != nil {
		return i.firestore, nil
	}
	client, err := i.app.Firestore(ctx)
	if err != nil {
		return nil, nativeerr.Wrap(nativeerr.FailedPrecondition, fmt.Errorf("firestore for %s: %w", i.name, err))
	}
	i.firestore = firestore.New(i.base, i.name, client, i.logger)
	return i.firestore, nil
}

// DatabaseURL resolves url against the app's default database.
func (i *Instance) DatabaseURL(url string) string {
	if url == "" {
		return i.options.DatabaseURL
	}
	return url
}

// Database returns the adapter for url, or for the configured database
// when url is empty.
func (i *Instance) Database(ctx context.Context, url string) (*database.Adapter, error) {
	url = i.DatabaseURL(url)
	i.mu.Lock()
	defer i.mu.Unlock()
	if a, ok := i.databases[url]; ok {
		return a, nil
	}
	client, err := i.app.DatabaseWithURL(ctx, url)
	if err != nil {
		return nil, nativeerr.Wrap(nativeerr.FailedPrecondition, fmt.Errorf("database %q for %s: %w", url, i.name, err))
	}
	a := database.New(i.base, i.name, client, database.Options{PollInterval: i.poll}, i.logger)
	i.databases[url] = a
	return a, nil
}

func (i *Instance) close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	var err error
	if i.firestore != nil {
		err = i.firestore.Close()
		i.firestore = nil
	}
	clear(i.databases)
	i.cancel()
	return err
}

type Config struct {
	PollInterval time.Duration
	// ClientOptions are appended to every app, e.g. endpoints for emulators.
	ClientOptions []option.ClientOption
}

// Manager holds every instance by name. Deleting an instance removes its
// listeners, rejects its transactions and forgets its cached snapshots.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*Instance

	registry     *registry.Registry
	transactions *registry.Transactions
	cache        *cache.Store
	cfg          Config
	logger       *slog.Logger

	base   context.Context
	cancel context.CancelFunc
}

func NewManager(
	reg *registry.Registry,
	txs *registry.Transactions,
	snapshots *cache.Store,
	cfg Config,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		instances:    make(map[string]*Instance),
		registry:     reg,
		transactions: txs,
		cache:        snapshots,
		cfg:          cfg,
		logger:       logger,
		base:         base,
		cancel:       cancel,
	}
}

func (m *Manager) Registry() *registry.Registry { return m.registry }

func (m *Manager) Transactions() *registry.Transactions { return m.transactions }

func (m *Manager) Cache() *cache.Store { return m.cache }

func (m *Manager) Initialize(ctx context.Context, name string, opts Options) (*Instance, error) {
	if name == "" {
		name = DefaultName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[name]; ok {
		return nil, nativeerr.Wrap(nativeerr.AlreadyExists, fmt.Errorf("%w: %s", ErrStoreExists, name))
	}

	clientOpts := slices.Clone(m.cfg.ClientOptions)
	if len(opts.Credentials) > 0 {
		clientOpts = append(clientOpts, option.WithCredentialsJSON(opts.Credentials))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     opts.ProjectID,
		DatabaseURL:   opts.DatabaseURL,
		StorageBucket: opts.StorageBucket,
	}, clientOpts...)
	if err != nil {
		return nil, nativeerr.Wrap(nativeerr.InvalidArgument, fmt.Errorf("initialize %s: %w", name, err))
	}

	base, cancel := context.WithCancel(m.base)
	inst := &Instance{
		name:      name,
		options:   opts,
		app:       app,
		base:      base,
		cancel:    cancel,
		poll:      m.cfg.PollInterval,
		logger:    m.logger,
		databases: make(map[string]*database.Adapter),
	}
	m.instances[name] = inst
	m.logger.Info("store initialized", "store", name, "project", opts.ProjectID)
	return inst, nil
}

func (m *Manager) Get(name string) (*Instance, error) {
	if name == "" {
		name = DefaultName
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[name]
	if !ok {
		return nil, nativeerr.Wrap(nativeerr.NotFound, fmt.Errorf("%w: %s", ErrStoreNotFound, name))
	}
	return inst, nil
}

func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.instances))
	for _, name := range slices.Sorted(maps.Keys(m.instances)) {
		inst := m.instances[name]
		out = append(out, Info{Name: name, Options: inst.options})
	}
	return out
}

// Delete tears down one instance. Listeners are removed before the SDK
// clients close so no event escapes for a deleted instance.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if name == "" {
		name = DefaultName
	}
	m.mu.Lock()
	inst, ok := m.instances[name]
	delete(m.instances, name)
	m.mu.Unlock()
	if !ok {
		return nativeerr.Wrap(nativeerr.NotFound, fmt.Errorf("%w: %s", ErrStoreNotFound, name))
	}
	return m.teardown(ctx, inst)
}

func (m *Manager) teardown(ctx context.Context, inst *Instance) error {
	listeners := m.registry.UnregisterAll(ctx, inst.name)
	txs := m.transactions.Abandon(inst.name,
		nativeerr.Wrap(nativeerr.Cancelled, fmt.Errorf("%w: %s", ErrStoreDeleted, inst.name)))

	var errs []error
	if m.cache != nil {
		if err := m.cache.DropStore(inst.name); err != nil {
			errs = append(errs, fmt.Errorf("drop cached snapshots: %w", err))
		}
	}
	if err := inst.close(); err != nil {
		errs = append(errs, fmt.Errorf("close clients: %w", err))
	}
	m.logger.Info("store deleted",
		"store", inst.name,
		"listeners", listeners,
		"transactions", txs,
	)
	return errors.Join(errs...)
}

// Shutdown deletes every instance and stops all background work.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := slices.Collect(maps.Values(m.instances))
	clear(m.instances)
	m.mu.Unlock()

	var errs []error
	for _, inst := range all {
		if err := m.teardown(ctx, inst); err != nil {
			errs = append(errs, err)
		}
	}
	m.cancel()
	return errors.Join(errs...)
}
