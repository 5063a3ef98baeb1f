package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/invertase/react-native-firebase/internal/apps"
	"github.com/invertase/react-native-firebase/internal/events"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/snapshot"
)

// TransactionTimeout bounds how long a transaction attempt waits for the
// application layer to answer an update event.
const TransactionTimeout = 5 * time.Second

type BaseService struct {
	apps    *apps.Manager
	router  *events.Router
	logger  *slog.Logger
	timeout time.Duration
}

func NewBaseService(
	mgr *apps.Manager,
	router *events.Router,
	logger *slog.Logger,
) *BaseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseService{
		apps:    mgr,
		router:  router,
		logger:  logger,
		timeout: TransactionTimeout,
	}
}

func (s *BaseService) registry() *registry.Registry { return s.apps.Registry() }

func (s *BaseService) transactions() *registry.Transactions { return s.apps.Transactions() }

// register subscribes once per key. A repeated subscribe is not an error.
func (s *BaseService) register(
	ctx context.Context,
	key registry.Key,
	desc registry.Descriptor,
	subscribe registry.SubscribeFunc,
) error {
	_, err := s.registry().Register(ctx, key, desc, subscribe)
	if errors.Is(err, registry.ErrAlreadyRegistered) {
		s.logger.Debug("listener already registered",
			"store", key.Store,
			"listener", key.Listener,
			"kind", key.Kind,
		)
		return nil
	}
	return err
}

func (s *BaseService) begin(store, id, path string) (*registry.Transaction, error) {
	tx, err := s.transactions().Begin(store, id, path)
	if err != nil {
		return nil, nativeerr.Wrap(nativeerr.FailedPrecondition, err)
	}
	return tx, nil
}

// offer hands the application layer's answer to a waiting transaction.
func (s *BaseService) offer(store, id string, u registry.Update) error {
	tx, ok := s.transactions().Get(store, id)
	if !ok {
		return nativeerr.Wrap(nativeerr.NotFound, fmt.Errorf("%w: %s", registry.ErrNoTransaction, id))
	}
	if err := tx.Offer(u); err != nil {
		return nativeerr.Wrap(nativeerr.FailedPrecondition, err)
	}
	return nil
}

// txContext derives the context for the SDK side of tx. It ends when the
// transaction's result settles elsewhere.
func (s *BaseService) txContext(ctx context.Context, tx *registry.Transaction) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-tx.Result.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// awaitUpdate emits the current value of tx and blocks until the
// application layer answers, the transaction is abandoned or the timeout
// passes.
func (s *BaseService) awaitUpdate(ctx context.Context, tx *registry.Transaction, current snapshot.Envelope) (registry.Update, error) {
	if err := s.router.TransactionUpdate(ctx, tx, current); err != nil {
		return registry.Update{}, nativeerr.Wrap(nativeerr.MalformedValue, err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case u := <-tx.Updates():
		return u, nil
	case <-tx.Result.Done():
		_, err := tx.Result.Wait(context.Background())
		if err == nil {
			err = nativeerr.New(nativeerr.Cancelled, "transaction %s already finished", tx.ID)
		}
		return registry.Update{}, err
	case <-timer.C:
		return registry.Update{}, nativeerr.New(nativeerr.DeadlineExceeded,
			"transaction %s: no update within %s", tx.ID, s.timeout)
	case <-ctx.Done():
		return registry.Update{}, ctx.Err()
	}
}
