package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invertase/react-native-firebase/internal/models"
)

type countingHandle struct {
	released atomic.Int32
}

func (h *countingHandle) Release() { h.released.Add(1) }

func subscribeWith(h models.Handle, calls *atomic.Int32) SubscribeFunc {
	return func(context.Context, *Registration) (models.Handle, error) {
		if calls != nil {
			calls.Add(1)
		}
		return h, nil
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	key := Key{Store: "[DEFAULT]", Listener: "1", Kind: KindValue}

	var calls atomic.Int32
	first, err := r.Register(ctx, key, Descriptor{Path: "users"}, subscribeWith(&countingHandle{}, &calls))
	require.NoError(t, err)

	second, err := r.Register(ctx, key, Descriptor{Path: "users"}, subscribeWith(&countingHandle{}, &calls))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, r.Len())
}

func TestUnregisterDropsLaterEvents(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	h := &countingHandle{}
	key := Key{Store: "[DEFAULT]", Listener: "7", Kind: KindSnapshot}

	reg, err := r.Register(ctx, key, Descriptor{}, subscribeWith(h, nil))
	require.NoError(t, err)

	var delivered atomic.Int32
	assert.True(t, r.Deliver(ctx, reg, func(context.Context) { delivered.Add(1) }))

	assert.True(t, r.Unregister(ctx, key))
	assert.False(t, r.Unregister(ctx, key))

	assert.False(t, r.Deliver(ctx, reg, func(context.Context) { delivered.Add(1) }))
	assert.Equal(t, int32(1), delivered.Load())
	assert.Equal(t, int32(1), h.released.Load())
	assert.True(t, reg.Released())
}

func TestDeliverWithoutContext(t *testing.T) {
	r := New(nil)
	key := Key{Store: "[DEFAULT]", Listener: "8", Kind: KindValue}
	reg, err := r.Register(context.Background(), key, Descriptor{}, nil)
	require.NoError(t, err)

	var got context.Context
	//nolint:staticcheck // callers outside the router may pass nil
	require.True(t, r.Deliver(nil, reg, func(ctx context.Context) { got = ctx }))
	require.NotNil(t, got)
	assert.True(t, delivering(got, reg))
	assert.True(t, r.Remove(nil, reg)) //nolint:staticcheck
}

func TestUnregisterAllReleasesEveryHandle(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	handles := make([]*countingHandle, 0, 4)
	for i, kind := range []Kind{KindValue, KindChildAdded, KindChildRemoved, KindChildMoved} {
		h := &countingHandle{}
		handles = append(handles, h)
		_, err := r.Register(ctx, Key{Store: "app", Listener: string(rune('a' + i)), Kind: kind}, Descriptor{}, subscribeWith(h, nil))
		require.NoError(t, err)
	}
	other := &countingHandle{}
	_, err := r.Register(ctx, Key{Store: "other", Listener: "a", Kind: KindValue}, Descriptor{}, subscribeWith(other, nil))
	require.NoError(t, err)

	assert.Equal(t, 4, r.UnregisterAll(ctx, "app"))
	assert.Equal(t, 0, r.Count("app"))
	assert.Equal(t, 1, r.Count("other"))
	for _, h := range handles {
		assert.Equal(t, int32(1), h.released.Load())
	}
	assert.Equal(t, int32(0), other.released.Load())
}

func TestUnregisterListenerRemovesAllKinds(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	for _, kind := range []Kind{KindValue, KindChildAdded} {
		_, err := r.Register(ctx, Key{Store: "app", Listener: "q1", Kind: kind}, Descriptor{}, nil)
		require.NoError(t, err)
	}
	_, err := r.Register(ctx, Key{Store: "app", Listener: "q2", Kind: KindValue}, Descriptor{}, nil)
	require.NoError(t, err)

	regs := r.Lookup("app", "q1")
	require.Len(t, regs, 2)
	assert.Equal(t, KindChildAdded, regs[0].Key().Kind)

	assert.Equal(t, 2, r.UnregisterListener(ctx, "app", "", "q1"))
	assert.Empty(t, r.Lookup("app", "q1"))
	assert.Len(t, r.Lookup("app", "q2"), 1)
}

func TestSubscribeFailureLeavesNothingBehind(t *testing.T) {
	r := New(nil)
	boom := errors.New("permission denied")
	key := Key{Store: "app", Listener: "x", Kind: KindValue}

	_, err := r.Register(context.Background(), key, Descriptor{}, func(context.Context, *Registration) (models.Handle, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := r.LookupKey(key)
	assert.False(t, ok)
}

func TestUnregisterFromInsideDelivery(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	h := &countingHandle{}
	key := Key{Store: "app", Listener: "once", Kind: KindChildAdded}
	reg, err := r.Register(ctx, key, Descriptor{}, subscribeWith(h, nil))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Deliver(ctx, reg, func(ctx context.Context) {
			r.Unregister(ctx, key)
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unregister inside delivery deadlocked")
	}
	assert.Equal(t, int32(1), h.released.Load())
	assert.False(t, r.Live(reg))
}

func TestUnregisterWaitsForDeliveryInFlight(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	key := Key{Store: "app", Listener: "slow", Kind: KindValue}
	reg, err := r.Register(ctx, key, Descriptor{}, nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	go r.Deliver(ctx, reg, func(context.Context) {
		close(entered)
		<-release
		finished.Store(true)
	})
	<-entered

	unregistered := make(chan struct{})
	go func() {
		r.Unregister(ctx, key)
		close(unregistered)
	}()

	select {
	case <-unregistered:
		t.Fatal("unregister returned while a delivery was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-unregistered
	assert.True(t, finished.Load())
}

func TestConcurrentRegisterAndTeardown(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := Key{Store: "app", Listener: string(rune('A' + i%8)), Kind: KindValue}
			reg, err := r.Register(ctx, key, Descriptor{}, subscribeWith(&countingHandle{}, nil))
			if err != nil && !errors.Is(err, ErrAlreadyRegistered) {
				t.Error(err)
				return
			}
			r.Deliver(ctx, reg, func(context.Context) {})
			if i%3 == 0 {
				r.UnregisterAll(ctx, "app")
			}
		}()
	}
	wg.Wait()
	r.UnregisterAll(ctx, "app")
	assert.Equal(t, 0, r.Len())
}

func TestTransactionsFailFast(t *testing.T) {
	txs := NewTransactions()

	tx, err := txs.Begin("app", "1", "counters/a")
	require.NoError(t, err)

	_, err = txs.Begin("app", "1", "counters/a")
	assert.ErrorIs(t, err, ErrTransactionInProgress)

	_, err = txs.Begin("other", "1", "counters/a")
	assert.NoError(t, err)

	require.NoError(t, tx.Offer(Update{Abort: true}))
	assert.ErrorIs(t, tx.Offer(Update{}), ErrUpdatePending)
	u := <-tx.Updates()
	assert.True(t, u.Abort)

	assert.True(t, txs.Finish(tx))
	assert.False(t, txs.Finish(tx))

	again, err := txs.Begin("app", "1", "counters/a")
	require.NoError(t, err)
	assert.NotSame(t, tx, again)
}

func TestTransactionsAbandon(t *testing.T) {
	txs := NewTransactions()
	a, _ := txs.Begin("app", "1", "x")
	_, _ = txs.Begin("other", "1", "x")

	boom := errors.New("app deleted")
	assert.Equal(t, 1, txs.Abandon("app", boom))
	_, err := a.Result.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, a.Abandoned(), boom)
	assert.Equal(t, 1, txs.Len())

	b, ok := txs.Get("other", "1")
	require.True(t, ok)
	assert.NoError(t, b.Abandoned())
}
