package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/invertase/react-native-firebase/internal/promise"
	"github.com/invertase/react-native-firebase/internal/snapshot"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

var (
	ErrTransactionInProgress = errors.New("registry: transaction already in progress")
	ErrNoTransaction         = errors.New("registry: no such transaction")
	ErrUpdatePending         = errors.New("registry: transaction update already pending")
)

type txKey struct {
	store string
	id    string
}

// Update is the application layer's answer to one transaction attempt.
type Update struct {
	Value tagged.Value
	Abort bool
}

type Transaction struct {
	Store string
	ID    string
	Path  string

	Result  *promise.Promise[snapshot.Envelope]
	updates chan Update

	mu        sync.Mutex
	abandoned error
}

// Abandoned returns the reason tx was abandoned by its store, or nil.
func (t *Transaction) Abandoned() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.abandoned
}

func (t *Transaction) abandon(reason error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.abandoned == nil {
		t.abandoned = reason
	}
}

// Offer hands the answer for the current attempt to the transaction
// runner. Only one answer may be pending at a time.
func (t *Transaction) Offer(u Update) error {
	select {
	case t.updates <- u:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUpdatePending, t.ID)
	}
}

// Updates delivers answers offered through Offer.
func (t *Transaction) Updates() <-chan Update { return t.updates }

// Transactions is the table of in-flight transactions. At most one
// transaction per (store, id) exists at any time.
type Transactions struct {
	m *xsync.Map[txKey, *Transaction]
}

func NewTransactions() *Transactions {
	return &Transactions{m: xsync.NewMap[txKey, *Transaction]()}
}

func (t *Transactions) Begin(store, id, path string) (*Transaction, error) {
	tx := &Transaction{
		Store:   store,
		ID:      id,
		Path:    path,
		Result:  promise.New[snapshot.Envelope](),
		updates: make(chan Update, 1),
	}
	if _, loaded := t.m.LoadOrStore(txKey{store, id}, tx); loaded {
		return nil, fmt.Errorf("%w: %s", ErrTransactionInProgress, id)
	}
	return tx, nil
}

func (t *Transactions) Get(store, id string) (*Transaction, bool) {
	return t.m.Load(txKey{store, id})
}

// Finish removes tx from the table. Callers remove before settling the
// result so a follow-up Begin with the same id can start immediately.
func (t *Transactions) Finish(tx *Transaction) bool {
	removed := false
	t.m.Compute(txKey{tx.Store, tx.ID}, func(cur *Transaction, loaded bool) (*Transaction, xsync.ComputeOp) {
		if loaded && cur == tx {
			removed = true
			return nil, xsync.DeleteOp
		}
		return cur, xsync.CancelOp
	})
	return removed
}

// Abandon removes and rejects every transaction of store. The runner still
// owns the outcome event and finds the reason through Abandoned.
func (t *Transactions) Abandon(store string, reason error) int {
	var victims []*Transaction
	t.m.Range(func(k txKey, tx *Transaction) bool {
		if k.store == store {
			victims = append(victims, tx)
		}
		return true
	})
	n := 0
	for _, tx := range victims {
		tx.abandon(reason)
		if t.Finish(tx) {
			_ = tx.Result.Reject(reason)
			n++
		}
	}
	return n
}

func (t *Transactions) Len() int { return t.m.Size() }
