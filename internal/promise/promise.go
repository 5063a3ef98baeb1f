// Package promise provides single-assignment completions for inbound
// operations that answer asynchronously.
package promise

import (
	"context"
	"errors"
	"sync"
)

var ErrAlreadySettled = errors.New("promise: already settled")

// Promise is settled exactly once, by Resolve or Reject. Later attempts
// fail with ErrAlreadySettled and leave the first outcome in place.
type Promise[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

func (p *Promise[T]) settle(v T, err error) error {
	settled := false
	p.once.Do(func() {
		p.value = v
		p.err = err
		settled = true
		close(p.done)
	})
	if !settled {
		return ErrAlreadySettled
	}
	return nil
}

func (p *Promise[T]) Resolve(v T) error {
	return p.settle(v, nil)
}

func (p *Promise[T]) Reject(err error) error {
	var zero T
	if err == nil {
		err = errors.New("promise: rejected without a reason")
	}
	return p.settle(zero, err)
}

func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Settled reports whether the promise already has an outcome.
func (p *Promise[T]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the promise settles or ctx ends.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
