package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// Latest is a single-slot mailbox. Offer never blocks; a value offered
// before the previous one was taken replaces it and counts as dropped.
type Latest[T any] struct {
	mu    sync.Mutex
	val   T
	full  bool
	ready chan struct{}

	offered atomic.Uint64
	dropped atomic.Uint64
}

// NewLatest returns an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ready: make(chan struct{}, 1)}
}

// Offer stores v, replacing any value not yet taken. It reports whether a
// value was replaced.
func (l *Latest[T]) Offer(v T) bool {
	l.offered.Add(1)
	l.mu.Lock()
	replaced := l.full
	l.val = v
	l.full = true
	l.mu.Unlock()
	if replaced {
		l.dropped.Add(1)
	}
	select {
	case l.ready <- struct{}{}:
	default:
	}
	return replaced
}

// Take blocks until a value is available or ctx is done.
func (l *Latest[T]) Take(ctx context.Context) (T, error) {
	for {
		if v, ok := l.tryTake(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-l.ready:
		}
	}
}

func (l *Latest[T]) tryTake() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	if !l.full {
		return zero, false
	}
	v := l.val
	l.val = zero
	l.full = false
	return v, true
}

// Run hands every taken value to fn on the calling goroutine until ctx is
// done.
func (l *Latest[T]) Run(ctx context.Context, fn func(T)) error {
	for {
		v, err := l.Take(ctx)
		if err != nil {
			return err
		}
		fn(v)
	}
}

// Offered returns how many values were offered.
func (l *Latest[T]) Offered() uint64 { return l.offered.Load() }

// Dropped returns how many values were replaced before being taken.
func (l *Latest[T]) Dropped() uint64 { return l.dropped.Load() }
