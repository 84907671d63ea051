// Package lease serializes jobs that publish to the same destination.
package lease

import (
	"context"
	"fmt"
	"sync"
)

// Locker grants exclusive use of a named target. Release must be
// called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// None grants every request immediately; concurrent jobs on one target
// may interleave.
type None struct{}

func (None) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

// Local is an in-process mutex per key.
type Local struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]chan struct{})}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
