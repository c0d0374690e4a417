package client

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// observers is a registration-ordered set of callbacks.
type observers[T any] struct {
	mu       sync.Mutex
	next     uint64
	handlers *orderedmap.OrderedMap[uint64, func(T)]
}

func newObservers[T any]() *observers[T] {
	return &observers[T]{
		handlers: orderedmap.New[uint64, func(T)](),
	}
}

// add registers f and returns a func removing it again. Calling the returned
// func more than once is harmless.
func (o *observers[T]) add(f func(T)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.next
	o.next += 1
	o.handlers.Set(id, f)

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()

		o.handlers.Delete(id)
	}
}

func (o *observers[T]) emit(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, o.handlers.Len())

	for pair := o.handlers.Oldest(); pair != nil; pair = pair.Next() {
		fns = append(fns, pair.Value)
	}
	o.mu.Unlock()

	for _, f := range fns {
		f(v)
	}
}

func (o *observers[T]) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.handlers.Len()
}
