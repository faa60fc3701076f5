// Package notify implements observer lists whose failures never reach the
// notifying caller, and the propose/veto/commit/notify protocol used when
// entities are added to or removed from the roaming network.
package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/monitoring"
)

// Observer receives notifications of type T.
type Observer[T any] func(ctx context.Context, ev T) error

// Failure describes one observer that returned an error or panicked.
type Failure struct {
	Operation string
	Observer  string
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s observer %s: %v", f.Operation, f.Observer, f.Err)
}

type entry[T any] struct {
	id   uint64
	name string
	fn   Observer[T]
}

// Observers is an explicit list of observers. Each call is isolated: errors
// and panics are captured, logged and reported, then the next observer runs.
type Observers[T any] struct {
	mu     sync.RWMutex
	list   []entry[T]
	nextID atomic.Uint64
	log    logger.Logger
}

// NewObservers returns an empty list reporting failures to log.
func NewObservers[T any](log logger.Logger) *Observers[T] {
	return &Observers[T]{log: logger.OrNop(log)}
}

// Subscribe adds fn under name and returns a function removing it.
func (o *Observers[T]) Subscribe(name string, fn Observer[T]) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	id := o.nextID.Add(1)
	o.mu.Lock()
	o.list = append(o.list, entry[T]{id: id, name: name, fn: fn})
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, e := range o.list {
			if e.id == id {
				o.list = append(o.list[:i], o.list[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of observers.
func (o *Observers[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.list)
}

// Notify calls every observer in subscription order and returns the captured
// failures. Failures never abort the notification of the remaining observers.
func (o *Observers[T]) Notify(ctx context.Context, operation string, ev T) []Failure {
	if o == nil {
		return nil
	}
	o.mu.RLock()
	list := append([]entry[T](nil), o.list...)
	o.mu.RUnlock()

	var failures []Failure
	for _, e := range list {
		if err := invoke(ctx, e.fn, ev); err != nil {
			f := Failure{Operation: operation, Observer: e.name, Err: err}
			o.log.Errorw("observer failed", map[string]any{
				"operation": operation,
				"observer":  e.name,
				"error":     err.Error(),
			})
			monitoring.CaptureException(f, map[string]string{"operation": operation, "observer": e.name})
			failures = append(failures, f)
		}
	}
	return failures
}

func invoke[T any](ctx context.Context, fn Observer[T], ev T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = monitoring.PanicError(r)
		}
	}()
	return fn(ctx, ev)
}
