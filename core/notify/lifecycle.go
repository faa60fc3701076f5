package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/roaming/core/logger"
)

// Veto inspects a candidate and returns a non-nil error to reject it.
type Veto[T any] func(ctx context.Context, candidate T) error

// VetoError reports which observer rejected a proposal.
type VetoError struct {
	Operation string
	Observer  string
	Reason    error
}

func (e *VetoError) Error() string {
	return fmt.Sprintf("%s vetoed by %s: %v", e.Operation, e.Observer, e.Reason)
}

func (e *VetoError) Unwrap() error { return e.Reason }

type namedVeto[T any] struct {
	name string
	fn   Veto[T]
}

// Lifecycle coordinates additions and removals of T in four explicit phases:
// the owner proposes, vetoes may reject, the owner commits, then observers
// are notified. Commit is done by the owner between Propose* and Notify*.
type Lifecycle[T any] struct {
	mu            sync.RWMutex
	addVetoes     []namedVeto[T]
	removeVetoes  []namedVeto[T]
	added         *Observers[T]
	removed       *Observers[T]
	operationName string
}

// NewLifecycle returns a lifecycle for entities of the named kind.
func NewLifecycle[T any](kind string, log logger.Logger) *Lifecycle[T] {
	return &Lifecycle[T]{
		added:         NewObservers[T](log),
		removed:       NewObservers[T](log),
		operationName: kind,
	}
}

// OnAdding registers a veto consulted before additions.
func (l *Lifecycle[T]) OnAdding(name string, fn Veto[T]) {
	l.mu.Lock()
	l.addVetoes = append(l.addVetoes, namedVeto[T]{name: name, fn: fn})
	l.mu.Unlock()
}

// OnRemoving registers a veto consulted before removals.
func (l *Lifecycle[T]) OnRemoving(name string, fn Veto[T]) {
	l.mu.Lock()
	l.removeVetoes = append(l.removeVetoes, namedVeto[T]{name: name, fn: fn})
	l.mu.Unlock()
}

// OnAdded registers an observer notified after a committed addition.
func (l *Lifecycle[T]) OnAdded(name string, fn Observer[T]) func() { return l.added.Subscribe(name, fn) }

// OnRemoved registers an observer notified after a committed removal.
func (l *Lifecycle[T]) OnRemoved(name string, fn Observer[T]) func() {
	return l.removed.Subscribe(name, fn)
}

// ProposeAddition asks every veto; the first rejection wins.
func (l *Lifecycle[T]) ProposeAddition(ctx context.Context, candidate T) error {
	return l.propose(ctx, "add "+l.operationName, l.snapshot(true), candidate)
}

// ProposeRemoval asks every removal veto; the first rejection wins.
func (l *Lifecycle[T]) ProposeRemoval(ctx context.Context, candidate T) error {
	return l.propose(ctx, "remove "+l.operationName, l.snapshot(false), candidate)
}

// NotifyAdded informs observers of a committed addition.
func (l *Lifecycle[T]) NotifyAdded(ctx context.Context, item T) []Failure {
	return l.added.Notify(ctx, l.operationName+" added", item)
}

// NotifyRemoved informs observers of a committed removal.
func (l *Lifecycle[T]) NotifyRemoved(ctx context.Context, item T) []Failure {
	return l.removed.Notify(ctx, l.operationName+" removed", item)
}

func (l *Lifecycle[T]) snapshot(adding bool) []namedVeto[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if adding {
		return append([]namedVeto[T](nil), l.addVetoes...)
	}
	return append([]namedVeto[T](nil), l.removeVetoes...)
}

func (l *Lifecycle[T]) propose(ctx context.Context, op string, vetoes []namedVeto[T], candidate T) error {
	for _, v := range vetoes {
		if err := invokeVeto(ctx, v.fn, candidate); err != nil {
			return &VetoError{Operation: op, Observer: v.name, Reason: err}
		}
	}
	return nil
}

// A panicking veto rejects the proposal.
func invokeVeto[T any](ctx context.Context, fn Veto[T], candidate T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("veto panicked: %v", r)
		}
	}()
	return fn(ctx, candidate)
}
