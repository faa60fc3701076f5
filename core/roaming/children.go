package roaming

import (
	"cmp"
	"context"
	"fmt"

	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/notify"
	"github.com/kilianp07/roaming/core/registry"
)

// children is the registry of one child kind together with its vetoable
// lifecycle.
type children[K cmp.Ordered, T any] struct {
	kind  string
	items *registry.Registry[K, T]
	life  *notify.Lifecycle[T]
}

func newChildren[K cmp.Ordered, T any](kind string, log logger.Logger) *children[K, T] {
	return &children[K, T]{
		kind:  kind,
		items: registry.New[K, T](),
		life:  notify.NewLifecycle[T](kind, log),
	}
}

// add proposes item and commits it. The caller wires the item and then
// calls added.
func (c *children[K, T]) add(ctx context.Context, id K, item T) error {
	if c.items.Contains(id) {
		return fmt.Errorf("%w: %s %v", ErrAlreadyExists, c.kind, id)
	}
	if err := c.life.ProposeAddition(ctx, item); err != nil {
		return fmt.Errorf("%w: %w", ErrVetoed, err)
	}
	if !c.items.TryAdd(id, item) {
		return fmt.Errorf("%w: %s %v", ErrAlreadyExists, c.kind, id)
	}
	return nil
}

func (c *children[K, T]) added(ctx context.Context, item T) {
	c.life.NotifyAdded(ctx, item)
}

func (c *children[K, T]) remove(ctx context.Context, id K) (T, error) {
	item, ok := c.items.TryGet(id)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %v", ErrNotFound, c.kind, id)
	}
	if err := c.life.ProposeRemoval(ctx, item); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrVetoed, err)
	}
	if _, ok := c.items.TryRemove(id); !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %v", ErrNotFound, c.kind, id)
	}
	c.life.NotifyRemoved(ctx, item)
	return item, nil
}

func (c *children[K, T]) get(id K) (T, bool) { return c.items.TryGet(id) }

func (c *children[K, T]) has(id K) bool { return c.items.Contains(id) }

func (c *children[K, T]) len() int { return c.items.Len() }

// sorted returns the children ordered by id.
func (c *children[K, T]) sorted() []T { return registry.SortedValues(c.items) }
