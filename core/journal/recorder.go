package journal

import (
	"context"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/internal/eventbus"
)

// StartRecorder subscribes to the event bus and appends every completed
// operation whose level is in levels to store. An empty levels list records
// every level. It stops when the context is canceled.
func StartRecorder(ctx context.Context, bus eventbus.EventBus, store Store, log logger.Logger, levels ...string) {
	if bus == nil || store == nil {
		return
	}
	log = logger.OrNop(log)
	keep := make(map[string]bool, len(levels))
	for _, l := range levels {
		keep[l] = true
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				e, ok := ev.(events.Completed)
				if !ok || (len(keep) > 0 && !keep[e.Level]) {
					continue
				}
				rec, err := FromCompleted(e)
				if err != nil {
					log.Warnw("journal record skipped", map[string]any{"operation": string(e.Operation), "error": err.Error()})
					continue
				}
				if err := store.Append(ctx, rec); err != nil {
					log.Errorw("journal append failed", map[string]any{"operation": string(e.Operation), "error": err.Error()})
				}
			}
		}
	}()
}
