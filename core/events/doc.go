// Package events defines the notifications emitted by the roaming network on
// its observers and on the event bus.
//
// Available event types:
//   - Requested: raised before a coordinator or dispatcher operation
//   - Completed: raised after it with result and runtime
//   - DataChanged: an entity property changed
//   - StatusChanged: an entity status or admin status changed
//   - EntityAdded / EntityRemoved: the tree changed
package events
