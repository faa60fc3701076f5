package roaming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/notify"
	"github.com/kilianp07/roaming/core/status"
)

// ErrInvalidStatus is returned for statuses outside the known set.
var ErrInvalidStatus = errors.New("invalid status")

const (
	opDataChanged   = "data_changed"
	opStatusChanged = "status_changed"
)

// entityBase carries the status schedules and change observers shared by
// every infrastructure entity.
type entityBase struct {
	kind model.EntityKind
	key  string
	env  *env

	status *status.Schedule[model.Status]
	admin  *status.Schedule[model.AdminStatus]

	dataObs   *notify.Observers[events.DataChanged]
	statusObs *notify.Observers[events.StatusChanged]

	unwire []func()
}

func newEntityBase(kind model.EntityKind, key string, e *env, initial model.Status) *entityBase {
	now := e.now()
	return &entityBase{
		kind:      kind,
		key:       key,
		env:       e,
		status:    status.NewSchedule(e.historySize, initial, now),
		admin:     status.NewSchedule(e.historySize, model.AdminOperational, now),
		dataObs:   notify.NewObservers[events.DataChanged](e.log),
		statusObs: notify.NewObservers[events.StatusChanged](e.log),
	}
}

// resetStatus replaces the initial statuses. Only used by configurators
// before the entity is wired.
func (b *entityBase) resetStatus(st model.Status) {
	b.status = status.NewSchedule(b.env.historySize, st, b.env.now())
}

func (b *entityBase) resetAdminStatus(st model.AdminStatus) {
	b.admin = status.NewSchedule(b.env.historySize, st, b.env.now())
}

// hookSchedules turns schedule changes into status notifications.
func (b *entityBase) hookSchedules() {
	b.status.OnChange(func(old, updated status.Entry[model.Status]) {
		b.statusObs.Notify(context.Background(), opStatusChanged, events.StatusChanged{
			Kind:      b.kind,
			ID:        b.key,
			OldStatus: string(old.Status),
			NewStatus: string(updated.Status),
			Timestamp: updated.Timestamp,
		})
	})
	b.admin.OnChange(func(old, updated status.Entry[model.AdminStatus]) {
		b.statusObs.Notify(context.Background(), opStatusChanged, events.StatusChanged{
			Kind:      b.kind,
			ID:        b.key,
			Admin:     true,
			OldStatus: string(old.Status),
			NewStatus: string(updated.Status),
			Timestamp: updated.Timestamp,
		})
	})
}

// Status returns the current status.
func (b *entityBase) Status() model.Status { return b.status.Current() }

// AdminStatus returns the current admin status.
func (b *entityBase) AdminStatus() model.AdminStatus { return b.admin.Current() }

// StatusHistory returns the retained statuses, newest first.
func (b *entityBase) StatusHistory() []status.Entry[model.Status] { return b.status.History() }

// AdminStatusHistory returns the retained admin statuses, newest first.
func (b *entityBase) AdminStatusHistory() []status.Entry[model.AdminStatus] {
	return b.admin.History()
}

// SetStatus records a status reported at ts. Reports older than the current
// status are rejected with status.ErrOutOfOrder.
func (b *entityBase) SetStatus(st model.Status, ts time.Time) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, st)
	}
	_, err := b.status.Insert(st, ts)
	return err
}

// SetAdminStatus records an admin status set at ts.
func (b *entityBase) SetAdminStatus(st model.AdminStatus, ts time.Time) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, st)
	}
	_, err := b.admin.Insert(st, ts)
	return err
}

// OnDataChanged subscribes to data changes of the entity and its descendants.
func (b *entityBase) OnDataChanged(name string, fn notify.Observer[events.DataChanged]) func() {
	return b.dataObs.Subscribe(name, fn)
}

// OnStatusChanged subscribes to status changes of the entity and its descendants.
func (b *entityBase) OnStatusChanged(name string, fn notify.Observer[events.StatusChanged]) func() {
	return b.statusObs.Subscribe(name, fn)
}

// setStatusNow records an internally derived status. The timestamp never
// goes behind the current entry so derived statuses cannot be rejected.
func (b *entityBase) setStatusNow(st model.Status) {
	ts := b.env.now()
	if cur := b.status.CurrentEntry(); ts.Before(cur.Timestamp) {
		ts = cur.Timestamp
	}
	if _, err := b.status.Insert(st, ts); err != nil {
		b.env.log.Warnw("status update rejected", map[string]any{
			"kind":   b.kind.String(),
			"id":     b.key,
			"status": string(st),
			"error":  err.Error(),
		})
	}
}

func (b *entityBase) changeData(ctx context.Context, property string, old, updated any) {
	if old == updated {
		return
	}
	b.dataObs.Notify(ctx, opDataChanged, events.DataChanged{
		Kind:      b.kind,
		ID:        b.key,
		Property:  property,
		OldValue:  old,
		NewValue:  updated,
		Timestamp: b.env.now(),
	})
}

// forwardData relays a descendant data change to this entity's subscribers.
func (b *entityBase) forwardData(ctx context.Context, ev events.DataChanged) error {
	b.dataObs.Notify(ctx, opDataChanged, ev)
	return nil
}

// wireTo subscribes parent handlers to this entity's changes.
func (b *entityBase) wireTo(parent string, onData notify.Observer[events.DataChanged], onStatus notify.Observer[events.StatusChanged]) {
	b.unwire = append(b.unwire,
		b.dataObs.Subscribe(parent, onData),
		b.statusObs.Subscribe(parent, onStatus),
	)
}

func (b *entityBase) unwireAll() {
	for _, fn := range b.unwire {
		fn()
	}
	b.unwire = nil
}

// recompute derives the entity status from its direct children.
func (b *entityBase) recompute(agg status.Aggregator, snapshot map[string]model.Status) {
	if agg == nil {
		return
	}
	b.setStatusNow(agg(snapshot))
}
