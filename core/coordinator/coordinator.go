// Package coordinator implements the resolve, delegate and register flow
// shared by the roaming network, the operators and the charging pools for
// reservations and charging sessions.
//
// A Coordinator resolves a Target to the child Node responsible for it,
// delegates the request and, on success, records the reservation or session
// id in its own registry so later cancellations and stops can be routed
// without resolving again. Registries are bookkeeping: no lock spans a full
// operation, so concurrent requests may race between resolve and register.
package coordinator

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/notify"
	"github.com/kilianp07/roaming/core/registry"
	"github.com/kilianp07/roaming/core/result"
	"github.com/kilianp07/roaming/internal/eventbus"
)

// DefaultMaxReservationDuration caps reservations at every level.
const DefaultMaxReservationDuration = 15 * time.Minute

const tracerName = "github.com/kilianp07/roaming/core/coordinator"

// Node is a child able to serve reservations and sessions: an operator, a
// pool or a station.
type Node interface {
	NodeID() string
	Reserve(ctx context.Context, req ReserveRequest) (result.Reservation, error)
	CancelReservation(ctx context.Context, req CancelReservationRequest) (result.CancelReservation, error)
	RemoteStart(ctx context.Context, req RemoteStartRequest) (result.RemoteStart, error)
	RemoteStop(ctx context.Context, req RemoteStopRequest) (result.RemoteStop, error)
}

// Miss tells why a target could not be resolved.
type Miss int

const (
	Found Miss = iota
	// MissOperator means the operator embedded in the target is unknown.
	MissOperator
	// MissEntity means the operator is known but the EVSE, station or pool is not.
	MissEntity
)

// Resolver maps a target to the child responsible for it.
type Resolver func(t Target) (Node, Miss)

// Handle binds a registered item to the child that owns it.
type Handle[T any] struct {
	Owner Node
	Item  T
}

// Coordinator is embedded by every node that owns children.
type Coordinator struct {
	kind    string
	id      string
	resolve Resolver
	owners  func() []Node

	maxDuration time.Duration
	now         func() time.Time
	log         logger.Logger
	bus         eventbus.EventBus
	tracer      trace.Tracer

	reservations *registry.Registry[ids.ReservationID, Handle[model.Reservation]]
	sessions     *registry.Registry[ids.SessionID, Handle[model.ChargingSession]]

	requested *notify.Observers[events.Requested]
	completed *notify.Observers[events.Completed]
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger receiving collisions and observer failures.
func WithLogger(l logger.Logger) Option { return func(c *Coordinator) { c.log = logger.OrNop(l) } }

// WithBus publishes before and after notifications on bus.
func WithBus(bus eventbus.EventBus) Option { return func(c *Coordinator) { c.bus = bus } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMaxReservationDuration sets the reservation cap; non-positive values keep the default.
func WithMaxReservationDuration(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.maxDuration = d
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New returns a coordinator for the node of the given kind and id.
func New(kind, id string, resolve Resolver, owners func() []Node, opts ...Option) *Coordinator {
	c := &Coordinator{
		kind:         kind,
		id:           id,
		resolve:      resolve,
		owners:       owners,
		maxDuration:  DefaultMaxReservationDuration,
		now:          time.Now,
		log:          logger.NopLogger{},
		tracer:       otel.Tracer(tracerName),
		reservations: registry.New[ids.ReservationID, Handle[model.Reservation]](),
		sessions:     registry.New[ids.SessionID, Handle[model.ChargingSession]](),
	}
	for _, o := range opts {
		o(c)
	}
	c.requested = notify.NewObservers[events.Requested](c.log)
	c.completed = notify.NewObservers[events.Completed](c.log)
	return c
}

// NodeID returns the identifier of the owning node.
func (c *Coordinator) NodeID() string { return c.id }

// MaxReservationDuration returns the configured reservation cap.
func (c *Coordinator) MaxReservationDuration() time.Duration { return c.maxDuration }

// OnRequested subscribes to the notification raised before each operation.
func (c *Coordinator) OnRequested(name string, fn notify.Observer[events.Requested]) func() {
	return c.requested.Subscribe(name, fn)
}

// OnCompleted subscribes to the notification raised after each operation.
func (c *Coordinator) OnCompleted(name string, fn notify.Observer[events.Completed]) func() {
	return c.completed.Subscribe(name, fn)
}

// TryGetReservation returns a reservation registered at this level.
func (c *Coordinator) TryGetReservation(id ids.ReservationID) (model.Reservation, bool) {
	h, ok := c.reservations.TryGet(id)
	return h.Item, ok
}

// TryGetSession returns a session registered at this level.
func (c *Coordinator) TryGetSession(id ids.SessionID) (model.ChargingSession, bool) {
	h, ok := c.sessions.TryGet(id)
	return h.Item, ok
}

// Reservations lists the registered reservations ordered by id.
func (c *Coordinator) Reservations() []model.Reservation {
	out := make([]model.Reservation, 0, c.reservations.Len())
	for _, h := range registry.SortedValues(c.reservations) {
		out = append(out, h.Item)
	}
	return out
}

// Sessions lists the registered sessions ordered by id.
func (c *Coordinator) Sessions() []model.ChargingSession {
	out := make([]model.ChargingSession, 0, c.sessions.Len())
	for _, h := range registry.SortedValues(c.sessions) {
		out = append(out, h.Item)
	}
	return out
}

// SessionOwner returns the child owning a registered session.
func (c *Coordinator) SessionOwner(id ids.SessionID) (Node, bool) {
	h, ok := c.sessions.TryGet(id)
	return h.Owner, ok
}

// RegisterSession records a session created outside RemoteStart. A second
// registration of the same id fails with ErrSessionExists and changes nothing.
func (c *Coordinator) RegisterSession(owner Node, s model.ChargingSession) error {
	if s.ID.IsEmpty() {
		return ErrEmptySessionID
	}
	if !c.sessions.TryAdd(s.ID, Handle[model.ChargingSession]{Owner: owner, Item: s}) {
		return ErrSessionExists
	}
	registrySize.WithLabelValues(registrySessions, c.kind).Set(float64(c.sessions.Len()))
	return nil
}

// UnregisterSession removes a session and returns its previous owner.
func (c *Coordinator) UnregisterSession(id ids.SessionID) (Node, bool) {
	h, ok := c.sessions.TryRemove(id)
	if ok {
		registrySize.WithLabelValues(registrySessions, c.kind).Set(float64(c.sessions.Len()))
	}
	return h.Owner, ok
}

// ForgetReservation drops a reservation from the registry without contacting
// its owner and returns the previous owner.
func (c *Coordinator) ForgetReservation(id ids.ReservationID) (Node, bool) {
	h, ok := c.reservations.TryRemove(id)
	if ok {
		registrySize.WithLabelValues(registryReservations, c.kind).Set(float64(c.reservations.Len()))
	}
	return h.Owner, ok
}

// registerReservation records a granted reservation. Generated ids cannot
// collide. A caller supplied id already held by the same owner is a renewal;
// held by another owner, the first writer is kept and the collision counted.
func (c *Coordinator) registerReservation(owner Node, r model.Reservation) {
	h := Handle[model.Reservation]{Owner: owner, Item: r}
	if !c.reservations.TryAdd(r.ID, h) {
		renewed := c.reservations.Update(r.ID, func(cur Handle[model.Reservation]) (Handle[model.Reservation], bool) {
			return h, cur.Owner.NodeID() == owner.NodeID()
		})
		if !renewed {
			registryCollisions.WithLabelValues(registryReservations).Inc()
			c.log.Warnw("reservation id collision, keeping first owner", map[string]any{
				"reservation_id": r.ID.String(),
				"level":          c.kind,
				"node":           c.id,
				"owner":          owner.NodeID(),
			})
		}
	}
	registrySize.WithLabelValues(registryReservations, c.kind).Set(float64(c.reservations.Len()))
}

func (c *Coordinator) registerSession(owner Node, s model.ChargingSession) {
	if err := c.RegisterSession(owner, s); err != nil {
		registryCollisions.WithLabelValues(registrySessions).Inc()
		c.log.Warnw("session id collision, keeping first owner", map[string]any{
			"session_id": s.ID.String(),
			"level":      c.kind,
			"node":       c.id,
			"owner":      owner.NodeID(),
		})
	}
}

func (c *Coordinator) ownersByID() []Node {
	if c.owners == nil {
		return nil
	}
	nodes := c.owners()
	slices.SortFunc(nodes, func(a, b Node) int { return strings.Compare(a.NodeID(), b.NodeID()) })
	return nodes
}

// begin raises the before notification and opens a span.
func (c *Coordinator) begin(ctx context.Context, op events.Operation, tracking ids.EventTrackingID, target string, req any) (context.Context, trace.Span, time.Time) {
	ctx, span := c.tracer.Start(ctx, "coordinator."+string(op), trace.WithAttributes(
		attribute.String("roaming.level", c.kind),
		attribute.String("roaming.node", c.id),
		attribute.String("roaming.target", target),
		attribute.String("roaming.event_tracking_id", tracking.String()),
	))
	started := c.now()
	ev := events.Requested{
		Operation:       op,
		Level:           c.kind,
		Node:            c.id,
		Timestamp:       started,
		EventTrackingID: tracking,
		Target:          target,
		Request:         req,
	}
	c.requested.Notify(ctx, string(op), ev)
	if c.bus != nil {
		c.bus.Publish(ev)
	}
	return ctx, span, started
}

// end raises the after notification, records metrics and closes the span.
func (c *Coordinator) end(ctx context.Context, span trace.Span, op events.Operation, tracking ids.EventTrackingID, target string, req any, kind string, res any, runtime time.Duration) {
	ObserveOperation(string(op), c.kind, kind, runtime)
	span.SetAttributes(attribute.String("roaming.result", kind))
	if kind == "error" {
		span.SetStatus(codes.Error, kind)
	}
	span.End()

	ev := events.Completed{
		Operation:       op,
		Level:           c.kind,
		Node:            c.id,
		Timestamp:       c.now(),
		EventTrackingID: tracking,
		Target:          target,
		Request:         req,
		ResultType:      kind,
		Result:          res,
		Runtime:         runtime,
	}
	c.completed.Notify(ctx, string(op), ev)
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

func (c *Coordinator) elapsed(started time.Time) time.Duration {
	d := c.now().Sub(started)
	if d < 0 {
		return 0
	}
	return d
}

func trackingOrNew(id ids.EventTrackingID) ids.EventTrackingID {
	if id.IsEmpty() {
		return ids.NewEventTrackingID()
	}
	return id
}
