// Package roaming models the charging infrastructure of a roaming network:
// operators own charging pools, pools own stations and stations own EVSEs.
// Reservations and remote sessions enter at the network and are routed down
// by the coordinators embedded at the network, operator and pool levels.
package roaming

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/status"
	"github.com/kilianp07/roaming/internal/eventbus"
)

var (
	// ErrAlreadyExists is returned when a child id is already registered.
	ErrAlreadyExists = errors.New("entity already exists")
	// ErrVetoed is returned when an observer rejected an addition or removal.
	ErrVetoed = errors.New("vetoed")
	// ErrNotFound is returned when no entity has the requested id.
	ErrNotFound = errors.New("entity not found")
	// ErrOperatorMismatch is returned when a child id embeds another operator.
	ErrOperatorMismatch = errors.New("identifier belongs to another operator")
)

// Aggregators selects how each level derives its status from its children.
// A nil aggregator leaves the level status untouched.
type Aggregators struct {
	Station  status.Aggregator
	Pool     status.Aggregator
	Operator status.Aggregator
}

// DefaultAggregators reports a level available as soon as one child is.
func DefaultAggregators() Aggregators {
	return Aggregators{Station: status.BestAvailable, Pool: status.BestAvailable, Operator: status.BestAvailable}
}

// env is shared by every entity of one network.
type env struct {
	log         logger.Logger
	bus         eventbus.EventBus
	now         func() time.Time
	tracer      trace.Tracer
	maxDuration time.Duration
	historySize int
	aggregators Aggregators
}

func (e *env) publish(ev any) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func (e *env) coordinatorOptions() []coordinator.Option {
	opts := []coordinator.Option{
		coordinator.WithLogger(e.log),
		coordinator.WithBus(e.bus),
		coordinator.WithClock(e.now),
		coordinator.WithMaxReservationDuration(e.maxDuration),
	}
	if e.tracer != nil {
		opts = append(opts, coordinator.WithTracer(e.tracer))
	}
	return opts
}

// NetworkOption configures a RoamingNetwork.
type NetworkOption func(*env)

// WithLogger sets the logger shared by all entities.
func WithLogger(l logger.Logger) NetworkOption { return func(e *env) { e.log = logger.OrNop(l) } }

// WithBus publishes every change and operation on bus.
func WithBus(bus eventbus.EventBus) NetworkOption { return func(e *env) { e.bus = bus } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) NetworkOption {
	return func(e *env) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTracer sets the tracer used by the coordinators.
func WithTracer(t trace.Tracer) NetworkOption { return func(e *env) { e.tracer = t } }

// WithMaxReservationDuration caps reservations at every level.
func WithMaxReservationDuration(d time.Duration) NetworkOption {
	return func(e *env) {
		if d > 0 {
			e.maxDuration = d
		}
	}
}

// WithStatusHistory sets how many statuses each entity keeps.
func WithStatusHistory(n int) NetworkOption { return func(e *env) { e.historySize = n } }

// WithAggregators sets the status aggregation of every level.
func WithAggregators(a Aggregators) NetworkOption { return func(e *env) { e.aggregators = a } }

func newEnv(opts []NetworkOption) *env {
	e := &env{
		log:         logger.NopLogger{},
		now:         time.Now,
		maxDuration: coordinator.DefaultMaxReservationDuration,
		historySize: status.DefaultCapacity,
		aggregators: DefaultAggregators(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}
