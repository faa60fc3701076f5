package authorization

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/notify"
	"github.com/kilianp07/roaming/core/registry"
	"github.com/kilianp07/roaming/core/result"
	"github.com/kilianp07/roaming/internal/eventbus"
)

const (
	level      = "authorization"
	tracerName = "github.com/kilianp07/roaming/core/authorization"
)

// SessionRegistrar is called after an EVSE targeted start was authorized.
type SessionRegistrar func(ctx context.Context, evse ids.EVSEID, req StartRequest, res result.AuthStart) error

// SessionEnder is called for every accepted charge detail record.
type SessionEnder func(ctx context.Context, cdr model.ChargeDetailRecord) error

// CDRFilter may answer for a charge detail record before it is forwarded.
// Returning false lets the record through.
type CDRFilter func(ctx context.Context, cdr model.ChargeDetailRecord) (result.SendCDR, bool)

// Dispatcher scans local providers then roaming providers sequentially.
type Dispatcher struct {
	sources     Sources
	startPolicy Policy
	stopPolicy  Policy

	register SessionRegistrar
	endSess  SessionEnder
	filter   CDRFilter

	log    logger.Logger
	bus    eventbus.EventBus
	now    func() time.Time
	tracer trace.Tracer

	cdrs *registry.Registry[ids.SessionID, model.ChargeDetailRecord]

	requested *notify.Observers[events.Requested]
	completed *notify.Observers[events.Completed]
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStartPolicy sets the policy ending start scans.
func WithStartPolicy(p Policy) Option { return func(d *Dispatcher) { d.startPolicy = p } }

// WithStopPolicy sets the policy ending stop scans.
func WithStopPolicy(p Policy) Option { return func(d *Dispatcher) { d.stopPolicy = p } }

// WithSessionRegistrar installs the hook run after EVSE targeted starts.
func WithSessionRegistrar(fn SessionRegistrar) Option { return func(d *Dispatcher) { d.register = fn } }

// WithSessionEnder installs the hook run for every accepted record.
func WithSessionEnder(fn SessionEnder) Option { return func(d *Dispatcher) { d.endSess = fn } }

// WithCDRFilter installs a filter consulted before forwarding.
func WithCDRFilter(fn CDRFilter) Option { return func(d *Dispatcher) { d.filter = fn } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(d *Dispatcher) { d.log = logger.OrNop(l) } }

// WithBus publishes notifications on bus.
func WithBus(bus eventbus.EventBus) Option { return func(d *Dispatcher) { d.bus = bus } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// New returns a dispatcher over sources. Starts stop on authorized or
// blocked answers and stops on authorized answers unless configured
// otherwise.
func New(sources Sources, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sources:     sources,
		startPolicy: StopOnAuthorizedOrBlocked,
		stopPolicy:  StopOnAuthorized,
		log:         logger.NopLogger{},
		now:         time.Now,
		tracer:      otel.Tracer(tracerName),
		cdrs:        registry.New[ids.SessionID, model.ChargeDetailRecord](),
	}
	for _, o := range opts {
		o(d)
	}
	d.requested = notify.NewObservers[events.Requested](d.log)
	d.completed = notify.NewObservers[events.Completed](d.log)
	return d
}

// StartPolicy returns the policy used for starts.
func (d *Dispatcher) StartPolicy() Policy { return d.startPolicy }

// StopPolicy returns the policy used for stops.
func (d *Dispatcher) StopPolicy() Policy { return d.stopPolicy }

// OnRequested subscribes to the notification raised before each request.
func (d *Dispatcher) OnRequested(name string, fn notify.Observer[events.Requested]) func() {
	return d.requested.Subscribe(name, fn)
}

// OnCompleted subscribes to the notification raised after each request.
func (d *Dispatcher) OnCompleted(name string, fn notify.Observer[events.Completed]) func() {
	return d.completed.Subscribe(name, fn)
}

func (d *Dispatcher) tiers() [][]Backend {
	if d.sources == nil {
		return nil
	}
	return [][]Backend{SortBackends(d.sources.LocalBackends()), SortBackends(d.sources.RoamingBackends())}
}

// AuthorizeStart asks every backend in turn until the start policy is met.
func (d *Dispatcher) AuthorizeStart(ctx context.Context, req StartRequest) (result.AuthStart, error) {
	if req.AuthToken == "" {
		return result.AuthStart{}, ErrEmptyAuthToken
	}
	if req.EventTrackingID.IsEmpty() {
		req.EventTrackingID = ids.NewEventTrackingID()
	}
	target := req.Target.String()
	ctx, span, started := d.begin(ctx, events.OpAuthorizeStart, req.EventTrackingID, target, req)

	res := result.AuthStartFailed(result.AuthError, "", result.NoPositiveResult)
scan:
	for _, tier := range d.tiers() {
		for _, b := range tier {
			r, err := b.AuthorizeStart(ctx, req)
			if err != nil {
				d.log.Warnw("backend start authorization failed", map[string]any{
					"backend": b.ID(),
					"error":   err.Error(),
				})
				continue
			}
			if d.startPolicy.stops(r.Type) {
				res = r
				break scan
			}
		}
	}

	if res.Type == result.AuthAuthorized {
		if res.SessionID.IsEmpty() {
			res.SessionID = req.SessionID
		}
		if res.SessionID.IsEmpty() {
			res.SessionID = ids.NewSessionID()
		}
		if req.Target.Level == model.LevelEVSE && !req.Target.IsEmpty() && d.register != nil {
			if err := d.register(ctx, ids.EVSEID(req.Target.ID), req, res); err != nil {
				d.log.Warnw("session registration after authorization failed", map[string]any{
					"session_id": res.SessionID.String(),
					"evse_id":    req.Target.ID,
					"error":      err.Error(),
				})
			}
		}
	}
	res.Runtime = d.elapsed(started)

	d.end(ctx, span, events.OpAuthorizeStart, req.EventTrackingID, target, req, res.Kind(), res, res.Runtime)
	return res, nil
}

// AuthorizeStop asks every backend in turn until the stop policy is met.
func (d *Dispatcher) AuthorizeStop(ctx context.Context, req StopRequest) (result.AuthStop, error) {
	if req.AuthToken == "" {
		return result.AuthStop{}, ErrEmptyAuthToken
	}
	if req.SessionID.IsEmpty() {
		return result.AuthStop{}, ErrEmptySessionID
	}
	if req.EventTrackingID.IsEmpty() {
		req.EventTrackingID = ids.NewEventTrackingID()
	}
	target := req.Target.String()
	if target == "" {
		target = req.SessionID.String()
	}
	ctx, span, started := d.begin(ctx, events.OpAuthorizeStop, req.EventTrackingID, target, req)

	res := result.AuthStopFailed(result.AuthError, req.SessionID, "", result.NoPositiveResult)
scan:
	for _, tier := range d.tiers() {
		for _, b := range tier {
			r, err := b.AuthorizeStop(ctx, req)
			if err != nil {
				d.log.Warnw("backend stop authorization failed", map[string]any{
					"backend": b.ID(),
					"error":   err.Error(),
				})
				continue
			}
			if d.stopPolicy.stops(r.Type) {
				res = r
				break scan
			}
		}
	}
	if res.SessionID.IsEmpty() {
		res.SessionID = req.SessionID
	}
	res.Runtime = d.elapsed(started)

	d.end(ctx, span, events.OpAuthorizeStop, req.EventTrackingID, target, req, res.Kind(), res, res.Runtime)
	return res, nil
}

func (d *Dispatcher) begin(ctx context.Context, op events.Operation, tracking ids.EventTrackingID, target string, req any) (context.Context, trace.Span, time.Time) {
	ctx, span := d.tracer.Start(ctx, "authorization."+string(op), trace.WithAttributes(
		attribute.String("roaming.target", target),
		attribute.String("roaming.event_tracking_id", tracking.String()),
	))
	started := d.now()
	ev := events.Requested{
		Operation:       op,
		Level:           level,
		Node:            level,
		Timestamp:       started,
		EventTrackingID: tracking,
		Target:          target,
		Request:         req,
	}
	d.requested.Notify(ctx, string(op), ev)
	if d.bus != nil {
		d.bus.Publish(ev)
	}
	return ctx, span, started
}

func (d *Dispatcher) end(ctx context.Context, span trace.Span, op events.Operation, tracking ids.EventTrackingID, target string, req any, kind string, res any, runtime time.Duration) {
	coordinator.ObserveOperation(string(op), level, kind, runtime)
	span.SetAttributes(attribute.String("roaming.result", kind))
	span.End()
	ev := events.Completed{
		Operation:       op,
		Level:           level,
		Node:            level,
		Timestamp:       d.now(),
		EventTrackingID: tracking,
		Target:          target,
		Request:         req,
		ResultType:      kind,
		Result:          res,
		Runtime:         runtime,
	}
	d.completed.Notify(ctx, string(op), ev)
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

func (d *Dispatcher) elapsed(started time.Time) time.Duration {
	if r := d.now().Sub(started); r > 0 {
		return r
	}
	return 0
}
