package roaming

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/notify"
	"github.com/kilianp07/roaming/core/result"
)

// RoamingNetwork is the root of the infrastructure. It owns the operators,
// the local e-mobility providers and the roaming provider adapters, and is
// the entry point of every reservation, session and authorization request.
type RoamingNetwork struct {
	*coordinator.Coordinator
	id   string
	name string
	env  *env

	operators *children[ids.OperatorID, *EVSEOperator]
	providers *children[ids.ProviderID, *EVServiceProvider]
	roaming   *children[ids.RoamingProviderID, RoamingProvider]

	dataObs   *notify.Observers[events.DataChanged]
	statusObs *notify.Observers[events.StatusChanged]

	auth *authorization.Dispatcher
}

// New returns an empty network. Authorization options are applied after the
// network installs its own session hooks.
func New(id, name string, opts []NetworkOption, authOpts ...authorization.Option) *RoamingNetwork {
	e := newEnv(opts)
	n := &RoamingNetwork{
		id:        id,
		name:      name,
		env:       e,
		operators: newChildren[ids.OperatorID, *EVSEOperator]("evse operator", e.log),
		providers: newChildren[ids.ProviderID, *EVServiceProvider]("ev service provider", e.log),
		roaming:   newChildren[ids.RoamingProviderID, RoamingProvider]("roaming provider", e.log),
		dataObs:   notify.NewObservers[events.DataChanged](e.log),
		statusObs: notify.NewObservers[events.StatusChanged](e.log),
	}
	n.Coordinator = coordinator.New(model.KindNetwork.String(), id, n.resolve, n.owners, e.coordinatorOptions()...)

	base := []authorization.Option{
		authorization.WithLogger(e.log),
		authorization.WithBus(e.bus),
		authorization.WithClock(e.now),
		authorization.WithSessionRegistrar(n.registerAuthorizedSession),
		authorization.WithSessionEnder(n.EndSession),
	}
	if e.tracer != nil {
		base = append(base, authorization.WithTracer(e.tracer))
	}
	n.auth = authorization.New(n, append(base, authOpts...)...)
	return n
}

// ID returns the network identifier.
func (n *RoamingNetwork) ID() string { return n.id }

// Name returns the display name.
func (n *RoamingNetwork) Name() string { return n.name }

// Authorization returns the dispatcher used for authorizations and records.
func (n *RoamingNetwork) Authorization() *authorization.Dispatcher { return n.auth }

// OperatorLifecycle exposes the vetoable addition and removal of operators.
func (n *RoamingNetwork) OperatorLifecycle() *notify.Lifecycle[*EVSEOperator] {
	return n.operators.life
}

// OnDataChanged subscribes to every data change of the infrastructure.
func (n *RoamingNetwork) OnDataChanged(name string, fn notify.Observer[events.DataChanged]) func() {
	return n.dataObs.Subscribe(name, fn)
}

// OnStatusChanged subscribes to every status change of the infrastructure.
func (n *RoamingNetwork) OnStatusChanged(name string, fn notify.Observer[events.StatusChanged]) func() {
	return n.statusObs.Subscribe(name, fn)
}

// CreateNewEVSEOperator validates id, applies the configurators, proposes
// the operator to the lifecycle vetoes and commits it.
func (n *RoamingNetwork) CreateNewEVSEOperator(ctx context.Context, id ids.OperatorID, cfg ...OperatorConfigurator) (*EVSEOperator, error) {
	parsed, err := ids.ParseOperatorID(string(id))
	if err != nil {
		return nil, err
	}
	o := newEVSEOperator(parsed, n, n.env)
	for _, c := range cfg {
		c(o)
	}
	o.hookSchedules()
	if err := n.operators.add(ctx, parsed, o); err != nil {
		return nil, err
	}
	o.wireTo(n.id, n.dataChanged, n.statusChanged)
	n.operators.added(ctx, o)
	n.env.publish(events.EntityAdded{Kind: model.KindOperator, ID: string(parsed), ParentID: n.id})
	return o, nil
}

// RemoveEVSEOperator removes an operator unless a veto rejects it.
func (n *RoamingNetwork) RemoveEVSEOperator(ctx context.Context, id ids.OperatorID) (*EVSEOperator, error) {
	o, err := n.operators.remove(ctx, id)
	if err != nil {
		return nil, err
	}
	o.unwireAll()
	n.env.publish(events.EntityRemoved{Kind: model.KindOperator, ID: string(id), ParentID: n.id})
	return o, nil
}

// TryGetEVSEOperator returns the operator with the given id.
func (n *RoamingNetwork) TryGetEVSEOperator(id ids.OperatorID) (*EVSEOperator, bool) {
	return n.operators.get(id)
}

// EVSEOperators lists the operators ordered by id.
func (n *RoamingNetwork) EVSEOperators() []*EVSEOperator { return n.operators.sorted() }

// AllChargingPools lists the pools of every operator.
func (n *RoamingNetwork) AllChargingPools() []*ChargingPool {
	var out []*ChargingPool
	for _, o := range n.operators.sorted() {
		out = append(out, o.ChargingPools()...)
	}
	return out
}

// AllChargingStations lists the stations of every operator.
func (n *RoamingNetwork) AllChargingStations() []*ChargingStation {
	var out []*ChargingStation
	for _, o := range n.operators.sorted() {
		out = append(out, o.AllChargingStations()...)
	}
	return out
}

// AllEVSEs lists the EVSEs of every operator.
func (n *RoamingNetwork) AllEVSEs() []*EVSE {
	var out []*EVSE
	for _, o := range n.operators.sorted() {
		out = append(out, o.AllEVSEs()...)
	}
	return out
}

// EVSEStatuses returns the current status of every EVSE.
func (n *RoamingNetwork) EVSEStatuses() map[ids.EVSEID]model.Status {
	out := make(map[ids.EVSEID]model.Status)
	for _, e := range n.AllEVSEs() {
		out[e.id] = e.Status()
	}
	return out
}

// TryGetEVSE returns the EVSE with the given id.
func (n *RoamingNetwork) TryGetEVSE(id ids.EVSEID) (*EVSE, bool) {
	op, ok := id.OperatorID()
	if !ok {
		return nil, false
	}
	o, ok := n.operators.get(op)
	if !ok {
		return nil, false
	}
	return o.TryGetEVSE(id)
}

// TryGetChargingStation returns the station with the given id.
func (n *RoamingNetwork) TryGetChargingStation(id ids.ChargingStationID) (*ChargingStation, bool) {
	op, ok := id.OperatorID()
	if !ok {
		return nil, false
	}
	o, ok := n.operators.get(op)
	if !ok {
		return nil, false
	}
	return o.TryGetChargingStation(id)
}

// UpdateEVSEStatus records a status reported by a charger.
func (n *RoamingNetwork) UpdateEVSEStatus(id ids.EVSEID, st model.Status, ts time.Time) error {
	e, ok := n.TryGetEVSE(id)
	if !ok {
		return fmt.Errorf("%w: evse %s", ErrNotFound, id)
	}
	return e.SetStatus(st, ts)
}

// UpdateEVSEAdminStatus records an admin status set by the operator.
func (n *RoamingNetwork) UpdateEVSEAdminStatus(id ids.EVSEID, st model.AdminStatus, ts time.Time) error {
	e, ok := n.TryGetEVSE(id)
	if !ok {
		return fmt.Errorf("%w: evse %s", ErrNotFound, id)
	}
	return e.SetAdminStatus(st, ts)
}

func (n *RoamingNetwork) resolve(t coordinator.Target) (coordinator.Node, coordinator.Miss) {
	op, ok := t.OperatorID()
	if !ok {
		return nil, coordinator.MissOperator
	}
	o, ok := n.operators.get(op)
	if !ok {
		return nil, coordinator.MissOperator
	}
	if !o.contains(t) {
		return nil, coordinator.MissEntity
	}
	return o, coordinator.Found
}

func (n *RoamingNetwork) owners() []coordinator.Node {
	ops := n.operators.sorted()
	out := make([]coordinator.Node, len(ops))
	for i, o := range ops {
		out[i] = o
	}
	return out
}

// RemoteStart starts a session and lets the requesting local provider track
// it so its charge detail record can be accepted later.
func (n *RoamingNetwork) RemoteStart(ctx context.Context, req coordinator.RemoteStartRequest) (result.RemoteStart, error) {
	res, err := n.Coordinator.RemoteStart(ctx, req)
	if err != nil || !res.IsSuccess() || req.ProviderID == "" {
		return res, err
	}
	if p, ok := n.providers.get(req.ProviderID); ok {
		p.TrackSession(res.Session.ID, req.AuthToken)
	}
	return res, nil
}

// RemoteStop stops a session. A produced charge detail record is handed to
// the authorization dispatcher.
func (n *RoamingNetwork) RemoteStop(ctx context.Context, req coordinator.RemoteStopRequest) (result.RemoteStop, error) {
	res, err := n.Coordinator.RemoteStop(ctx, req)
	if err != nil || !res.IsSuccess() {
		return res, err
	}
	if req.Handling == model.ReservationClose && res.Session != nil && !res.Session.ReservationID.IsEmpty() {
		n.forgetReservation(res.Session.ReservationID)
	}
	if res.CDR == nil {
		return res, nil
	}
	if _, err := n.auth.SendChargeDetailRecord(ctx, *res.CDR); err != nil {
		n.env.log.Warnw("forwarding charge detail record failed", map[string]any{
			"session_id": res.SessionID.String(),
			"error":      err.Error(),
		})
	}
	return res, nil
}

// AuthorizeStart asks the providers whether a token may start charging.
func (n *RoamingNetwork) AuthorizeStart(ctx context.Context, req authorization.StartRequest) (result.AuthStart, error) {
	return n.auth.AuthorizeStart(ctx, req)
}

// AuthorizeStop asks the providers whether a token may stop a session.
func (n *RoamingNetwork) AuthorizeStop(ctx context.Context, req authorization.StopRequest) (result.AuthStop, error) {
	return n.auth.AuthorizeStop(ctx, req)
}

// SendChargeDetailRecord ends the session and forwards its record.
func (n *RoamingNetwork) SendChargeDetailRecord(ctx context.Context, cdr model.ChargeDetailRecord) (result.SendCDR, error) {
	return n.auth.SendChargeDetailRecord(ctx, cdr)
}

// ChargeDetailRecords lists the records received by the network.
func (n *RoamingNetwork) ChargeDetailRecords() []model.ChargeDetailRecord {
	return n.auth.ChargeDetailRecords()
}

// reservationRegistry is implemented by every coordinator level.
type reservationRegistry interface {
	ForgetReservation(id ids.ReservationID) (coordinator.Node, bool)
}

// forgetReservation drops a reservation consumed by a closed session from
// every level.
func (n *RoamingNetwork) forgetReservation(id ids.ReservationID) {
	var reg reservationRegistry = n
	for reg != nil {
		owner, ok := reg.ForgetReservation(id)
		if !ok {
			return
		}
		reg, _ = owner.(reservationRegistry)
	}
}

// sessionRegistry is implemented by every coordinator level.
type sessionRegistry interface {
	RegisterSession(owner coordinator.Node, s model.ChargingSession) error
	UnregisterSession(id ids.SessionID) (coordinator.Node, bool)
}

// sessionLink pairs a registry with the child owning the session there.
type sessionLink struct {
	reg   sessionRegistry
	owner coordinator.Node
}

// RegisterExternalSession records a session started at the charger, for
// example after a local authorization. A session naming an EVSE binds it
// without a status notification. Otherwise the session is registered down
// to the deepest station, pool or operator it names.
func (n *RoamingNetwork) RegisterExternalSession(_ context.Context, s model.ChargingSession) error {
	if s.ID.IsEmpty() {
		return coordinator.ErrEmptySessionID
	}
	var e *EVSE
	if s.EVSEID != "" {
		var ok bool
		if e, ok = n.TryGetEVSE(s.EVSEID); !ok {
			return fmt.Errorf("%w: evse %s", ErrNotFound, s.EVSEID)
		}
	}
	if _, exists := n.TryGetSession(s.ID); exists {
		return fmt.Errorf("%w: session %s", ErrAlreadyExists, s.ID)
	}

	var (
		op      *EVSEOperator
		pool    *ChargingPool
		station *ChargingStation
	)
	if e != nil {
		if err := e.bindSessionWithoutStatusNotification(s); err != nil {
			return err
		}
		s, _ = e.Session()
		station = e.station
		pool = station.pool
		op = pool.operator
	} else {
		var err error
		if op, pool, station, err = n.sessionOwners(s); err != nil {
			return err
		}
		s.OperatorID = op.id
		if pool != nil {
			s.PoolID = pool.id
		}
	}

	chain := []sessionLink{{n, op}}
	if pool != nil {
		chain = append(chain, sessionLink{op, pool})
	}
	if station != nil {
		chain = append(chain, sessionLink{pool, station})
	}
	for _, c := range chain {
		if err := c.reg.RegisterSession(c.owner, s); err != nil {
			n.env.log.Warnw("session already registered", map[string]any{
				"session_id": s.ID.String(),
				"owner":      c.owner.NodeID(),
			})
		}
	}
	return nil
}

// sessionOwners resolves the deepest entity named by a session without an
// EVSE. The station wins over the pool and the pool over the operator.
func (n *RoamingNetwork) sessionOwners(s model.ChargingSession) (*EVSEOperator, *ChargingPool, *ChargingStation, error) {
	switch {
	case s.StationID != "":
		st, ok := n.TryGetChargingStation(s.StationID)
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: charging station %s", ErrNotFound, s.StationID)
		}
		return st.pool.operator, st.pool, st, nil
	case s.PoolID != "":
		opID, _ := s.PoolID.OperatorID()
		if o, ok := n.operators.get(opID); ok {
			if p, ok := o.TryGetChargingPool(s.PoolID); ok {
				return o, p, nil, nil
			}
		}
		return nil, nil, nil, fmt.Errorf("%w: charging pool %s", ErrNotFound, s.PoolID)
	case s.OperatorID != "":
		o, ok := n.operators.get(s.OperatorID)
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: operator %s", ErrNotFound, s.OperatorID)
		}
		return o, nil, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("%w: session %s names no entity", ErrNotFound, s.ID)
	}
}

func (n *RoamingNetwork) registerAuthorizedSession(ctx context.Context, evse ids.EVSEID, req authorization.StartRequest, res result.AuthStart) error {
	return n.RegisterExternalSession(ctx, model.ChargingSession{
		ID:                res.SessionID,
		EVSEID:            evse,
		ProviderID:        res.ProviderID,
		RoamingProviderID: res.RoamingProviderID,
		AuthToken:         req.AuthToken,
		StartTime:         n.env.now(),
	})
}

// EndSession releases the EVSE bound to the record's session and drops the
// session from every level. The reservation the session used is forgotten
// as well. Sessions already gone are ignored.
func (n *RoamingNetwork) EndSession(_ context.Context, cdr model.ChargeDetailRecord) error {
	evses := n.AllEVSEs()
	if e, ok := n.TryGetEVSE(cdr.EVSEID); ok {
		evses = []*EVSE{e}
	}
	var (
		reservation ids.ReservationID
		ended       bool
	)
	for _, e := range evses {
		if reservation, ended = e.endSession(cdr.SessionID); ended {
			now := n.env.now()
			e.station.held.release(cdr.SessionID, false, now)
			e.station.pool.held.release(cdr.SessionID, false, now)
			break
		}
	}

	registered := false
	var reg sessionRegistry = n
	for reg != nil {
		owner, ok := reg.UnregisterSession(cdr.SessionID)
		if !ok {
			break
		}
		registered = true
		reg, _ = owner.(sessionRegistry)
	}

	if !ended && !registered {
		return nil
	}
	if reservation.IsEmpty() {
		reservation = cdr.ReservationID
	}
	if !reservation.IsEmpty() {
		n.forgetReservation(reservation)
	}
	return nil
}

func (n *RoamingNetwork) dataChanged(ctx context.Context, ev events.DataChanged) error {
	n.dataObs.Notify(ctx, opDataChanged, ev)
	n.env.publish(ev)
	for _, rp := range n.cpoAdapters() {
		if err := rp.EnqueueDataChange(ctx, ev); err != nil {
			n.env.log.Warnw("roaming provider rejected data change", map[string]any{
				"roaming_provider": rp.ID(),
				"entity":           ev.ID,
				"property":         ev.Property,
				"error":            err.Error(),
			})
		}
	}
	return nil
}

func (n *RoamingNetwork) statusChanged(ctx context.Context, ev events.StatusChanged) error {
	n.statusObs.Notify(ctx, opStatusChanged, ev)
	n.env.publish(ev)
	for _, rp := range n.cpoAdapters() {
		if err := rp.EnqueueStatusChange(ctx, ev); err != nil {
			n.env.log.Warnw("roaming provider rejected status change", map[string]any{
				"roaming_provider": rp.ID(),
				"entity":           ev.ID,
				"status":           ev.NewStatus,
				"error":            err.Error(),
			})
		}
	}
	return nil
}
