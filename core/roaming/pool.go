package roaming

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/notify"
	"github.com/kilianp07/roaming/core/result"
)

// ChargingPool groups the stations of one site. It routes requests to its
// stations and holds pool level reservations itself.
type ChargingPool struct {
	*coordinator.Coordinator
	*entityBase
	id       ids.ChargingPoolID
	operator *EVSEOperator

	mu      sync.RWMutex
	name    string
	address string

	stations *children[ids.ChargingStationID, *ChargingStation]
	held     heldReservations
}

// PoolConfigurator adjusts a new pool before it is proposed.
type PoolConfigurator func(*ChargingPool)

// WithPoolName sets the display name.
func WithPoolName(n string) PoolConfigurator { return func(p *ChargingPool) { p.name = n } }

// WithPoolAddress sets the postal address.
func WithPoolAddress(a string) PoolConfigurator { return func(p *ChargingPool) { p.address = a } }

// WithPoolAdminStatus sets the initial admin status.
func WithPoolAdminStatus(st model.AdminStatus) PoolConfigurator {
	return func(p *ChargingPool) { p.resetAdminStatus(st) }
}

func newChargingPool(id ids.ChargingPoolID, op *EVSEOperator, e *env) *ChargingPool {
	p := &ChargingPool{
		entityBase: newEntityBase(model.KindChargingPool, string(id), e, model.StatusUnknown),
		id:         id,
		operator:   op,
		stations:   newChildren[ids.ChargingStationID, *ChargingStation]("charging station", e.log),
		held:       newHeldReservations(),
	}
	p.Coordinator = coordinator.New(model.KindChargingPool.String(), string(id), p.resolve, p.owners, e.coordinatorOptions()...)
	return p
}

// ID returns the pool identifier.
func (p *ChargingPool) ID() ids.ChargingPoolID { return p.id }

// Operator returns the owning operator.
func (p *ChargingPool) Operator() *EVSEOperator { return p.operator }

// OperatorID returns the operator embedded in the pool id.
func (p *ChargingPool) OperatorID() ids.OperatorID {
	op, _ := p.id.OperatorID()
	return op
}

// Name returns the display name.
func (p *ChargingPool) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// SetName updates the name and notifies data subscribers.
func (p *ChargingPool) SetName(ctx context.Context, n string) {
	p.mu.Lock()
	old := p.name
	p.name = n
	p.mu.Unlock()
	p.changeData(ctx, "name", old, n)
}

// Address returns the postal address.
func (p *ChargingPool) Address() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.address
}

// SetAddress updates the address and notifies data subscribers.
func (p *ChargingPool) SetAddress(ctx context.Context, a string) {
	p.mu.Lock()
	old := p.address
	p.address = a
	p.mu.Unlock()
	p.changeData(ctx, "address", old, a)
}

// StationLifecycle exposes the vetoable addition and removal of stations.
func (p *ChargingPool) StationLifecycle() *notify.Lifecycle[*ChargingStation] {
	return p.stations.life
}

// CreateNewChargingStation validates id, applies the configurators,
// proposes the station to the lifecycle vetoes and commits it.
func (p *ChargingPool) CreateNewChargingStation(ctx context.Context, id ids.ChargingStationID, cfg ...StationConfigurator) (*ChargingStation, error) {
	parsed, err := ids.ParseChargingStationID(string(id))
	if err != nil {
		return nil, err
	}
	if op, _ := parsed.OperatorID(); op != p.OperatorID() {
		return nil, fmt.Errorf("%w: charging station %s in pool %s", ErrOperatorMismatch, parsed, p.id)
	}
	s := newChargingStation(parsed, p, p.env)
	for _, c := range cfg {
		c(s)
	}
	s.hookSchedules()
	if err := p.stations.add(ctx, parsed, s); err != nil {
		return nil, err
	}
	s.wireTo(string(p.id), p.forwardData, p.childStatusChanged)
	p.stations.added(ctx, s)
	p.env.publish(events.EntityAdded{Kind: model.KindChargingStation, ID: string(parsed), ParentID: string(p.id)})
	p.recomputeStatus()
	return s, nil
}

// RemoveChargingStation removes a station unless a veto rejects it.
func (p *ChargingPool) RemoveChargingStation(ctx context.Context, id ids.ChargingStationID) (*ChargingStation, error) {
	s, err := p.stations.remove(ctx, id)
	if err != nil {
		return nil, err
	}
	s.unwireAll()
	p.env.publish(events.EntityRemoved{Kind: model.KindChargingStation, ID: string(id), ParentID: string(p.id)})
	p.recomputeStatus()
	return s, nil
}

// TryGetChargingStation returns the station with the given id.
func (p *ChargingPool) TryGetChargingStation(id ids.ChargingStationID) (*ChargingStation, bool) {
	return p.stations.get(id)
}

// ChargingStations lists the stations ordered by id.
func (p *ChargingPool) ChargingStations() []*ChargingStation { return p.stations.sorted() }

// AllEVSEs lists the EVSEs of every station ordered by EVSE id.
func (p *ChargingPool) AllEVSEs() []*EVSE {
	var out []*EVSE
	for _, s := range p.stations.sorted() {
		out = append(out, s.EVSEs()...)
	}
	slices.SortFunc(out, func(a, b *EVSE) int { return strings.Compare(string(a.id), string(b.id)) })
	return out
}

// TryGetEVSE returns the EVSE with the given id.
func (p *ChargingPool) TryGetEVSE(id ids.EVSEID) (*EVSE, bool) {
	if s, ok := p.stationOfEVSE(id); ok {
		return s.TryGetEVSE(id)
	}
	return nil, false
}

// HeldReservations lists the pool level reservations.
func (p *ChargingPool) HeldReservations() []model.Reservation { return p.held.list() }

func (p *ChargingPool) stationOfEVSE(id ids.EVSEID) (*ChargingStation, bool) {
	for _, s := range p.stations.sorted() {
		if s.evses.has(id) {
			return s, true
		}
	}
	return nil, false
}

func (p *ChargingPool) resolve(t coordinator.Target) (coordinator.Node, coordinator.Miss) {
	switch t.Level {
	case model.LevelEVSE:
		if s, ok := p.stationOfEVSE(ids.EVSEID(t.ID)); ok {
			return s, coordinator.Found
		}
	case model.LevelChargingStation:
		if s, ok := p.stations.get(ids.ChargingStationID(t.ID)); ok {
			return s, coordinator.Found
		}
	}
	return nil, coordinator.MissEntity
}

func (p *ChargingPool) owners() []coordinator.Node {
	stations := p.stations.sorted()
	out := make([]coordinator.Node, len(stations))
	for i, s := range stations {
		out[i] = s
	}
	return out
}

func (p *ChargingPool) childStatusChanged(ctx context.Context, ev events.StatusChanged) error {
	p.statusObs.Notify(ctx, opStatusChanged, ev)
	if ev.Kind == model.KindChargingStation && !ev.Admin {
		p.recomputeStatus()
	}
	return nil
}

func (p *ChargingPool) recomputeStatus() {
	snapshot := make(map[string]model.Status, p.stations.len())
	for _, s := range p.stations.sorted() {
		snapshot[string(s.id)] = s.Status()
	}
	p.recompute(p.env.aggregators.Pool, snapshot)
}

func (p *ChargingPool) usable() bool { return p.AdminStatus().Usable() }

// Reserve holds pool level reservations itself and routes every other
// target to the owning station.
func (p *ChargingPool) Reserve(ctx context.Context, req coordinator.ReserveRequest) (result.Reservation, error) {
	if req.Duration < 0 {
		return result.Reservation{}, coordinator.ErrNegativeDuration
	}
	now := p.env.now()
	if !p.usable() {
		return result.ReservationFailed(result.ReservationOutOfService, "charging pool out of service"), nil
	}
	if req.Target.Level != model.LevelChargingPool {
		free, _ := availability(p.AllEVSEs(), now)
		if p.held.blocks(req.ReservationID, free, now) {
			return result.ReservationFailed(result.ReservationReserved, "charging pool reserved"), nil
		}
		return p.Coordinator.Reserve(ctx, req)
	}
	if req.Target.ID != string(p.id) {
		return result.ReservationFailed(result.ReservationUnknownPool, "unknown charging pool "+req.Target.ID), nil
	}
	req = coordinator.NormalizeReserve(req, now, p.env.maxDuration)
	free, unavailable := availability(p.AllEVSEs(), now)
	base := model.Reservation{
		Level:      model.LevelChargingPool,
		OperatorID: p.OperatorID(),
		PoolID:     p.id,
	}
	return p.held.reserve(req, now, free, unavailable, base), nil
}

// CancelReservation releases a pool level reservation or routes the
// cancellation to the stations.
func (p *ChargingPool) CancelReservation(ctx context.Context, req coordinator.CancelReservationRequest) (result.CancelReservation, error) {
	if p.held.remove(req.ReservationID) {
		return result.CancelOK(req.ReservationID, req.Reason), nil
	}
	return p.Coordinator.CancelReservation(ctx, req)
}

// RemoteStart starts on the targeted EVSE or station, or for pool targets on
// the first EVSE by id able to start.
func (p *ChargingPool) RemoteStart(ctx context.Context, req coordinator.RemoteStartRequest) (result.RemoteStart, error) {
	now := p.env.now()
	if !p.usable() {
		return result.StartFailed(result.StartOutOfService, "charging pool out of service"), nil
	}
	consumed, took := p.held.take(req.ReservationID, now)
	if !took {
		free, _ := availability(p.AllEVSEs(), now)
		if p.held.blocks(req.ReservationID, free, now) {
			return result.StartFailed(result.StartReserved, "charging pool reserved"), nil
		}
	}

	var (
		res result.RemoteStart
		err error
	)
	switch {
	case req.Target.Level != model.LevelChargingPool:
		res, err = p.Coordinator.RemoteStart(ctx, req)
	case req.Target.ID != string(p.id):
		res = result.StartFailed(result.StartUnknownPool, "unknown charging pool "+req.Target.ID)
	default:
		res = p.startFirstAvailable(ctx, req, now)
	}
	if took {
		if err != nil || !res.IsSuccess() {
			p.held.put(consumed)
		} else {
			p.held.use(res.Session.ID, consumed)
		}
	}
	return res, err
}

// RemoteStop routes the stop to the owning station. A pool reservation used
// by the session is held again when the stop keeps reservations alive.
func (p *ChargingPool) RemoteStop(ctx context.Context, req coordinator.RemoteStopRequest) (result.RemoteStop, error) {
	res, err := p.Coordinator.RemoteStop(ctx, req)
	if err == nil && res.IsSuccess() {
		p.held.release(req.SessionID, req.Handling == model.ReservationKeepAlive, p.env.now())
	}
	return res, err
}

func (p *ChargingPool) startFirstAvailable(ctx context.Context, req coordinator.RemoteStartRequest, now time.Time) result.RemoteStart {
	evses := p.AllEVSEs()
	for _, e := range evses {
		if e.startable(req, now) != result.StartSuccess {
			continue
		}
		r := req
		r.Target = coordinator.EVSE(e.id)
		res, err := p.Coordinator.RemoteStart(ctx, r)
		if err == nil && res.IsSuccess() {
			return res
		}
	}
	_, unavailable := availability(evses, now)
	return result.StartFailed(startFailure(unavailable), "no evse available")
}
