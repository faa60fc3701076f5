package roaming

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/notify"
	"github.com/kilianp07/roaming/core/result"
)

// ChargingStation groups EVSEs sharing one location and one controller.
type ChargingStation struct {
	*entityBase
	id   ids.ChargingStationID
	pool *ChargingPool

	mu      sync.RWMutex
	name    string
	address string

	evses *children[ids.EVSEID, *EVSE]
	held  heldReservations
}

// StationConfigurator adjusts a new station before it is proposed.
type StationConfigurator func(*ChargingStation)

// WithStationName sets the display name.
func WithStationName(n string) StationConfigurator { return func(s *ChargingStation) { s.name = n } }

// WithStationAddress sets the postal address.
func WithStationAddress(a string) StationConfigurator {
	return func(s *ChargingStation) { s.address = a }
}

// WithStationAdminStatus sets the initial admin status.
func WithStationAdminStatus(st model.AdminStatus) StationConfigurator {
	return func(s *ChargingStation) { s.resetAdminStatus(st) }
}

func newChargingStation(id ids.ChargingStationID, pool *ChargingPool, e *env) *ChargingStation {
	return &ChargingStation{
		entityBase: newEntityBase(model.KindChargingStation, string(id), e, model.StatusUnknown),
		id:         id,
		pool:       pool,
		evses:      newChildren[ids.EVSEID, *EVSE]("evse", e.log),
		held:       newHeldReservations(),
	}
}

// ID returns the station identifier.
func (s *ChargingStation) ID() ids.ChargingStationID { return s.id }

// NodeID identifies the station in coordinator registries.
func (s *ChargingStation) NodeID() string { return string(s.id) }

// Pool returns the owning pool.
func (s *ChargingStation) Pool() *ChargingPool { return s.pool }

// OperatorID returns the operator embedded in the station id.
func (s *ChargingStation) OperatorID() ids.OperatorID {
	op, _ := s.id.OperatorID()
	return op
}

// Name returns the display name.
func (s *ChargingStation) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// SetName updates the name and notifies data subscribers.
func (s *ChargingStation) SetName(ctx context.Context, n string) {
	s.mu.Lock()
	old := s.name
	s.name = n
	s.mu.Unlock()
	s.changeData(ctx, "name", old, n)
}

// Address returns the postal address.
func (s *ChargingStation) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// SetAddress updates the address and notifies data subscribers.
func (s *ChargingStation) SetAddress(ctx context.Context, a string) {
	s.mu.Lock()
	old := s.address
	s.address = a
	s.mu.Unlock()
	s.changeData(ctx, "address", old, a)
}

// EVSELifecycle exposes the vetoable addition and removal of EVSEs.
func (s *ChargingStation) EVSELifecycle() *notify.Lifecycle[*EVSE] { return s.evses.life }

// CreateNewEVSE validates id, applies the configurators, proposes the EVSE
// to the lifecycle vetoes and commits it.
func (s *ChargingStation) CreateNewEVSE(ctx context.Context, id ids.EVSEID, cfg ...EVSEConfigurator) (*EVSE, error) {
	parsed, err := ids.ParseEVSEID(string(id))
	if err != nil {
		return nil, err
	}
	if op, _ := parsed.OperatorID(); op != s.OperatorID() {
		return nil, fmt.Errorf("%w: evse %s in station %s", ErrOperatorMismatch, parsed, s.id)
	}
	e := newEVSE(parsed, s, s.env)
	for _, c := range cfg {
		c(e)
	}
	e.hookSchedules()
	if err := s.evses.add(ctx, parsed, e); err != nil {
		return nil, err
	}
	e.wireTo(string(s.id), s.forwardData, s.childStatusChanged)
	s.evses.added(ctx, e)
	s.env.publish(events.EntityAdded{Kind: model.KindEVSE, ID: string(parsed), ParentID: string(s.id)})
	s.recomputeStatus()
	return e, nil
}

// RemoveEVSE removes an EVSE unless a veto rejects it.
func (s *ChargingStation) RemoveEVSE(ctx context.Context, id ids.EVSEID) (*EVSE, error) {
	e, err := s.evses.remove(ctx, id)
	if err != nil {
		return nil, err
	}
	e.unwireAll()
	s.env.publish(events.EntityRemoved{Kind: model.KindEVSE, ID: string(id), ParentID: string(s.id)})
	s.recomputeStatus()
	return e, nil
}

// TryGetEVSE returns the EVSE with the given id.
func (s *ChargingStation) TryGetEVSE(id ids.EVSEID) (*EVSE, bool) { return s.evses.get(id) }

// EVSEs lists the EVSEs ordered by id.
func (s *ChargingStation) EVSEs() []*EVSE { return s.evses.sorted() }

// HeldReservations lists the station level reservations.
func (s *ChargingStation) HeldReservations() []model.Reservation { return s.held.list() }

func (s *ChargingStation) childStatusChanged(ctx context.Context, ev events.StatusChanged) error {
	s.statusObs.Notify(ctx, opStatusChanged, ev)
	if ev.Kind == model.KindEVSE && !ev.Admin {
		s.recomputeStatus()
	}
	return nil
}

func (s *ChargingStation) recomputeStatus() {
	snapshot := make(map[string]model.Status, s.evses.len())
	for _, e := range s.evses.sorted() {
		snapshot[string(e.id)] = e.Status()
	}
	s.recompute(s.env.aggregators.Station, snapshot)
}

func (s *ChargingStation) usable() bool { return s.AdminStatus().Usable() }

// Reserve reserves one of the station's EVSEs or, for station targets, any
// EVSE of the station without binding it.
func (s *ChargingStation) Reserve(ctx context.Context, req coordinator.ReserveRequest) (result.Reservation, error) {
	now := s.env.now()
	req = coordinator.NormalizeReserve(req, now, s.env.maxDuration)
	if !s.usable() {
		return result.ReservationFailed(result.ReservationOutOfService, "charging station out of service"), nil
	}
	switch req.Target.Level {
	case model.LevelEVSE:
		e, ok := s.evses.get(ids.EVSEID(req.Target.ID))
		if !ok {
			return result.ReservationFailed(result.ReservationUnknownEVSE, "unknown evse "+req.Target.ID), nil
		}
		free, _ := availability(s.evses.sorted(), now)
		if s.held.blocks(req.ReservationID, free, now) {
			return result.ReservationFailed(result.ReservationReserved, "charging station reserved"), nil
		}
		return e.Reserve(ctx, req)
	case model.LevelChargingStation:
		if req.Target.ID != string(s.id) {
			return result.ReservationFailed(result.ReservationUnknownStation, "unknown charging station "+req.Target.ID), nil
		}
		free, unavailable := availability(s.evses.sorted(), now)
		base := model.Reservation{
			Level:      model.LevelChargingStation,
			OperatorID: s.OperatorID(),
			StationID:  s.id,
		}
		if s.pool != nil {
			base.PoolID = s.pool.id
		}
		return s.held.reserve(req, now, free, unavailable, base), nil
	default:
		return result.ReservationFailed(result.ReservationUnknownPool, "charging station cannot serve "+req.Target.String()), nil
	}
}

// CancelReservation releases a station level reservation or the EVSE
// reservation with the given id.
func (s *ChargingStation) CancelReservation(ctx context.Context, req coordinator.CancelReservationRequest) (result.CancelReservation, error) {
	if s.held.remove(req.ReservationID) {
		return result.CancelOK(req.ReservationID, req.Reason), nil
	}
	for _, e := range s.evses.sorted() {
		if e.holdsReservation(req.ReservationID) {
			return e.CancelReservation(ctx, req)
		}
	}
	return result.CancelFailed(result.CancelUnknownReservation, req.ReservationID, "unknown reservation"), nil
}

// RemoteStart starts a session on the targeted EVSE or, for station targets,
// on the first EVSE by id able to start.
func (s *ChargingStation) RemoteStart(ctx context.Context, req coordinator.RemoteStartRequest) (result.RemoteStart, error) {
	now := s.env.now()
	if !s.usable() {
		return result.StartFailed(result.StartOutOfService, "charging station out of service"), nil
	}
	evses := s.evses.sorted()
	consumed, took := s.held.take(req.ReservationID, now)
	if !took {
		free, _ := availability(evses, now)
		if s.held.blocks(req.ReservationID, free, now) {
			return result.StartFailed(result.StartReserved, "charging station reserved"), nil
		}
	}

	res := s.startOn(ctx, evses, req, now)
	if took {
		if res.IsSuccess() {
			s.held.use(res.Session.ID, consumed)
		} else {
			s.held.put(consumed)
		}
	}
	return res, nil
}

func (s *ChargingStation) startOn(ctx context.Context, evses []*EVSE, req coordinator.RemoteStartRequest, now time.Time) result.RemoteStart {
	switch req.Target.Level {
	case model.LevelEVSE:
		e, ok := s.evses.get(ids.EVSEID(req.Target.ID))
		if !ok {
			return result.StartFailed(result.StartUnknownEVSE, "unknown evse "+req.Target.ID)
		}
		res, err := e.RemoteStart(ctx, req)
		if err != nil {
			return result.StartFailed(result.StartError, err.Error())
		}
		return res
	case model.LevelChargingStation:
		if req.Target.ID != string(s.id) {
			return result.StartFailed(result.StartUnknownStation, "unknown charging station "+req.Target.ID)
		}
		return startFirstAvailable(ctx, evses, req, now)
	default:
		return result.StartFailed(result.StartUnknownPool, "charging station cannot serve "+req.Target.String())
	}
}

// RemoteStop stops the session running on one of the station's EVSEs.
func (s *ChargingStation) RemoteStop(ctx context.Context, req coordinator.RemoteStopRequest) (result.RemoteStop, error) {
	for _, e := range s.evses.sorted() {
		if e.hasSession(req.SessionID) {
			res, err := e.RemoteStop(ctx, req)
			if err == nil && res.IsSuccess() {
				s.held.release(req.SessionID, req.Handling == model.ReservationKeepAlive, s.env.now())
			}
			return res, err
		}
	}
	return result.StopFailed(result.StopInvalidSessionID, req.SessionID, "unknown session"), nil
}
