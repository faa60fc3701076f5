package roaming

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
)

// EVSE is one charging point. It is the only entity holding EVSE level
// reservations and charging sessions.
type EVSE struct {
	*entityBase
	id      ids.EVSEID
	station *ChargingStation

	mu          sync.RWMutex
	description string
	maxPowerKW  float64
	meterKWh    float64
	reservation *model.Reservation
	session     *model.ChargingSession
}

// EVSEConfigurator adjusts a new EVSE before it is proposed.
type EVSEConfigurator func(*EVSE)

// WithEVSEDescription sets the description.
func WithEVSEDescription(d string) EVSEConfigurator { return func(e *EVSE) { e.description = d } }

// WithMaxPowerKW sets the maximum charging power.
func WithMaxPowerKW(kw float64) EVSEConfigurator { return func(e *EVSE) { e.maxPowerKW = kw } }

// WithEVSEStatus sets the initial status.
func WithEVSEStatus(st model.Status) EVSEConfigurator { return func(e *EVSE) { e.resetStatus(st) } }

// WithEVSEAdminStatus sets the initial admin status.
func WithEVSEAdminStatus(st model.AdminStatus) EVSEConfigurator {
	return func(e *EVSE) { e.resetAdminStatus(st) }
}

func newEVSE(id ids.EVSEID, station *ChargingStation, e *env) *EVSE {
	return &EVSE{
		entityBase: newEntityBase(model.KindEVSE, string(id), e, model.StatusAvailable),
		id:         id,
		station:    station,
	}
}

// ID returns the EVSE identifier.
func (e *EVSE) ID() ids.EVSEID { return e.id }

// Station returns the owning station.
func (e *EVSE) Station() *ChargingStation { return e.station }

// OperatorID returns the operator embedded in the EVSE id.
func (e *EVSE) OperatorID() ids.OperatorID {
	op, _ := e.id.OperatorID()
	return op
}

// Description returns the free text description.
func (e *EVSE) Description() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.description
}

// SetDescription updates the description and notifies data subscribers.
func (e *EVSE) SetDescription(ctx context.Context, d string) {
	e.mu.Lock()
	old := e.description
	e.description = d
	e.mu.Unlock()
	e.changeData(ctx, "description", old, d)
}

// MaxPowerKW returns the maximum charging power.
func (e *EVSE) MaxPowerKW() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxPowerKW
}

// SetMaxPowerKW updates the maximum power and notifies data subscribers.
func (e *EVSE) SetMaxPowerKW(ctx context.Context, kw float64) {
	e.mu.Lock()
	old := e.maxPowerKW
	e.maxPowerKW = kw
	e.mu.Unlock()
	e.changeData(ctx, "max_power_kw", old, kw)
}

// MeterKWh returns the last energy meter reading.
func (e *EVSE) MeterKWh() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.meterKWh
}

// SetMeterKWh records an energy meter reading. Readings never go backwards.
func (e *EVSE) SetMeterKWh(kwh float64) {
	e.mu.Lock()
	if kwh > e.meterKWh {
		e.meterKWh = kwh
	}
	e.mu.Unlock()
}

// Reservation returns the reservation bound to the EVSE.
func (e *EVSE) Reservation() (model.Reservation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.reservation == nil {
		return model.Reservation{}, false
	}
	return *e.reservation, true
}

// Session returns the active charging session.
func (e *EVSE) Session() (model.ChargingSession, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return model.ChargingSession{}, false
	}
	return *e.session, true
}

func (e *EVSE) hasSession(id ids.SessionID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session != nil && e.session.ID == id
}

func (e *EVSE) holdsReservation(id ids.ReservationID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reservation != nil && e.reservation.ID == id
}

// releaseExpired drops an ended reservation that no session uses.
func (e *EVSE) releaseExpired(now time.Time) {
	e.mu.Lock()
	expired := e.reservation != nil && e.session == nil && e.reservation.IsExpired(now)
	if expired {
		e.reservation = nil
	}
	e.mu.Unlock()
	if expired {
		e.setStatusNow(model.StatusAvailable)
	}
}

// serviceable reports the status based refusal, if any.
func (e *EVSE) serviceable() result.RemoteStartType {
	if !e.AdminStatus().Usable() {
		return result.StartOutOfService
	}
	switch e.Status() {
	case model.StatusOffline:
		return result.StartOffline
	case model.StatusOutOfService:
		return result.StartOutOfService
	}
	return result.StartSuccess
}

// startable reports whether req could start a session now.
func (e *EVSE) startable(req coordinator.RemoteStartRequest, now time.Time) result.RemoteStartType {
	if t := e.serviceable(); t != result.StartSuccess {
		return t
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startableLocked(req, now)
}

func (e *EVSE) startableLocked(req coordinator.RemoteStartRequest, now time.Time) result.RemoteStartType {
	if e.session != nil {
		return result.StartAlreadyInUse
	}
	if r := e.reservation; r != nil && !r.IsExpired(now) {
		switch {
		case req.ReservationID == r.ID:
		case req.ReservationID.IsEmpty() && req.AuthToken != "" && len(r.AuthTokens) > 0 && r.Allows(req.AuthToken):
		default:
			return result.StartReserved
		}
	}
	return result.StartSuccess
}

// Reserve reserves the EVSE or renews its reservation when the request
// carries the current reservation id.
func (e *EVSE) Reserve(_ context.Context, req coordinator.ReserveRequest) (result.Reservation, error) {
	if req.Duration < 0 {
		return result.Reservation{}, coordinator.ErrNegativeDuration
	}
	now := e.env.now()
	req = coordinator.NormalizeReserve(req, now, e.env.maxDuration)
	e.releaseExpired(now)

	switch e.serviceable() {
	case result.StartOffline:
		return result.ReservationFailed(result.ReservationOffline, "evse offline"), nil
	case result.StartOutOfService:
		return result.ReservationFailed(result.ReservationOutOfService, "evse out of service"), nil
	}

	e.mu.Lock()
	if e.session != nil {
		e.mu.Unlock()
		return result.ReservationFailed(result.ReservationAlreadyInUse, "evse in use"), nil
	}
	created := now
	if cur := e.reservation; cur != nil {
		if cur.ID != req.ReservationID {
			e.mu.Unlock()
			return result.ReservationFailed(result.ReservationReserved, "evse reserved"), nil
		}
		created = cur.CreatedAt
	}
	r := model.Reservation{
		ID:         req.ReservationID,
		Level:      model.LevelEVSE,
		OperatorID: e.OperatorID(),
		EVSEID:     e.id,
		StartTime:  req.StartTime,
		Duration:   req.Duration,
		ProviderID: req.ProviderID,
		AccountID:  req.AccountID,
		ProductID:  req.ProductID,
		AuthTokens: req.AuthTokens,
		PINs:       req.PINs,
		CreatedAt:  created,
	}
	if e.station != nil {
		r.StationID = e.station.id
		if e.station.pool != nil {
			r.PoolID = e.station.pool.id
		}
	}
	if r.ID.IsEmpty() {
		r.ID = ids.NewReservationID()
	}
	e.reservation = &r
	e.mu.Unlock()

	e.setStatusNow(model.StatusReserved)
	return result.ReservationOK(r), nil
}

// CancelReservation releases the reservation with the given id.
func (e *EVSE) CancelReservation(_ context.Context, req coordinator.CancelReservationRequest) (result.CancelReservation, error) {
	if req.ReservationID.IsEmpty() {
		return result.CancelReservation{}, coordinator.ErrEmptyReservationID
	}
	e.mu.Lock()
	if e.reservation == nil || e.reservation.ID != req.ReservationID {
		e.mu.Unlock()
		return result.CancelFailed(result.CancelUnknownReservation, req.ReservationID, "unknown reservation"), nil
	}
	if e.Status() == model.StatusOffline && req.Reason != model.CancelExpired {
		e.mu.Unlock()
		return result.CancelFailed(result.CancelOffline, req.ReservationID, "evse offline"), nil
	}
	e.reservation = nil
	charging := e.session != nil
	e.mu.Unlock()

	if !charging {
		e.setStatusNow(model.StatusAvailable)
	}
	return result.CancelOK(req.ReservationID, req.Reason), nil
}

// RemoteStart starts a session on the EVSE.
func (e *EVSE) RemoteStart(_ context.Context, req coordinator.RemoteStartRequest) (result.RemoteStart, error) {
	now := e.env.now()
	e.releaseExpired(now)
	if t := e.serviceable(); t != result.StartSuccess {
		return result.StartFailed(t, "evse "+t.String()), nil
	}

	e.mu.Lock()
	if t := e.startableLocked(req, now); t != result.StartSuccess {
		e.mu.Unlock()
		return result.StartFailed(t, "evse "+t.String()), nil
	}
	s := model.ChargingSession{
		ID:            req.SessionID,
		OperatorID:    e.OperatorID(),
		EVSEID:        e.id,
		ReservationID: req.ReservationID,
		ProviderID:    req.ProviderID,
		AuthToken:     req.AuthToken,
		AccountID:     req.AccountID,
		ProductID:     req.ProductID,
		StartTime:     now,
		MeterStartKWh: e.meterKWh,
	}
	if s.ID.IsEmpty() {
		s.ID = ids.NewSessionID()
	}
	if e.reservation != nil && !e.reservation.IsExpired(now) {
		s.ReservationID = e.reservation.ID
	}
	e.fillHierarchy(&s)
	e.session = &s
	e.mu.Unlock()

	e.setStatusNow(model.StatusCharging)
	return result.StartOK(s), nil
}

// RemoteStop stops the session and returns its charge detail record. With
// ReservationKeepAlive the reservation used by the session survives and the
// EVSE goes back to reserved.
func (e *EVSE) RemoteStop(_ context.Context, req coordinator.RemoteStopRequest) (result.RemoteStop, error) {
	if req.SessionID.IsEmpty() {
		return result.RemoteStop{}, coordinator.ErrEmptySessionID
	}
	now := e.env.now()
	if e.Status() == model.StatusOffline {
		return result.StopFailed(result.StopOffline, req.SessionID, "evse offline"), nil
	}

	e.mu.Lock()
	if e.session == nil || e.session.ID != req.SessionID {
		e.mu.Unlock()
		return result.StopFailed(result.StopInvalidSessionID, req.SessionID, "unknown session"), nil
	}
	s := *e.session
	s.StopTime = now
	cdr := model.ChargeDetailRecord{
		SessionID:     s.ID,
		OperatorID:    s.OperatorID,
		StationID:     s.StationID,
		EVSEID:        s.EVSEID,
		ReservationID: s.ReservationID,
		ProviderID:    s.ProviderID,
		AuthToken:     s.AuthToken,
		ProductID:     s.ProductID,
		SessionStart:  s.StartTime,
		SessionEnd:    now,
		MeterStartKWh: s.MeterStartKWh,
		MeterStopKWh:  e.meterKWh,
	}
	e.session = nil
	keep := req.Handling == model.ReservationKeepAlive && e.reservation != nil && !e.reservation.IsExpired(now)
	if !keep {
		e.reservation = nil
	}
	e.mu.Unlock()

	if keep {
		e.setStatusNow(model.StatusReserved)
	} else {
		e.setStatusNow(model.StatusAvailable)
	}
	return result.StopOK(s, &cdr, req.Handling), nil
}

// bindSessionWithoutStatusNotification attaches a session started outside
// the remote start path. The status is left to the charger to report.
func (e *EVSE) bindSessionWithoutStatusNotification(s model.ChargingSession) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil && e.session.ID != s.ID {
		return fmt.Errorf("%w: evse %s already has session %s", ErrAlreadyExists, e.id, e.session.ID)
	}
	e.fillHierarchy(&s)
	if s.MeterStartKWh == 0 {
		s.MeterStartKWh = e.meterKWh
	}
	e.session = &s
	return nil
}

// endSession clears the session and its reservation when id is the active
// session. It returns the reservation the session used, if any.
func (e *EVSE) endSession(id ids.SessionID) (ids.ReservationID, bool) {
	e.mu.Lock()
	if e.session == nil || e.session.ID != id {
		e.mu.Unlock()
		return "", false
	}
	used := e.session.ReservationID
	if used.IsEmpty() && e.reservation != nil {
		used = e.reservation.ID
	}
	e.session = nil
	e.reservation = nil
	e.mu.Unlock()
	if e.Status() == model.StatusCharging {
		e.setStatusNow(model.StatusAvailable)
	}
	return used, true
}

func (e *EVSE) fillHierarchy(s *model.ChargingSession) {
	s.EVSEID = e.id
	if s.OperatorID == "" {
		s.OperatorID = e.OperatorID()
	}
	if e.station != nil {
		s.StationID = e.station.id
		if e.station.pool != nil {
			s.PoolID = e.station.pool.id
		}
	}
}
