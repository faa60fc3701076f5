package roaming

import (
	"context"
	"time"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/registry"
	"github.com/kilianp07/roaming/core/result"
)

// heldReservations are station or pool level reservations. They hold
// capacity without being bound to one EVSE. A reservation consumed by a
// session is parked under the session id until the session ends.
type heldReservations struct {
	items *registry.Registry[ids.ReservationID, model.Reservation]
	inUse *registry.Registry[ids.SessionID, model.Reservation]
}

func newHeldReservations() heldReservations {
	return heldReservations{
		items: registry.New[ids.ReservationID, model.Reservation](),
		inUse: registry.New[ids.SessionID, model.Reservation](),
	}
}

func (h heldReservations) prune(now time.Time) {
	var expired []ids.ReservationID
	h.items.Range(func(id ids.ReservationID, r model.Reservation) bool {
		if r.IsExpired(now) {
			expired = append(expired, id)
		}
		return true
	})
	for _, id := range expired {
		h.items.TryRemove(id)
	}
}

// live returns the number of unexpired reservations.
func (h heldReservations) live(now time.Time) int {
	h.prune(now)
	return h.items.Len()
}

func (h heldReservations) contains(id ids.ReservationID) bool {
	return !id.IsEmpty() && h.items.Contains(id)
}

// take removes and returns a live reservation.
func (h heldReservations) take(id ids.ReservationID, now time.Time) (model.Reservation, bool) {
	if id.IsEmpty() {
		return model.Reservation{}, false
	}
	r, ok := h.items.TryRemove(id)
	if !ok || r.IsExpired(now) {
		return model.Reservation{}, false
	}
	return r, true
}

func (h heldReservations) put(r model.Reservation) { h.items.Set(r.ID, r) }

// use parks a reservation taken by a started session.
func (h heldReservations) use(sid ids.SessionID, r model.Reservation) { h.inUse.Set(sid, r) }

// release ends the parking of the reservation used by sid. With keep set an
// unexpired reservation is held again and release reports true.
func (h heldReservations) release(sid ids.SessionID, keep bool, now time.Time) bool {
	r, ok := h.inUse.TryRemove(sid)
	if !ok || !keep || r.IsExpired(now) {
		return false
	}
	h.put(r)
	return true
}

func (h heldReservations) remove(id ids.ReservationID) bool {
	_, ok := h.items.TryRemove(id)
	return ok
}

func (h heldReservations) list() []model.Reservation { return registry.SortedValues(h.items) }

// reserve grants, renews or refuses a held reservation. free is the number
// of EVSEs able to start right now and unavailable the outcome reported when
// none is.
func (h heldReservations) reserve(req coordinator.ReserveRequest, now time.Time, free int, unavailable result.ReservationType, base model.Reservation) result.Reservation {
	h.prune(now)
	if existing, ok := h.items.TryGet(req.ReservationID); ok && !req.ReservationID.IsEmpty() {
		existing.StartTime = req.StartTime
		existing.Duration = req.Duration
		existing.AuthTokens = req.AuthTokens
		existing.PINs = req.PINs
		h.put(existing)
		return result.ReservationOK(existing)
	}
	if free == 0 {
		return result.ReservationFailed(unavailable, "no EVSE available")
	}
	if free <= h.items.Len() {
		return result.ReservationFailed(result.ReservationReserved, "every available EVSE is already reserved")
	}
	r := base
	r.ID = req.ReservationID
	if r.ID.IsEmpty() {
		r.ID = ids.NewReservationID()
	}
	r.StartTime = req.StartTime
	r.Duration = req.Duration
	r.ProviderID = req.ProviderID
	r.AccountID = req.AccountID
	r.ProductID = req.ProductID
	r.AuthTokens = req.AuthTokens
	r.PINs = req.PINs
	r.CreatedAt = now
	h.put(r)
	return result.ReservationOK(r)
}

// blocks reports whether the held reservations leave no EVSE for a request
// that does not carry one of them.
func (h heldReservations) blocks(reservation ids.ReservationID, free int, now time.Time) bool {
	n := h.live(now)
	if n == 0 || h.contains(reservation) {
		return false
	}
	return free <= n
}

// availability counts the EVSEs able to start and names the outcome to
// report when none is.
func availability(evses []*EVSE, now time.Time) (int, result.ReservationType) {
	free := 0
	reserved, inUse := false, false
	offline := len(evses) > 0
	for _, e := range evses {
		switch e.startable(coordinator.RemoteStartRequest{}, now) {
		case result.StartSuccess:
			free++
			offline = false
		case result.StartOffline:
		case result.StartReserved:
			reserved = true
			offline = false
		case result.StartAlreadyInUse:
			inUse = true
			offline = false
		default:
			offline = false
		}
	}
	switch {
	case reserved:
		return free, result.ReservationReserved
	case inUse:
		return free, result.ReservationAlreadyInUse
	case offline:
		return free, result.ReservationOffline
	default:
		return free, result.ReservationOutOfService
	}
}

func startFailure(t result.ReservationType) result.RemoteStartType {
	switch t {
	case result.ReservationOffline:
		return result.StartOffline
	case result.ReservationOutOfService:
		return result.StartOutOfService
	case result.ReservationAlreadyInUse:
		return result.StartAlreadyInUse
	default:
		return result.StartReserved
	}
}

// startFirstAvailable starts on the first EVSE, in the given order, that
// accepts req.
func startFirstAvailable(ctx context.Context, evses []*EVSE, req coordinator.RemoteStartRequest, now time.Time) result.RemoteStart {
	for _, e := range evses {
		if e.startable(req, now) != result.StartSuccess {
			continue
		}
		r := req
		r.Target = coordinator.EVSE(e.id)
		res, err := e.RemoteStart(ctx, r)
		if err == nil && res.IsSuccess() {
			return res
		}
	}
	_, unavailable := availability(evses, now)
	return result.StartFailed(startFailure(unavailable), "no evse available")
}
