package coordinator

import (
	"context"
	"time"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
)

// NormalizeReserve fills the defaults of a reserve request: start now,
// maximum duration when unset, durations capped at max and a fresh event
// tracking id.
func NormalizeReserve(req ReserveRequest, now time.Time, max time.Duration) ReserveRequest {
	if req.StartTime.IsZero() {
		req.StartTime = now
	}
	if req.Duration == 0 || req.Duration > max {
		req.Duration = max
	}
	req.EventTrackingID = trackingOrNew(req.EventTrackingID)
	return req
}

// Reserve resolves the target, delegates to its owner and registers the
// granted reservation.
func (c *Coordinator) Reserve(ctx context.Context, req ReserveRequest) (result.Reservation, error) {
	if req.Target.IsEmpty() {
		return result.Reservation{}, ErrEmptyTarget
	}
	if req.Duration < 0 {
		return result.Reservation{}, ErrNegativeDuration
	}
	req = NormalizeReserve(req, c.now(), c.maxDuration)
	target := req.Target.String()

	ctx, span, started := c.begin(ctx, events.OpReserve, req.EventTrackingID, target, req)

	var res result.Reservation
	node, miss := c.resolve(req.Target)
	switch miss {
	case MissOperator:
		res = result.ReservationFailed(result.ReservationUnknownOperator, "unknown operator for "+target)
	case MissEntity:
		res = result.ReservationFailed(unknownReservationTarget(req.Target.Level), "unknown "+target)
	default:
		r, err := node.Reserve(ctx, req)
		if err != nil {
			res = result.ReservationFailed(result.ReservationError, err.Error())
		} else {
			res = r
		}
		if res.IsSuccess() {
			c.registerReservation(node, *res.Reservation)
		}
	}
	res.Runtime = c.elapsed(started)

	c.end(ctx, span, events.OpReserve, req.EventTrackingID, target, req, res.Kind(), res, res.Runtime)
	return res, nil
}

func unknownReservationTarget(l model.Level) result.ReservationType {
	switch l {
	case model.LevelChargingStation:
		return result.ReservationUnknownStation
	case model.LevelChargingPool:
		return result.ReservationUnknownPool
	default:
		return result.ReservationUnknownEVSE
	}
}

// CancelReservation cancels through the registered owner, or asks every
// owner in id order until one knows the reservation.
func (c *Coordinator) CancelReservation(ctx context.Context, req CancelReservationRequest) (result.CancelReservation, error) {
	if req.ReservationID.IsEmpty() {
		return result.CancelReservation{}, ErrEmptyReservationID
	}
	req.EventTrackingID = trackingOrNew(req.EventTrackingID)
	target := req.ReservationID.String()

	ctx, span, started := c.begin(ctx, events.OpCancelReservation, req.EventTrackingID, target, req)

	var res result.CancelReservation
	if h, ok := c.reservations.TryGet(req.ReservationID); ok {
		res = cancelOn(ctx, h.Owner, req)
		if res.Type == result.CancelSuccess || res.Type == result.CancelUnknownReservation {
			c.ForgetReservation(req.ReservationID)
		}
	} else {
		res = result.CancelFailed(result.CancelUnknownReservation, req.ReservationID, "unknown reservation")
		for _, n := range c.ownersByID() {
			r := cancelOn(ctx, n, req)
			if r.Type != result.CancelUnknownReservation {
				res = r
				break
			}
		}
	}
	res.Runtime = c.elapsed(started)

	c.end(ctx, span, events.OpCancelReservation, req.EventTrackingID, target, req, res.Kind(), res, res.Runtime)
	return res, nil
}

func cancelOn(ctx context.Context, n Node, req CancelReservationRequest) result.CancelReservation {
	r, err := n.CancelReservation(ctx, req)
	if err != nil {
		return result.CancelFailed(result.CancelError, req.ReservationID, err.Error())
	}
	return r
}

// ExpireReservations cancels every registered reservation that ended at or
// before now and returns how many were released.
func (c *Coordinator) ExpireReservations(ctx context.Context, now time.Time) int {
	var expired []ids.ReservationID
	c.reservations.Range(func(id ids.ReservationID, h Handle[model.Reservation]) bool {
		if h.Item.IsExpired(now) {
			expired = append(expired, id)
		}
		return true
	})
	n := 0
	for _, id := range expired {
		res, err := c.CancelReservation(ctx, CancelReservationRequest{ReservationID: id, Reason: model.CancelExpired})
		if err != nil {
			continue
		}
		if res.IsSuccess() {
			n++
			continue
		}
		if res.Type == result.CancelUnknownReservation {
			continue
		}
		c.log.Warnw("expiring reservation failed", map[string]any{
			"reservation_id": id.String(),
			"result":         res.Kind(),
			"message":        res.Message,
			"node":           c.id,
		})
	}
	if n > 0 {
		c.log.Debugf("%s %s expired %d reservations", c.kind, c.id, n)
	}
	return n
}
