package coordinator

import (
	"context"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
)

// RemoteStart resolves the target, delegates the start and registers the
// session on success.
func (c *Coordinator) RemoteStart(ctx context.Context, req RemoteStartRequest) (result.RemoteStart, error) {
	if req.Target.IsEmpty() {
		return result.RemoteStart{}, ErrEmptyTarget
	}
	req.EventTrackingID = trackingOrNew(req.EventTrackingID)
	if req.SessionID.IsEmpty() {
		req.SessionID = ids.NewSessionID()
	}
	target := req.Target.String()

	ctx, span, started := c.begin(ctx, events.OpRemoteStart, req.EventTrackingID, target, req)

	var res result.RemoteStart
	node, miss := c.resolve(req.Target)
	switch miss {
	case MissOperator:
		res = result.StartFailed(result.StartUnknownOperator, "unknown operator for "+target)
	case MissEntity:
		res = result.StartFailed(unknownStartTarget(req.Target.Level), "unknown "+target)
	default:
		r, err := node.RemoteStart(ctx, req)
		if err != nil {
			res = result.StartFailed(result.StartError, err.Error())
		} else {
			res = r
		}
		if res.IsSuccess() {
			c.registerSession(node, *res.Session)
		}
	}
	res.Runtime = c.elapsed(started)

	c.end(ctx, span, events.OpRemoteStart, req.EventTrackingID, target, req, res.Kind(), res, res.Runtime)
	return res, nil
}

func unknownStartTarget(l model.Level) result.RemoteStartType {
	switch l {
	case model.LevelChargingStation:
		return result.StartUnknownStation
	case model.LevelChargingPool:
		return result.StartUnknownPool
	default:
		return result.StartUnknownEVSE
	}
}

// RemoteStop stops a session through its registered owner. The registry
// entry is dropped whatever the outcome. Sessions missing from the registry
// are looked up from the request target when one is given.
func (c *Coordinator) RemoteStop(ctx context.Context, req RemoteStopRequest) (result.RemoteStop, error) {
	if req.SessionID.IsEmpty() {
		return result.RemoteStop{}, ErrEmptySessionID
	}
	req.EventTrackingID = trackingOrNew(req.EventTrackingID)
	target := req.Target.String()
	if target == "" {
		target = req.SessionID.String()
	}

	ctx, span, started := c.begin(ctx, events.OpRemoteStop, req.EventTrackingID, target, req)

	var res result.RemoteStop
	if owner, ok := c.UnregisterSession(req.SessionID); ok {
		res = stopOn(ctx, owner, req)
		if !res.IsSuccess() {
			lostStopEntries.Inc()
			c.log.Warnw("session entry removed after failed remote stop", map[string]any{
				"session_id": req.SessionID.String(),
				"result":     res.Kind(),
				"owner":      owner.NodeID(),
				"node":       c.id,
			})
		}
	} else if !req.Target.IsEmpty() {
		node, miss := c.resolve(req.Target)
		switch miss {
		case MissOperator:
			res = result.StopFailed(result.StopUnknownOperator, req.SessionID, "unknown operator for "+target)
		case MissEntity:
			res = result.StopFailed(result.StopInvalidSessionID, req.SessionID, "unknown "+target)
		default:
			res = stopOn(ctx, node, req)
		}
	} else {
		res = result.StopFailed(result.StopInvalidSessionID, req.SessionID, "unknown session")
	}
	res.Runtime = c.elapsed(started)

	c.end(ctx, span, events.OpRemoteStop, req.EventTrackingID, target, req, res.Kind(), res, res.Runtime)
	return res, nil
}

func stopOn(ctx context.Context, n Node, req RemoteStopRequest) result.RemoteStop {
	r, err := n.RemoteStop(ctx, req)
	if err != nil {
		return result.StopFailed(result.StopError, req.SessionID, err.Error())
	}
	return r
}
