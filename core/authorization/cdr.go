package authorization

import (
	"context"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/registry"
	"github.com/kilianp07/roaming/core/result"
)

// SendChargeDetailRecord stores the record, ends the session and offers the
// record to every local provider. Roaming providers are only asked when no
// local provider knows the session. The last answer that is not
// invalid_session_id wins.
func (d *Dispatcher) SendChargeDetailRecord(ctx context.Context, cdr model.ChargeDetailRecord) (result.SendCDR, error) {
	if cdr.SessionID.IsEmpty() {
		return result.SendCDR{}, ErrEmptySessionID
	}
	tracking := ids.NewEventTrackingID()
	target := cdr.SessionID.String()
	ctx, span, started := d.begin(ctx, events.OpSendCDR, tracking, target, cdr)

	d.cdrs.Set(cdr.SessionID, cdr)
	res := d.forward(ctx, cdr)
	res.Runtime = d.elapsed(started)

	d.end(ctx, span, events.OpSendCDR, tracking, target, cdr, res.Kind(), res, res.Runtime)
	return res, nil
}

// forward runs the filter first. A filtered record does not end its session.
func (d *Dispatcher) forward(ctx context.Context, cdr model.ChargeDetailRecord) result.SendCDR {
	if d.filter != nil {
		if r, ok := d.filter(ctx, cdr); ok {
			if r.SessionID.IsEmpty() {
				r.SessionID = cdr.SessionID
			}
			return r
		}
	}

	if d.endSess != nil {
		if err := d.endSess(ctx, cdr); err != nil {
			d.log.Warnw("ending session for charge detail record failed", map[string]any{
				"session_id": cdr.SessionID.String(),
				"error":      err.Error(),
			})
		}
	}

	res := result.CDRResult(result.CDRNotForwarded, cdr.SessionID, "", "no backend accepted the charge detail record")
	for _, tier := range d.tiers() {
		allInvalid := true
		for _, b := range tier {
			r, err := b.SendChargeDetailRecord(ctx, cdr)
			if err != nil {
				r = result.CDRResult(result.CDRError, cdr.SessionID, b.ID(), err.Error())
			}
			if r.Type == result.CDRInvalidSessionID {
				continue
			}
			allInvalid = false
			if r.Backend == "" {
				r.Backend = b.ID()
			}
			res = r
		}
		if !allInvalid {
			break
		}
	}
	return res
}

// TryGetChargeDetailRecord returns the last record received for a session.
func (d *Dispatcher) TryGetChargeDetailRecord(id ids.SessionID) (model.ChargeDetailRecord, bool) {
	return d.cdrs.TryGet(id)
}

// ChargeDetailRecords lists the received records ordered by session id.
func (d *Dispatcher) ChargeDetailRecords() []model.ChargeDetailRecord {
	return registry.SortedValues(d.cdrs)
}
