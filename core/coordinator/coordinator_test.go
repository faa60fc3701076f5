package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
	"github.com/kilianp07/roaming/internal/eventbus"
)

type fakeNode struct {
	id string

	mu    sync.Mutex
	calls []string

	reserve func(ReserveRequest) (result.Reservation, error)
	cancel  func(CancelReservationRequest) (result.CancelReservation, error)
	start   func(RemoteStartRequest) (result.RemoteStart, error)
	stop    func(RemoteStopRequest) (result.RemoteStop, error)
}

func (n *fakeNode) NodeID() string { return n.id }

func (n *fakeNode) record(op string) {
	n.mu.Lock()
	n.calls = append(n.calls, op)
	n.mu.Unlock()
}

func (n *fakeNode) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func (n *fakeNode) Reserve(_ context.Context, req ReserveRequest) (result.Reservation, error) {
	n.record("reserve")
	if n.reserve != nil {
		return n.reserve(req)
	}
	id := req.ReservationID
	if id.IsEmpty() {
		id = ids.NewReservationID()
	}
	return result.ReservationOK(model.Reservation{
		ID:        id,
		Level:     req.Target.Level,
		EVSEID:    ids.EVSEID(req.Target.ID),
		StartTime: req.StartTime,
		Duration:  req.Duration,
	}), nil
}

func (n *fakeNode) CancelReservation(_ context.Context, req CancelReservationRequest) (result.CancelReservation, error) {
	n.record("cancel")
	if n.cancel != nil {
		return n.cancel(req)
	}
	return result.CancelOK(req.ReservationID, req.Reason), nil
}

func (n *fakeNode) RemoteStart(_ context.Context, req RemoteStartRequest) (result.RemoteStart, error) {
	n.record("start")
	if n.start != nil {
		return n.start(req)
	}
	return result.StartOK(model.ChargingSession{ID: req.SessionID, EVSEID: ids.EVSEID(req.Target.ID)}), nil
}

func (n *fakeNode) RemoteStop(_ context.Context, req RemoteStopRequest) (result.RemoteStop, error) {
	n.record("stop")
	if n.stop != nil {
		return n.stop(req)
	}
	return result.StopOK(model.ChargingSession{ID: req.SessionID}, nil, req.Handling), nil
}

type fixture struct {
	c     *Coordinator
	nodes map[string]*fakeNode
	now   time.Time
}

// newFixture builds a network level coordinator whose operators are the
// given fake nodes. Targets resolve by operator prefix; the entity suffix
// "missing" resolves to MissEntity.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	f := &fixture{
		nodes: map[string]*fakeNode{"DE*AAA": {id: "DE*AAA"}, "DE*BBB": {id: "DE*BBB"}},
		now:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	resolve := func(tg Target) (Node, Miss) {
		op, ok := tg.OperatorID()
		if !ok {
			return nil, MissOperator
		}
		n, ok := f.nodes[op.String()]
		if !ok {
			return nil, MissOperator
		}
		if tg.ID == op.String()+"*missing" {
			return nil, MissEntity
		}
		return n, Found
	}
	owners := func() []Node {
		out := make([]Node, 0, len(f.nodes))
		for _, n := range f.nodes {
			out = append(out, n)
		}
		return out
	}
	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.c = New("network", "net", resolve, owners, opts...)
	return f
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Reserve(context.Background(), ReserveRequest{})
	assert.ErrorIs(t, err, ErrEmptyTarget)

	_, err = f.c.Reserve(context.Background(), ReserveRequest{Target: EVSE("DE*AAA*E1"), Duration: -time.Minute})
	assert.ErrorIs(t, err, ErrNegativeDuration)
	assert.Empty(t, f.nodes["DE*AAA"].Calls())
}

func TestReserveResolveMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.c.Reserve(ctx, ReserveRequest{Target: EVSE("FR*ZZZ*E1")})
	require.NoError(t, err)
	assert.Equal(t, result.ReservationUnknownOperator, res.Type)

	cases := map[Target]result.ReservationType{
		EVSE("DE*AAA*missing"):    result.ReservationUnknownEVSE,
		Station("DE*AAA*missing"): result.ReservationUnknownStation,
		Pool("DE*AAA*missing"):    result.ReservationUnknownPool,
	}
	for tg, want := range cases {
		res, err := f.c.Reserve(ctx, ReserveRequest{Target: tg})
		require.NoError(t, err)
		assert.Equal(t, want, res.Type, tg.String())
	}
	assert.Empty(t, f.c.Reservations())
}

func TestReserveDefaultsAndRegistration(t *testing.T) {
	f := newFixture(t, WithMaxReservationDuration(15*time.Minute))
	res, err := f.c.Reserve(context.Background(), ReserveRequest{Target: EVSE("DE*AAA*E1")})
	require.NoError(t, err)
	require.True(t, res.IsSuccess())

	assert.Equal(t, f.now, res.Reservation.StartTime)
	assert.Equal(t, 15*time.Minute, res.Reservation.Duration)
	got, ok := f.c.TryGetReservation(res.Reservation.ID)
	require.True(t, ok)
	assert.Equal(t, res.Reservation.ID, got.ID)

	res, err = f.c.Reserve(context.Background(), ReserveRequest{Target: EVSE("DE*AAA*E2"), Duration: 2 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, res.Reservation.Duration)
	assert.Len(t, f.c.Reservations(), 2)
}

func TestReserveDelegateErrorBecomesErrorResult(t *testing.T) {
	f := newFixture(t)
	f.nodes["DE*AAA"].reserve = func(ReserveRequest) (result.Reservation, error) {
		return result.Reservation{}, errors.New("backend down")
	}
	res, err := f.c.Reserve(context.Background(), ReserveRequest{Target: EVSE("DE*AAA*E1")})
	require.NoError(t, err)
	assert.Equal(t, result.ReservationError, res.Type)
	assert.Equal(t, "backend down", res.Message)
	assert.Empty(t, f.c.Reservations())
}

func TestReservationCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := ids.ReservationID("R-1")

	_, err := f.c.Reserve(ctx, ReserveRequest{Target: EVSE("DE*AAA*E1"), ReservationID: id, Duration: 5 * time.Minute})
	require.NoError(t, err)
	_, err = f.c.Reserve(ctx, ReserveRequest{Target: EVSE("DE*AAA*E1"), ReservationID: id, Duration: 10 * time.Minute})
	require.NoError(t, err)
	got, _ := f.c.TryGetReservation(id)
	assert.Equal(t, 10*time.Minute, got.Duration, "same owner renews")
	assert.Equal(t, 0.0, testutil.ToFloat64(registryCollisions.WithLabelValues(registryReservations)))

	_, err = f.c.Reserve(ctx, ReserveRequest{Target: EVSE("DE*BBB*E1"), ReservationID: id, Duration: 3 * time.Minute})
	require.NoError(t, err)
	got, _ = f.c.TryGetReservation(id)
	assert.Equal(t, 10*time.Minute, got.Duration, "first owner kept")
	assert.Equal(t, 1.0, testutil.ToFloat64(registryCollisions.WithLabelValues(registryReservations)))
}

func TestCancelThroughRegistry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.c.Reserve(ctx, ReserveRequest{Target: EVSE("DE*AAA*E1")})
	require.NoError(t, err)

	cres, err := f.c.CancelReservation(ctx, CancelReservationRequest{ReservationID: res.Reservation.ID, Reason: model.CancelDeleted})
	require.NoError(t, err)
	assert.Equal(t, result.CancelSuccess, cres.Type)
	assert.Equal(t, []string{"reserve", "cancel"}, f.nodes["DE*AAA"].Calls())
	assert.Empty(t, f.nodes["DE*BBB"].Calls())
	_, ok := f.c.TryGetReservation(res.Reservation.ID)
	assert.False(t, ok)
}

func TestCancelKeepsEntryOnOfflineOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, _ := f.c.Reserve(ctx, ReserveRequest{Target: EVSE("DE*AAA*E1")})
	f.nodes["DE*AAA"].cancel = func(req CancelReservationRequest) (result.CancelReservation, error) {
		return result.CancelFailed(result.CancelOffline, req.ReservationID, "offline"), nil
	}
	cres, err := f.c.CancelReservation(ctx, CancelReservationRequest{ReservationID: res.Reservation.ID})
	require.NoError(t, err)
	assert.Equal(t, result.CancelOffline, cres.Type)
	_, ok := f.c.TryGetReservation(res.Reservation.ID)
	assert.True(t, ok)
}

func TestCancelBroadcastStopsAtFirstKnownOwner(t *testing.T) {
	f := newFixture(t)
	unknown := func(req CancelReservationRequest) (result.CancelReservation, error) {
		return result.CancelFailed(result.CancelUnknownReservation, req.ReservationID, ""), nil
	}
	f.nodes["DE*AAA"].cancel = unknown

	cres, err := f.c.CancelReservation(context.Background(), CancelReservationRequest{ReservationID: "R-elsewhere"})
	require.NoError(t, err)
	assert.Equal(t, result.CancelSuccess, cres.Type)
	assert.Equal(t, []string{"cancel"}, f.nodes["DE*AAA"].Calls())
	assert.Equal(t, []string{"cancel"}, f.nodes["DE*BBB"].Calls())

	f.nodes["DE*BBB"].cancel = unknown
	cres, err = f.c.CancelReservation(context.Background(), CancelReservationRequest{ReservationID: "R-nowhere"})
	require.NoError(t, err)
	assert.Equal(t, result.CancelUnknownReservation, cres.Type)

	_, err = f.c.CancelReservation(context.Background(), CancelReservationRequest{})
	assert.ErrorIs(t, err, ErrEmptyReservationID)
}

func TestExpireReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	short, _ := f.c.Reserve(ctx, ReserveRequest{Target: EVSE("DE*AAA*E1"), Duration: time.Minute})
	long, _ := f.c.Reserve(ctx, ReserveRequest{Target: EVSE("DE*AAA*E2"), Duration: 10 * time.Minute})

	var reasons []model.CancelReason
	f.nodes["DE*AAA"].cancel = func(req CancelReservationRequest) (result.CancelReservation, error) {
		reasons = append(reasons, req.Reason)
		return result.CancelOK(req.ReservationID, req.Reason), nil
	}

	n := f.c.ExpireReservations(ctx, f.now.Add(time.Minute))
	assert.Equal(t, 1, n)
	assert.Equal(t, []model.CancelReason{model.CancelExpired}, reasons)
	_, ok := f.c.TryGetReservation(short.Reservation.ID)
	assert.False(t, ok)
	_, ok = f.c.TryGetReservation(long.Reservation.ID)
	assert.True(t, ok)
}

func TestRemoteStartRegistersSession(t *testing.T) {
	f := newFixture(t)
	res, err := f.c.RemoteStart(context.Background(), RemoteStartRequest{Target: EVSE("DE*AAA*E1"), SessionID: "S-1"})
	require.NoError(t, err)
	require.True(t, res.IsSuccess())
	s, ok := f.c.TryGetSession("S-1")
	require.True(t, ok)
	assert.Equal(t, ids.EVSEID("DE*AAA*E1"), s.EVSEID)

	owner, ok := f.c.SessionOwner("S-1")
	require.True(t, ok)
	assert.Equal(t, "DE*AAA", owner.NodeID())

	res, err = f.c.RemoteStart(context.Background(), RemoteStartRequest{Target: EVSE("DE*AAA*E2")})
	require.NoError(t, err)
	assert.False(t, res.Session.ID.IsEmpty(), "session id generated")

	res, err = f.c.RemoteStart(context.Background(), RemoteStartRequest{Target: Station("DE*AAA*missing")})
	require.NoError(t, err)
	assert.Equal(t, result.StartUnknownStation, res.Type)
}

func TestRemoteStopRemovesEntryEvenOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.c.RemoteStart(ctx, RemoteStartRequest{Target: EVSE("DE*AAA*E1"), SessionID: "S-1"})
	require.NoError(t, err)

	f.nodes["DE*AAA"].stop = func(req RemoteStopRequest) (result.RemoteStop, error) {
		return result.StopFailed(result.StopOffline, req.SessionID, "offline"), nil
	}
	res, err := f.c.RemoteStop(ctx, RemoteStopRequest{SessionID: "S-1"})
	require.NoError(t, err)
	assert.Equal(t, result.StopOffline, res.Type)
	_, ok := f.c.TryGetSession("S-1")
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(lostStopEntries))

	res, err = f.c.RemoteStop(ctx, RemoteStopRequest{SessionID: "S-1"})
	require.NoError(t, err)
	assert.Equal(t, result.StopInvalidSessionID, res.Type)

	_, err = f.c.RemoteStop(ctx, RemoteStopRequest{})
	assert.ErrorIs(t, err, ErrEmptySessionID)
}

func TestRemoteStopFallsBackToTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.c.RemoteStop(ctx, RemoteStopRequest{SessionID: "S-9", Target: EVSE("DE*BBB*E1")})
	require.NoError(t, err)
	assert.Equal(t, result.StopSuccess, res.Type)
	assert.Equal(t, []string{"stop"}, f.nodes["DE*BBB"].Calls())

	res, err = f.c.RemoteStop(ctx, RemoteStopRequest{SessionID: "S-9", Target: EVSE("FR*ZZZ*E1")})
	require.NoError(t, err)
	assert.Equal(t, result.StopUnknownOperator, res.Type)

	res, err = f.c.RemoteStop(ctx, RemoteStopRequest{SessionID: "S-9", Target: EVSE("DE*BBB*missing")})
	require.NoError(t, err)
	assert.Equal(t, result.StopInvalidSessionID, res.Type)
}

func TestRegisterSession(t *testing.T) {
	f := newFixture(t)
	owner := f.nodes["DE*AAA"]
	require.NoError(t, f.c.RegisterSession(owner, model.ChargingSession{ID: "S-1"}))
	assert.ErrorIs(t, f.c.RegisterSession(owner, model.ChargingSession{ID: "S-1"}), ErrSessionExists)
	assert.ErrorIs(t, f.c.RegisterSession(owner, model.ChargingSession{}), ErrEmptySessionID)
	assert.Len(t, f.c.Sessions(), 1)

	n, ok := f.c.UnregisterSession("S-1")
	require.True(t, ok)
	assert.Equal(t, "DE*AAA", n.NodeID())
	_, ok = f.c.UnregisterSession("S-1")
	assert.False(t, ok)
}

func TestNotificationsSurviveObserverFailures(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sub := bus.Subscribe()
	f := newFixture(t, WithBus(bus))

	var order []string
	f.c.OnRequested("failing", func(context.Context, events.Requested) error {
		order = append(order, "before-failing")
		return errors.New("boom")
	})
	f.c.OnRequested("panicking", func(context.Context, events.Requested) error {
		panic("observer panic")
	})
	f.c.OnRequested("ok", func(_ context.Context, ev events.Requested) error {
		order = append(order, "before-"+string(ev.Operation))
		return nil
	})
	var completed events.Completed
	f.c.OnCompleted("ok", func(_ context.Context, ev events.Completed) error {
		order = append(order, "after")
		completed = ev
		return nil
	})

	res, err := f.c.Reserve(context.Background(), ReserveRequest{Target: EVSE("DE*AAA*E1"), EventTrackingID: "T-1"})
	require.NoError(t, err)
	require.True(t, res.IsSuccess())
	assert.Equal(t, []string{"before-failing", "before-reserve", "after"}, order)
	assert.Equal(t, "success", completed.ResultType)
	assert.Equal(t, ids.EventTrackingID("T-1"), completed.EventTrackingID)
	assert.Equal(t, "evse:DE*AAA*E1", completed.Target)

	first := <-sub
	_, ok := first.(events.Requested)
	assert.True(t, ok)
	second := <-sub
	_, ok = second.(events.Completed)
	assert.True(t, ok)
}

func TestOperationMetrics(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Reserve(context.Background(), ReserveRequest{Target: EVSE("DE*AAA*E1")})
	require.NoError(t, err)
	_, err = f.c.Reserve(context.Background(), ReserveRequest{Target: EVSE("FR*ZZZ*E1")})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(operationsTotal.WithLabelValues("reserve", "network", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(operationsTotal.WithLabelValues("reserve", "network", "unknown_evse_operator")))
}
