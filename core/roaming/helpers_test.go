package roaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type topology struct {
	net     *RoamingNetwork
	clock   *clock
	op      *EVSEOperator
	pool    *ChargingPool
	station *ChargingStation
	e1, e2  *EVSE
}

// newTopology builds DE*AAA with one pool, one station and two EVSEs, plus
// an empty operator DE*BBB.
func newTopology(t *testing.T, authOpts ...authorization.Option) *topology {
	t.Helper()
	coordinator.ResetMetrics(prometheus.NewRegistry())
	ctx := context.Background()
	clk := newClock()
	n := New("test", "Test network", []NetworkOption{WithClock(clk.Now)}, authOpts...)

	op, err := n.CreateNewEVSEOperator(ctx, "DE*AAA", WithOperatorName("Operator A"))
	require.NoError(t, err)
	_, err = n.CreateNewEVSEOperator(ctx, "DE*BBB")
	require.NoError(t, err)
	pool, err := op.CreateNewChargingPool(ctx, "DE*AAA*P1")
	require.NoError(t, err)
	station, err := pool.CreateNewChargingStation(ctx, "DE*AAA*S1")
	require.NoError(t, err)
	e1, err := station.CreateNewEVSE(ctx, "DE*AAA*E1", WithMaxPowerKW(22))
	require.NoError(t, err)
	e2, err := station.CreateNewEVSE(ctx, "DE*AAA*E2")
	require.NoError(t, err)

	return &topology{net: n, clock: clk, op: op, pool: pool, station: station, e1: e1, e2: e2}
}

type fakeRoamingProvider struct {
	id       string
	priority int
	role     Role
	order    *[]string

	mu       sync.Mutex
	data     []events.DataChanged
	statuses []events.StatusChanged
	cdr      result.SendCDRType
	start    result.AuthType
}

func (f *fakeRoamingProvider) ID() string    { return f.id }
func (f *fakeRoamingProvider) Priority() int { return f.priority }
func (f *fakeRoamingProvider) Role() Role    { return f.role }

func (f *fakeRoamingProvider) AuthorizeStart(_ context.Context, req authorization.StartRequest) (result.AuthStart, error) {
	if f.start == result.AuthAuthorized {
		r := result.Authorized(req.SessionID, "")
		r.RoamingProviderID = ids.RoamingProviderID(f.id)
		return r, nil
	}
	return result.AuthStartFailed(result.AuthNotAuthorized, "", ""), nil
}

func (f *fakeRoamingProvider) AuthorizeStop(_ context.Context, req authorization.StopRequest) (result.AuthStop, error) {
	return result.AuthStopFailed(result.AuthInvalidSessionID, req.SessionID, "", ""), nil
}

func (f *fakeRoamingProvider) SendChargeDetailRecord(_ context.Context, cdr model.ChargeDetailRecord) (result.SendCDR, error) {
	t := f.cdr
	if t == result.CDRUnspecified {
		t = result.CDRInvalidSessionID
	}
	return result.CDRResult(t, cdr.SessionID, f.id, ""), nil
}

func (f *fakeRoamingProvider) EnqueueDataChange(_ context.Context, ev events.DataChanged) error {
	f.mu.Lock()
	f.data = append(f.data, ev)
	f.mu.Unlock()
	if f.order != nil {
		*f.order = append(*f.order, f.id)
	}
	return nil
}

func (f *fakeRoamingProvider) EnqueueStatusChange(_ context.Context, ev events.StatusChanged) error {
	f.mu.Lock()
	f.statuses = append(f.statuses, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeRoamingProvider) Data() []events.DataChanged {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.DataChanged(nil), f.data...)
}

func (f *fakeRoamingProvider) Statuses() []events.StatusChanged {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.StatusChanged(nil), f.statuses...)
}
