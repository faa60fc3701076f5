package roaming

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
)

func TestAuthorizedStartBindsSessionWithoutStatusChange(t *testing.T) {
	tp := newTopology(t)
	ctx := context.Background()
	p, err := tp.net.CreateNewEVServiceProvider(ctx, "DE-EMP", WithAllowedTokens("tok-1"), WithBlockedTokens("tok-bad"))
	require.NoError(t, err)

	res, err := tp.net.AuthorizeStart(ctx, authorization.StartRequest{AuthToken: "tok-1", Target: coordinator.EVSE("DE*AAA*E1")})
	require.NoError(t, err)
	require.Equal(t, result.AuthAuthorized, res.Type)
	assert.Equal(t, ids.ProviderID("DE-EMP"), res.ProviderID)
	sid := res.SessionID

	s, ok := tp.e1.Session()
	require.True(t, ok)
	assert.Equal(t, sid, s.ID)
	assert.Equal(t, ids.ChargingPoolID("DE*AAA*P1"), s.PoolID)
	assert.Equal(t, model.StatusAvailable, tp.e1.Status())
	for _, reg := range []interface {
		TryGetSession(ids.SessionID) (model.ChargingSession, bool)
	}{tp.net, tp.op, tp.pool} {
		_, ok := reg.TryGetSession(sid)
		assert.True(t, ok)
	}

	blocked, err := tp.net.AuthorizeStart(ctx, authorization.StartRequest{AuthToken: "tok-bad", Target: coordinator.EVSE("DE*AAA*E2")})
	require.NoError(t, err)
	assert.Equal(t, result.AuthBlocked, blocked.Type)
	_, ok = tp.e2.Session()
	assert.False(t, ok)

	stop, err := tp.net.AuthorizeStop(ctx, authorization.StopRequest{AuthToken: "tok-1", SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, result.AuthAuthorized, stop.Type)

	cdr, err := tp.net.SendChargeDetailRecord(ctx, model.ChargeDetailRecord{SessionID: sid, EVSEID: "DE*AAA*E1", MeterStopKWh: 7})
	require.NoError(t, err)
	assert.Equal(t, result.CDRForwarded, cdr.Type)
	assert.Equal(t, "DE-EMP", cdr.Backend)
	assert.Equal(t, 1, p.RecordsReceived())

	_, ok = tp.e1.Session()
	assert.False(t, ok)
	_, ok = tp.net.TryGetSession(sid)
	assert.False(t, ok)
	_, ok = tp.pool.TryGetSession(sid)
	assert.False(t, ok)
	_, ok = tp.net.Authorization().TryGetChargeDetailRecord(sid)
	assert.True(t, ok)
}

func TestExternalSessionRejectsDuplicates(t *testing.T) {
	tp := newTopology(t)
	ctx := context.Background()

	err := tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "X1", EVSEID: "DE*AAA*E2"})
	require.NoError(t, err)
	err = tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "X1", EVSEID: "DE*AAA*E2"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	err = tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "X2", EVSEID: "DE*AAA*E2"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	err = tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "X3", EVSEID: "DE*AAA*E404"})
	assert.ErrorIs(t, err, ErrNotFound)
	err = tp.net.RegisterExternalSession(ctx, model.ChargingSession{EVSEID: "DE*AAA*E1"})
	assert.ErrorIs(t, err, coordinator.ErrEmptySessionID)

	stop, err := tp.net.RemoteStop(ctx, coordinator.RemoteStopRequest{SessionID: "X1"})
	require.NoError(t, err)
	assert.Equal(t, result.StopSuccess, stop.Type)
	_, ok := tp.e2.Session()
	assert.False(t, ok)
}

func TestChargeDetailRecordReleasesReservation(t *testing.T) {
	tp := newTopology(t)
	ctx := context.Background()

	_, err := tp.net.Reserve(ctx, coordinator.ReserveRequest{Target: coordinator.EVSE("DE*AAA*E1"), ReservationID: "R1"})
	require.NoError(t, err)
	start, err := tp.net.RemoteStart(ctx, coordinator.RemoteStartRequest{Target: coordinator.EVSE("DE*AAA*E1"), ReservationID: "R1", SessionID: "S1"})
	require.NoError(t, err)
	require.True(t, start.IsSuccess(), start.Message)

	_, err = tp.net.SendChargeDetailRecord(ctx, model.ChargeDetailRecord{SessionID: "S1", EVSEID: "DE*AAA*E1", ReservationID: "R1"})
	require.NoError(t, err)
	_, ok := tp.e1.Reservation()
	assert.False(t, ok)
	assert.Equal(t, model.StatusAvailable, tp.e1.Status())
	for _, reg := range []interface {
		TryGetReservation(ids.ReservationID) (model.Reservation, bool)
	}{tp.net, tp.op, tp.pool} {
		_, ok := reg.TryGetReservation("R1")
		assert.False(t, ok)
	}

	sres, err := tp.net.Reserve(ctx, coordinator.ReserveRequest{Target: coordinator.Station("DE*AAA*S1")})
	require.NoError(t, err)
	require.True(t, sres.IsSuccess(), sres.Message)
	start, err = tp.net.RemoteStart(ctx, coordinator.RemoteStartRequest{Target: coordinator.Station("DE*AAA*S1"), ReservationID: sres.Reservation.ID, SessionID: "S2"})
	require.NoError(t, err)
	require.True(t, start.IsSuccess(), start.Message)

	_, err = tp.net.SendChargeDetailRecord(ctx, model.ChargeDetailRecord{SessionID: "S2"})
	require.NoError(t, err)
	_, ok = tp.net.TryGetReservation(sres.Reservation.ID)
	assert.False(t, ok)
	_, ok = tp.net.TryGetSession("S2")
	assert.False(t, ok)
	assert.Empty(t, tp.station.HeldReservations())
}

func TestExternalSessionWithoutEVSE(t *testing.T) {
	tp := newTopology(t)
	ctx := context.Background()

	err := tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "ext-1", StationID: "DE*AAA*S1", OperatorID: "DE*AAA"})
	require.NoError(t, err)
	for _, reg := range []interface {
		TryGetSession(ids.SessionID) (model.ChargingSession, bool)
	}{tp.net, tp.op, tp.pool} {
		s, ok := reg.TryGetSession("ext-1")
		require.True(t, ok)
		assert.Equal(t, ids.ChargingPoolID("DE*AAA*P1"), s.PoolID)
	}
	owner, ok := tp.pool.SessionOwner("ext-1")
	require.True(t, ok)
	assert.Equal(t, "DE*AAA*S1", owner.NodeID())
	_, ok = tp.e1.Session()
	assert.False(t, ok)
	_, ok = tp.e2.Session()
	assert.False(t, ok)

	require.NoError(t, tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "ext-2", PoolID: "DE*AAA*P1"}))
	_, ok = tp.op.TryGetSession("ext-2")
	assert.True(t, ok)
	_, ok = tp.pool.TryGetSession("ext-2")
	assert.False(t, ok)

	require.NoError(t, tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "ext-3", OperatorID: "DE*BBB"}))
	s, ok := tp.net.TryGetSession("ext-3")
	require.True(t, ok)
	assert.Equal(t, ids.OperatorID("DE*BBB"), s.OperatorID)

	err = tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "ext-1", OperatorID: "DE*AAA"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	err = tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "ext-4", StationID: "DE*AAA*S9"})
	assert.ErrorIs(t, err, ErrNotFound)
	err = tp.net.RegisterExternalSession(ctx, model.ChargingSession{ID: "ext-5"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tp.net.SendChargeDetailRecord(ctx, model.ChargeDetailRecord{SessionID: "ext-1", StationID: "DE*AAA*S1"})
	require.NoError(t, err)
	for _, reg := range []interface {
		TryGetSession(ids.SessionID) (model.ChargingSession, bool)
	}{tp.net, tp.op, tp.pool} {
		_, ok := reg.TryGetSession("ext-1")
		assert.False(t, ok)
	}
}

func TestRemoteStartTracksSessionForProvider(t *testing.T) {
	tp := newTopology(t)
	ctx := context.Background()
	p, err := tp.net.CreateNewEVServiceProvider(ctx, "DE-EMP")
	require.NoError(t, err)

	start, err := tp.net.RemoteStart(ctx, coordinator.RemoteStartRequest{
		Target:     coordinator.EVSE("DE*AAA*E2"),
		ProviderID: "DE-EMP",
		AuthToken:  "app-user",
	})
	require.NoError(t, err)
	require.True(t, start.IsSuccess())
	sid := start.Session.ID
	assert.True(t, p.KnowsSession(sid))

	stop, err := tp.net.RemoteStop(ctx, coordinator.RemoteStopRequest{SessionID: sid})
	require.NoError(t, err)
	require.True(t, stop.IsSuccess())
	assert.Equal(t, 1, p.RecordsReceived())
	assert.False(t, p.KnowsSession(sid))
	rec, ok := tp.net.Authorization().TryGetChargeDetailRecord(sid)
	require.True(t, ok)
	assert.Equal(t, ids.EVSEID("DE*AAA*E2"), rec.EVSEID)
}

func TestChargeDetailRecordFallsBackToRoamingProviders(t *testing.T) {
	tp := newTopology(t)
	ctx := context.Background()
	_, err := tp.net.CreateNewEVServiceProvider(ctx, "DE-EMP")
	require.NoError(t, err)
	require.NoError(t, tp.net.RegisterRoamingProvider(ctx, &fakeRoamingProvider{id: "hub", cdr: result.CDRForwarded}))

	res, err := tp.net.SendChargeDetailRecord(ctx, model.ChargeDetailRecord{SessionID: "foreign"})
	require.NoError(t, err)
	assert.Equal(t, result.CDRForwarded, res.Type)
	assert.Equal(t, "hub", res.Backend)
}

func TestEMPAdaptersStayOutOfRoamingTier(t *testing.T) {
	tp := newTopology(t)
	ctx := context.Background()
	require.NoError(t, tp.net.RegisterRoamingProvider(ctx, &fakeRoamingProvider{id: "emp", role: RoleEMP, cdr: result.CDRForwarded}))

	res, err := tp.net.SendChargeDetailRecord(ctx, model.ChargeDetailRecord{SessionID: "foreign"})
	require.NoError(t, err)
	assert.Equal(t, result.CDRNotForwarded, res.Type)
	assert.Empty(t, tp.net.RoamingBackends())

	require.NoError(t, tp.net.RegisterRoamingProvider(ctx, &fakeRoamingProvider{id: "cpo", role: RoleCPO, cdr: result.CDRForwarded}))
	backends := tp.net.RoamingBackends()
	require.Len(t, backends, 1)
	assert.Equal(t, "cpo", backends[0].ID())
}

func TestRoamingProviderAuthorizesForeignToken(t *testing.T) {
	tp := newTopology(t)
	ctx := context.Background()
	require.NoError(t, tp.net.RegisterRoamingProvider(ctx, &fakeRoamingProvider{id: "hub", start: result.AuthAuthorized}))

	res, err := tp.net.AuthorizeStart(ctx, authorization.StartRequest{AuthToken: "foreign", Target: coordinator.EVSE("DE*AAA*E2")})
	require.NoError(t, err)
	require.Equal(t, result.AuthAuthorized, res.Type)
	assert.Equal(t, ids.RoamingProviderID("hub"), res.RoamingProviderID)

	s, ok := tp.e2.Session()
	require.True(t, ok)
	assert.Equal(t, ids.RoamingProviderID("hub"), s.RoamingProviderID)
}

func TestUnknownTokenFallsBackToNoPositiveResult(t *testing.T) {
	tp := newTopology(t)
	ctx := context.Background()
	_, err := tp.net.CreateNewEVServiceProvider(ctx, "DE-EMP")
	require.NoError(t, err)

	res, err := tp.net.AuthorizeStart(ctx, authorization.StartRequest{AuthToken: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, result.AuthError, res.Type)
	assert.Equal(t, result.NoPositiveResult, res.Message)
}
