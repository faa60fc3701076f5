package authorization

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
)

type fakeBackend struct {
	id       string
	priority int

	start result.AuthType
	stop  result.AuthType
	cdr   result.SendCDRType
	err   error

	mu    sync.Mutex
	calls []string
	log   *[]string
}

func (b *fakeBackend) ID() string    { return b.id }
func (b *fakeBackend) Priority() int { return b.priority }

func (b *fakeBackend) note(op string) {
	b.mu.Lock()
	b.calls = append(b.calls, op)
	b.mu.Unlock()
	if b.log != nil {
		*b.log = append(*b.log, b.id)
	}
}

func (b *fakeBackend) AuthorizeStart(_ context.Context, req StartRequest) (result.AuthStart, error) {
	b.note("start")
	if b.err != nil {
		return result.AuthStart{}, b.err
	}
	if b.start == result.AuthAuthorized {
		return result.Authorized(req.SessionID, ids.ProviderID(b.id)), nil
	}
	return result.AuthStartFailed(b.start, ids.ProviderID(b.id), ""), nil
}

func (b *fakeBackend) AuthorizeStop(_ context.Context, req StopRequest) (result.AuthStop, error) {
	b.note("stop")
	if b.err != nil {
		return result.AuthStop{}, b.err
	}
	if b.stop == result.AuthAuthorized {
		return result.StopAuthorized(req.SessionID, ids.ProviderID(b.id)), nil
	}
	return result.AuthStopFailed(b.stop, req.SessionID, ids.ProviderID(b.id), ""), nil
}

func (b *fakeBackend) SendChargeDetailRecord(_ context.Context, cdr model.ChargeDetailRecord) (result.SendCDR, error) {
	b.note("cdr")
	if b.err != nil {
		return result.SendCDR{}, b.err
	}
	return result.CDRResult(b.cdr, cdr.SessionID, b.id, ""), nil
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func init() {
	coordinator.ResetMetrics(prometheus.NewRegistry())
}

func TestSortBackendsByPriorityThenID(t *testing.T) {
	in := []Backend{
		&fakeBackend{id: "c", priority: 2},
		&fakeBackend{id: "b", priority: 1},
		&fakeBackend{id: "a", priority: 2},
	}
	out := SortBackends(in)
	got := []string{out[0].ID(), out[1].ID(), out[2].ID()}
	assert.Equal(t, []string{"b", "a", "c"}, got)
	assert.Equal(t, "c", in[0].ID(), "input untouched")
}

func TestAuthorizeStartRequiresToken(t *testing.T) {
	d := New(StaticSources{})
	_, err := d.AuthorizeStart(context.Background(), StartRequest{})
	assert.ErrorIs(t, err, ErrEmptyAuthToken)
}

func TestAuthorizeStartBlockedIsFinal(t *testing.T) {
	var order []string
	first := &fakeBackend{id: "local-1", priority: 1, start: result.AuthBlocked, log: &order}
	second := &fakeBackend{id: "local-2", priority: 2, start: result.AuthAuthorized, log: &order}
	d := New(StaticSources{Local: []Backend{second, first}})

	res, err := d.AuthorizeStart(context.Background(), StartRequest{AuthToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, result.AuthBlocked, res.Type)
	assert.Equal(t, []string{"local-1"}, order)
}

func TestAuthorizeStartFallsThroughToRoaming(t *testing.T) {
	var order []string
	local := &fakeBackend{id: "local", start: result.AuthNotAuthorized, log: &order}
	failing := &fakeBackend{id: "broken", priority: 1, err: errors.New("timeout"), log: &order}
	roaming := &fakeBackend{id: "hub", start: result.AuthAuthorized, log: &order}
	d := New(StaticSources{Local: []Backend{local, failing}, Roaming: []Backend{roaming}})

	res, err := d.AuthorizeStart(context.Background(), StartRequest{AuthToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, result.AuthAuthorized, res.Type)
	assert.Equal(t, ids.ProviderID("hub"), res.ProviderID)
	assert.False(t, res.SessionID.IsEmpty())
	assert.Equal(t, []string{"local", "broken", "hub"}, order)
}

func TestAuthorizeStartNoPositiveResult(t *testing.T) {
	d := New(StaticSources{Local: []Backend{&fakeBackend{id: "a", start: result.AuthNotAuthorized}}})
	res, err := d.AuthorizeStart(context.Background(), StartRequest{AuthToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, result.AuthError, res.Type)
	assert.Equal(t, result.NoPositiveResult, res.Message)

	res, err = New(StaticSources{}).AuthorizeStart(context.Background(), StartRequest{AuthToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, result.NoPositiveResult, res.Message)
}

func TestAuthorizeStartRegistersEVSESessions(t *testing.T) {
	var registered []ids.EVSEID
	reg := func(_ context.Context, evse ids.EVSEID, _ StartRequest, res result.AuthStart) error {
		registered = append(registered, evse)
		assert.Equal(t, ids.SessionID("S-1"), res.SessionID)
		return nil
	}
	d := New(StaticSources{Local: []Backend{&fakeBackend{id: "a", start: result.AuthAuthorized}}}, WithSessionRegistrar(reg))

	_, err := d.AuthorizeStart(context.Background(), StartRequest{AuthToken: "tok", SessionID: "S-1", Target: coordinator.EVSE("DE*AAA*E1")})
	require.NoError(t, err)
	_, err = d.AuthorizeStart(context.Background(), StartRequest{AuthToken: "tok", SessionID: "S-1", Target: coordinator.Station("DE*AAA*S1")})
	require.NoError(t, err)
	_, err = d.AuthorizeStart(context.Background(), StartRequest{AuthToken: "tok", SessionID: "S-1"})
	require.NoError(t, err)

	assert.Equal(t, []ids.EVSEID{"DE*AAA*E1"}, registered)
}

func TestAuthorizeStopPolicies(t *testing.T) {
	blocked := &fakeBackend{id: "a", priority: 1, stop: result.AuthBlocked}
	authorized := &fakeBackend{id: "b", priority: 2, stop: result.AuthAuthorized}
	src := StaticSources{Local: []Backend{blocked, authorized}}

	res, err := New(src).AuthorizeStop(context.Background(), StopRequest{AuthToken: "tok", SessionID: "S-1"})
	require.NoError(t, err)
	assert.Equal(t, result.AuthAuthorized, res.Type, "default stop policy skips blocks")

	res, err = New(src, WithStopPolicy(StopOnAuthorizedOrBlocked)).AuthorizeStop(context.Background(), StopRequest{AuthToken: "tok", SessionID: "S-1"})
	require.NoError(t, err)
	assert.Equal(t, result.AuthBlocked, res.Type)

	_, err = New(src).AuthorizeStop(context.Background(), StopRequest{AuthToken: "tok"})
	assert.ErrorIs(t, err, ErrEmptySessionID)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("", StopOnAuthorized)
	require.NoError(t, err)
	assert.Equal(t, StopOnAuthorized, p)
	p, err = ParsePolicy("stop_on_authorized_or_blocked", StopOnAuthorized)
	require.NoError(t, err)
	assert.Equal(t, StopOnAuthorizedOrBlocked, p)
	_, err = ParsePolicy("first", StopOnAuthorized)
	assert.Error(t, err)
}

func TestAuthorizationNotifications(t *testing.T) {
	d := New(StaticSources{Local: []Backend{&fakeBackend{id: "a", start: result.AuthAuthorized}}})
	var ops []string
	d.OnRequested("rec", func(_ context.Context, ev events.Requested) error {
		ops = append(ops, "before:"+string(ev.Operation))
		return nil
	})
	d.OnCompleted("rec", func(_ context.Context, ev events.Completed) error {
		ops = append(ops, "after:"+ev.ResultType)
		return errors.New("observer failure is ignored")
	})
	res, err := d.AuthorizeStart(context.Background(), StartRequest{AuthToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, result.AuthAuthorized, res.Type)
	assert.Equal(t, []string{"before:authorize_start", "after:authorized"}, ops)
}
