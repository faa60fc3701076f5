package scenarios

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/kpi"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/roaming"
	"github.com/kilianp07/roaming/infra/metrics"
	"github.com/kilianp07/roaming/internal/eventbus"
)

// clock is advanced by the "advance" steps.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

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

func RunScenario(t *testing.T, sc *Scenario) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	bus := eventbus.New()
	defer bus.Close()
	metrics.StartEventCollector(ctx, bus, sink)

	clk := &clock{now: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	n := roaming.New("qa", sc.Name, []roaming.NetworkOption{
		roaming.WithBus(bus),
		roaming.WithClock(clk.Now),
	})
	if err := build(ctx, n, sc); err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}

	for i, step := range sc.Steps {
		got, err := runStep(ctx, n, clk, step)
		if err != nil {
			got = "error"
		}
		if step.Expect != "" && got != step.Expect {
			t.Errorf("scenario %s step %d (%s): expected %s, got %s (%v)", sc.Name, i, step.Op, step.Expect, got, err)
		}
	}

	if got := len(n.Reservations()); got != sc.Expected.Reservations {
		t.Errorf("scenario %s expected %d reservations, got %d", sc.Name, sc.Expected.Reservations, got)
	}
	if got := len(n.Sessions()); got != sc.Expected.Sessions {
		t.Errorf("scenario %s expected %d sessions, got %d", sc.Name, sc.Expected.Sessions, got)
	}
	sum := kpi.Summarize(n.ChargeDetailRecords())
	if sum.Sessions != sc.Expected.CDRs {
		t.Errorf("scenario %s expected %d cdrs, got %d", sc.Name, sc.Expected.CDRs, sum.Sessions)
	}
	if sum.TotalEnergyKWh != sc.Expected.EnergyKWh {
		t.Errorf("scenario %s expected %.2f kWh, got %.2f", sc.Name, sc.Expected.EnergyKWh, sum.TotalEnergyKWh)
	}

	deadline := time.Now().Add(2 * time.Second)
	for counted(reg, "roaming_cdrs_total") != sc.Expected.CDRs {
		if time.Now().After(deadline) {
			t.Errorf("scenario %s: roaming_cdrs_total never reached %d", sc.Name, sc.Expected.CDRs)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func build(ctx context.Context, n *roaming.RoamingNetwork, sc *Scenario) error {
	for _, sd := range sc.Stations {
		opID, ok := ids.OperatorOf(sd.Pool)
		if !ok {
			return fmt.Errorf("pool %q has no operator", sd.Pool)
		}
		op, ok := n.TryGetEVSEOperator(opID)
		if !ok {
			var err error
			if op, err = n.CreateNewEVSEOperator(ctx, opID); err != nil {
				return err
			}
		}
		pool, ok := op.TryGetChargingPool(ids.ChargingPoolID(sd.Pool))
		if !ok {
			var err error
			if pool, err = op.CreateNewChargingPool(ctx, ids.ChargingPoolID(sd.Pool)); err != nil {
				return err
			}
		}
		st, err := pool.CreateNewChargingStation(ctx, ids.ChargingStationID(sd.ID))
		if err != nil {
			return err
		}
		for _, ed := range sd.EVSEs {
			var cfg []roaming.EVSEConfigurator
			if ed.Status != "" {
				cfg = append(cfg, roaming.WithEVSEStatus(model.Status(ed.Status)))
			}
			if ed.AdminStatus != "" {
				cfg = append(cfg, roaming.WithEVSEAdminStatus(model.AdminStatus(ed.AdminStatus)))
			}
			if _, err := st.CreateNewEVSE(ctx, ids.EVSEID(ed.ID), cfg...); err != nil {
				return err
			}
		}
	}
	for _, pd := range sc.Providers {
		allowed := make([]ids.AuthToken, len(pd.Allowed))
		for i, tok := range pd.Allowed {
			allowed[i] = ids.AuthToken(tok)
		}
		blocked := make([]ids.AuthToken, len(pd.Blocked))
		for i, tok := range pd.Blocked {
			blocked[i] = ids.AuthToken(tok)
		}
		if _, err := n.CreateNewEVServiceProvider(ctx, ids.ProviderID(pd.ID),
			roaming.WithProviderPriority(pd.Priority),
			roaming.WithAllowedTokens(allowed...),
			roaming.WithBlockedTokens(blocked...),
		); err != nil {
			return err
		}
	}
	return nil
}

// runStep executes the step and returns the result type it reported.
func runStep(ctx context.Context, n *roaming.RoamingNetwork, clk *clock, s StepDef) (string, error) {
	switch s.Op {
	case "reserve":
		t, err := s.target()
		if err != nil {
			return "", err
		}
		res, err := n.Reserve(ctx, coordinator.ReserveRequest{
			Target:        t,
			ReservationID: ids.ReservationID(s.Reservation),
			Duration:      s.duration(),
			ProviderID:    ids.ProviderID(s.Provider),
			AuthTokens:    s.tokens(),
		})
		return res.Kind(), err
	case "cancel":
		var reason model.CancelReason
		if err := reason.UnmarshalText([]byte(s.Reason)); err != nil {
			return "", err
		}
		res, err := n.CancelReservation(ctx, coordinator.CancelReservationRequest{
			ReservationID: ids.ReservationID(s.Reservation),
			Reason:        reason,
		})
		return res.Kind(), err
	case "remote_start":
		t, err := s.target()
		if err != nil {
			return "", err
		}
		res, err := n.RemoteStart(ctx, coordinator.RemoteStartRequest{
			Target:        t,
			ReservationID: ids.ReservationID(s.Reservation),
			SessionID:     ids.SessionID(s.Session),
			ProviderID:    ids.ProviderID(s.Provider),
			AuthToken:     ids.AuthToken(s.Token),
		})
		return res.Kind(), err
	case "remote_stop":
		handling := model.ReservationClose
		if s.KeepReservation {
			handling = model.ReservationKeepAlive
		}
		res, err := n.RemoteStop(ctx, coordinator.RemoteStopRequest{
			SessionID:  ids.SessionID(s.Session),
			Handling:   handling,
			ProviderID: ids.ProviderID(s.Provider),
		})
		return res.Kind(), err
	case "authorize_start":
		t, err := s.target()
		if err != nil {
			return "", err
		}
		res, err := n.AuthorizeStart(ctx, authorization.StartRequest{
			AuthToken: ids.AuthToken(s.Token),
			Target:    t,
			SessionID: ids.SessionID(s.Session),
		})
		return res.Kind(), err
	case "authorize_stop":
		res, err := n.AuthorizeStop(ctx, authorization.StopRequest{
			AuthToken: ids.AuthToken(s.Token),
			SessionID: ids.SessionID(s.Session),
		})
		return res.Kind(), err
	case "send_cdr":
		op, _ := ids.OperatorOf(s.Target)
		start := clk.Now().Add(-time.Hour)
		res, err := n.SendChargeDetailRecord(ctx, model.ChargeDetailRecord{
			SessionID:    ids.SessionID(s.Session),
			OperatorID:   op,
			EVSEID:       ids.EVSEID(s.Target),
			ProviderID:   ids.ProviderID(s.Provider),
			AuthToken:    ids.AuthToken(s.Token),
			SessionStart: start,
			SessionEnd:   clk.Now(),
			MeterStopKWh: s.MeterKWh,
		})
		return res.Kind(), err
	case "status":
		if err := n.UpdateEVSEStatus(ids.EVSEID(s.Target), model.Status(s.Status), clk.Now()); err != nil {
			return "", err
		}
		return "", nil
	case "meter":
		e, ok := n.TryGetEVSE(ids.EVSEID(s.Target))
		if !ok {
			return "", fmt.Errorf("unknown evse %s", s.Target)
		}
		e.SetMeterKWh(s.MeterKWh)
		return "", nil
	case "advance":
		clk.Advance(time.Duration(s.Seconds) * time.Second)
		return "", nil
	case "expire":
		return fmt.Sprint(n.ExpireReservations(ctx, clk.Now())), nil
	default:
		return "", fmt.Errorf("unknown operation %q", s.Op)
	}
}

// counted sums the samples of a counter family.
func counted(g prometheus.Gatherer, name string) int {
	mfs, err := g.Gather()
	if err != nil {
		return -1
	}
	total := 0.0
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return int(total)
}
