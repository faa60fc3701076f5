package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kilianp07/roaming/core/ids"
)

func TestReservationWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := Reservation{StartTime: start, Duration: 15 * time.Minute}
	if !r.EndTime().Equal(start.Add(15 * time.Minute)) {
		t.Fatalf("unexpected end %v", r.EndTime())
	}
	if r.IsExpired(start.Add(14 * time.Minute)) {
		t.Fatalf("expired too early")
	}
	if !r.IsExpired(start.Add(15 * time.Minute)) {
		t.Fatalf("expected expired at end time")
	}
}

func TestReservationAllows(t *testing.T) {
	open := Reservation{}
	if !open.Allows("any") {
		t.Fatalf("empty token list must accept any token")
	}
	r := Reservation{AuthTokens: []ids.AuthToken{"A", "B"}}
	if !r.Allows("B") || r.Allows("C") {
		t.Fatalf("token filter mismatch")
	}
}

func TestCDREnergyAndDuration(t *testing.T) {
	start := time.Now()
	c := ChargeDetailRecord{SessionStart: start, SessionEnd: start.Add(time.Hour), MeterStartKWh: 10, MeterStopKWh: 32.5}
	if c.EnergyKWh() != 22.5 {
		t.Fatalf("energy %f", c.EnergyKWh())
	}
	if c.Duration() != time.Hour {
		t.Fatalf("duration %v", c.Duration())
	}
	c.MeterStopKWh = 5
	if c.EnergyKWh() != 0 {
		t.Fatalf("negative energy must clamp to zero")
	}
}

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{LevelEVSE, LevelChargingStation, LevelChargingPool} {
		got, ok := ParseLevel(l.String())
		if !ok || got != l {
			t.Fatalf("roundtrip %v", l)
		}
	}
	if _, ok := ParseLevel("planet"); ok {
		t.Fatalf("expected unknown level")
	}
}

func TestAdminStatusUsable(t *testing.T) {
	if !AdminOperational.Usable() || AdminBlocked.Usable() || AdminOutOfService.Usable() {
		t.Fatalf("usable mismatch")
	}
	if !StatusCharging.Valid() || Status("x").Valid() {
		t.Fatalf("status validity mismatch")
	}
}

func TestEnumsRoundTripAsText(t *testing.T) {
	type payload struct {
		Level    Level               `json:"level"`
		Reason   CancelReason        `json:"reason"`
		Handling ReservationHandling `json:"handling"`
		Kind     EntityKind          `json:"kind"`
	}
	in := payload{Level: LevelChargingPool, Reason: CancelExpired, Handling: ReservationKeepAlive, Kind: KindEVSE}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"level":"charging_pool","reason":"expired","handling":"keep_alive","kind":"evse"}`
	if string(data) != want {
		t.Fatalf("got %s", data)
	}
	var out struct {
		Level    Level               `json:"level"`
		Reason   CancelReason        `json:"reason"`
		Handling ReservationHandling `json:"handling"`
	}
	if err := json.Unmarshal([]byte(`{"level":"station","reason":"aborted","handling":"keep_alive"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Level != LevelChargingStation || out.Reason != CancelAborted || out.Handling != ReservationKeepAlive {
		t.Fatalf("unexpected %+v", out)
	}
	if err := json.Unmarshal([]byte(`{"level":"planet"}`), &out); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
