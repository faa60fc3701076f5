package main

import (
	"testing"
)

func TestGenerateEVSEsCount(t *testing.T) {
	es := GenerateEVSEs(FleetConfig{Operator: "DE*SIM", Size: 5})
	if len(es) != 5 {
		t.Fatalf("expected 5 EVSEs, got %d", len(es))
	}
	if es[0].ID != "DE*SIM*E0001" || es[4].ID != "DE*SIM*E0005" {
		t.Fatalf("unexpected ids %s %s", es[0].ID, es[4].ID)
	}
}

func TestGenerateEVSEsEmpty(t *testing.T) {
	if es := GenerateEVSEs(FleetConfig{Operator: "DE*SIM"}); es != nil {
		t.Fatalf("expected no EVSEs, got %d", len(es))
	}
}

func TestOverrides(t *testing.T) {
	avail := 0.25
	offline := 1.0
	cfg := FleetConfig{
		Operator:     "DE*SIM",
		Size:         3,
		OfflineRate:  0.1,
		Availability: FlatProfile(1),
		Overrides: map[string]EVSETemplate{
			"DE*SIM*E0002": {Availability: &avail, OfflineRate: &offline, AdminStatus: "out_of_service"},
		},
	}
	es := GenerateEVSEs(cfg)
	if es[1].Availability[13] != 0.25 || es[1].OfflineRate != 1 || es[1].AdminStatus != "out_of_service" {
		t.Fatalf("override not applied: %+v", es[1])
	}
	if es[0].Availability[13] != 1 || es[0].OfflineRate != 0.1 {
		t.Fatalf("override leaked to %s", es[0].ID)
	}
}

func TestLoadAvailability(t *testing.T) {
	data := []byte(`{"0":0.1,"1":0.2,"2":0.3,"x":1,"30":1}`)
	prof, err := LoadAvailabilityProfile(data)
	if err != nil {
		t.Fatal(err)
	}
	if prof[2] != 0.3 {
		t.Fatalf("expected 0.3 got %f", prof[2])
	}
	if prof[3] != 0 {
		t.Fatalf("expected 0 for missing hour got %f", prof[3])
	}
}

func TestLoadAvailabilityError(t *testing.T) {
	_, err := LoadAvailabilityProfile([]byte(`invalid`))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestConfigValidate(t *testing.T) {
	ok := Config{Broker: "tcp://localhost:1883", Operator: "DE*SIM", Count: 1, Interval: 1}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := ok
	bad.DropRate = 2
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for drop rate")
	}
	bad = ok
	bad.Operator = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing operator")
	}
}
