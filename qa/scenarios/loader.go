package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
)

type EVSEDef struct {
	ID          string `yaml:"id"`
	Status      string `yaml:"status,omitempty"`
	AdminStatus string `yaml:"admin_status,omitempty"`
}

type StationDef struct {
	ID    string    `yaml:"id"`
	Pool  string    `yaml:"pool"`
	EVSEs []EVSEDef `yaml:"evses"`
}

type ProviderDef struct {
	ID       string   `yaml:"id"`
	Priority int      `yaml:"priority,omitempty"`
	Allowed  []string `yaml:"allowed,omitempty"`
	Blocked  []string `yaml:"blocked,omitempty"`
}

// StepDef is one operation of a scenario. Expect is the result type the
// operation must report, "error" when the request itself must be rejected.
type StepDef struct {
	Op              string   `yaml:"op"`
	Level           string   `yaml:"level,omitempty"`
	Target          string   `yaml:"target,omitempty"`
	Reservation     string   `yaml:"reservation,omitempty"`
	Session         string   `yaml:"session,omitempty"`
	Provider        string   `yaml:"provider,omitempty"`
	Token           string   `yaml:"token,omitempty"`
	Tokens          []string `yaml:"tokens,omitempty"`
	DurationSeconds int      `yaml:"duration_seconds,omitempty"`
	Reason          string   `yaml:"reason,omitempty"`
	KeepReservation bool     `yaml:"keep_reservation,omitempty"`
	Status          string   `yaml:"status,omitempty"`
	MeterKWh        float64  `yaml:"meter_kwh,omitempty"`
	Seconds         int      `yaml:"seconds,omitempty"`
	Expect          string   `yaml:"expect,omitempty"`
}

func (s StepDef) target() (coordinator.Target, error) {
	lvl, ok := model.ParseLevel(s.Level)
	if !ok {
		return coordinator.Target{}, fmt.Errorf("unknown level %q", s.Level)
	}
	return coordinator.Target{Level: lvl, ID: s.Target}, nil
}

func (s StepDef) duration() time.Duration { return time.Duration(s.DurationSeconds) * time.Second }

func (s StepDef) tokens() []ids.AuthToken {
	out := make([]ids.AuthToken, len(s.Tokens))
	for i, t := range s.Tokens {
		out[i] = ids.AuthToken(t)
	}
	return out
}

type Expected struct {
	Reservations int     `yaml:"reservations"`
	Sessions     int     `yaml:"sessions"`
	CDRs         int     `yaml:"cdrs"`
	EnergyKWh    float64 `yaml:"energy_kwh"`
}

type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Stations    []StationDef  `yaml:"stations"`
	Providers   []ProviderDef `yaml:"providers"`
	Steps       []StepDef     `yaml:"steps"`
	Expected    Expected      `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
