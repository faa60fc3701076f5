package main

import (
	"errors"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker        string
	Operator      string
	Count         int
	StatusPrefix  string
	HubPrefix     string
	HubID         string
	ProviderID    string
	Interval      time.Duration
	AnswerLatency time.Duration
	DropRate      float64
	RejectRate    float64
	OfflineRate   float64
	BlockedTokens []string
	Availability  string
	OverridesFile string
	Verbose       bool
	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
}

// Validate checks the simulator parameters.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if c.Count < 0 {
		return errors.New("count must be >= 0")
	}
	if c.Count > 0 && c.Operator == "" {
		return errors.New("operator is required when simulating EVSEs")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be > 0")
	}
	for name, r := range map[string]float64{"drop-rate": c.DropRate, "reject-rate": c.RejectRate, "offline-rate": c.OfflineRate} {
		if r < 0 || r > 1 {
			return errors.New(name + " must be within [0,1]")
		}
	}
	return nil
}
