package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/coordinator"
)

// CoordinatorConfig tunes reservations.
type CoordinatorConfig struct {
	MaxReservationMinutes int `json:"max_reservation_minutes"`
	ExpirySweepSeconds    int `json:"expiry_sweep_seconds"`
}

// SetDefaults applies the default reservation cap and sweep period.
func (c *CoordinatorConfig) SetDefaults() {
	if c.MaxReservationMinutes <= 0 {
		c.MaxReservationMinutes = int(coordinator.DefaultMaxReservationDuration / time.Minute)
	}
	if c.ExpirySweepSeconds <= 0 {
		c.ExpirySweepSeconds = 30
	}
}

// Validate rejects negative values left after defaults.
func (c CoordinatorConfig) Validate() error {
	if c.MaxReservationMinutes < 0 || c.ExpirySweepSeconds < 0 {
		return fmt.Errorf("coordinator: durations must not be negative")
	}
	return nil
}

// MaxReservation returns the reservation cap.
func (c CoordinatorConfig) MaxReservation() time.Duration {
	return time.Duration(c.MaxReservationMinutes) * time.Minute
}

// ExpirySweep returns the period of the reservation expiry sweep.
func (c CoordinatorConfig) ExpirySweep() time.Duration {
	return time.Duration(c.ExpirySweepSeconds) * time.Second
}

// AuthorizationConfig selects the dispatcher scan policies.
type AuthorizationConfig struct {
	StartPolicy string `json:"start_policy"`
	StopPolicy  string `json:"stop_policy"`
}

// Policies resolves the configured names; empty names keep the defaults.
func (c AuthorizationConfig) Policies() (start, stop authorization.Policy, err error) {
	if start, err = authorization.ParsePolicy(c.StartPolicy, authorization.StopOnAuthorizedOrBlocked); err != nil {
		return start, stop, err
	}
	stop, err = authorization.ParsePolicy(c.StopPolicy, authorization.StopOnAuthorized)
	return start, stop, err
}

// Validate checks the policy names.
func (c AuthorizationConfig) Validate() error {
	if _, _, err := c.Policies(); err != nil {
		return fmt.Errorf("authorization: %w", err)
	}
	return nil
}

// ProviderConfig declares a local e-mobility provider and its tokens.
type ProviderConfig struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Priority      int      `json:"priority"`
	AllowedTokens []string `json:"allowed_tokens"`
	BlockedTokens []string `json:"blocked_tokens"`
}

// Validate requires an id.
func (c ProviderConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("providers: id is required")
	}
	return nil
}
