package config

import (
	"errors"
	"fmt"

	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/status"
)

// NetworkConfig describes the roaming network and its static topology.
type NetworkConfig struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Aggregator    string           `json:"status_aggregator"`
	StatusHistory int              `json:"status_history"`
	Operators     []OperatorConfig `json:"operators"`
}

// OperatorConfig describes an EVSE operator and its pools.
type OperatorConfig struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	AdminStatus string       `json:"admin_status"`
	Pools       []PoolConfig `json:"pools"`
}

// PoolConfig describes a charging pool and its stations.
type PoolConfig struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Address     string          `json:"address"`
	AdminStatus string          `json:"admin_status"`
	Stations    []StationConfig `json:"stations"`
}

// StationConfig describes a charging station and its EVSEs.
type StationConfig struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	AdminStatus string       `json:"admin_status"`
	EVSEs       []EVSEConfig `json:"evses"`
}

// EVSEConfig describes one EVSE.
type EVSEConfig struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	MaxPowerKW  float64 `json:"max_power_kw"`
	Status      string  `json:"status"`
	AdminStatus string  `json:"admin_status"`
}

// SetDefaults names the network and picks the default aggregator.
func (c *NetworkConfig) SetDefaults() {
	if c.ID == "" {
		c.ID = "roaming"
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Aggregator == "" {
		c.Aggregator = "best_available"
	}
	if c.StatusHistory <= 0 {
		c.StatusHistory = status.DefaultCapacity
	}
}

func checkAdmin(kind, id, s string) error {
	if s != "" && !model.AdminStatus(s).Valid() {
		return fmt.Errorf("network: %s %s: unknown admin status %q", kind, id, s)
	}
	return nil
}

// Validate checks identifiers, statuses and the aggregator name.
func (c NetworkConfig) Validate() error {
	var errs []error
	if _, err := status.AggregatorByName(c.Aggregator); err != nil {
		errs = append(errs, fmt.Errorf("network: %w", err))
	}
	for _, o := range c.Operators {
		if _, err := ids.ParseOperatorID(o.ID); err != nil {
			errs = append(errs, fmt.Errorf("network: %w", err))
		}
		errs = append(errs, checkAdmin("operator", o.ID, o.AdminStatus))
		for _, p := range o.Pools {
			if _, err := ids.ParseChargingPoolID(p.ID); err != nil {
				errs = append(errs, fmt.Errorf("network: %w", err))
			}
			errs = append(errs, checkAdmin("pool", p.ID, p.AdminStatus))
			for _, s := range p.Stations {
				if _, err := ids.ParseChargingStationID(s.ID); err != nil {
					errs = append(errs, fmt.Errorf("network: %w", err))
				}
				errs = append(errs, checkAdmin("station", s.ID, s.AdminStatus))
				for _, e := range s.EVSEs {
					if _, err := ids.ParseEVSEID(e.ID); err != nil {
						errs = append(errs, fmt.Errorf("network: %w", err))
					}
					if e.Status != "" && !model.Status(e.Status).Valid() {
						errs = append(errs, fmt.Errorf("network: evse %s: unknown status %q", e.ID, e.Status))
					}
					errs = append(errs, checkAdmin("evse", e.ID, e.AdminStatus))
				}
			}
		}
	}
	return errors.Join(errs...)
}
