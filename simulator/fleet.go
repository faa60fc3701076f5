package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"
)

var fleetRng = rand.New(rand.NewSource(time.Now().UnixNano()))

// FleetConfig holds parameters for bulk EVSE generation.
type FleetConfig struct {
	Operator     string
	Size         int
	OfflineRate  float64
	Availability [24]float64
	Overrides    map[string]EVSETemplate
}

// EVSETemplate overrides the behaviour of one generated EVSE.
type EVSETemplate struct {
	Availability *float64 `json:"availability"`
	OfflineRate  *float64 `json:"offline_rate"`
	AdminStatus  string   `json:"admin_status"`
}

// GenerateEVSEs creates Size EVSEs with IDs <operator>*E0001..E<NNNN>.
func GenerateEVSEs(cfg FleetConfig) []SimulatedEVSE {
	if cfg.Size <= 0 {
		return nil
	}
	es := make([]SimulatedEVSE, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		id := fmt.Sprintf("%s*E%04d", cfg.Operator, i+1)
		e := SimulatedEVSE{
			ID:           id,
			OfflineRate:  cfg.OfflineRate,
			Availability: cfg.Availability,
		}
		if o, ok := cfg.Overrides[id]; ok {
			if o.Availability != nil {
				for h := range e.Availability {
					e.Availability[h] = *o.Availability
				}
			}
			if o.OfflineRate != nil {
				e.OfflineRate = *o.OfflineRate
			}
			e.AdminStatus = o.AdminStatus
		}
		es[i] = e
	}
	return es
}

// LoadAvailabilityProfile reads an hourly availability profile from JSON.
// Hours missing from the document keep a zero probability.
func LoadAvailabilityProfile(data []byte) ([24]float64, error) {
	var m map[string]float64
	var prof [24]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return prof, err
	}
	for h, v := range m {
		var hour int
		if _, err := fmt.Sscanf(h, "%d", &hour); err != nil {
			continue
		}
		if hour >= 0 && hour < 24 {
			prof[hour] = v
		}
	}
	return prof, nil
}

// FlatProfile returns a profile with the same availability at every hour.
func FlatProfile(p float64) [24]float64 {
	var prof [24]float64
	for i := range prof {
		prof[i] = p
	}
	return prof
}
