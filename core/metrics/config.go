package metrics

import (
	"fmt"

	"github.com/kilianp07/roaming/core/factory"
)

// Config lists the metrics sinks fed by the event collector. An empty list
// disables metrics export.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}

// Validate checks that every sink names a type.
func (c Config) Validate() error {
	for i, s := range c.Sinks {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("metrics: sink %d: %w", i, err)
		}
	}
	return nil
}
