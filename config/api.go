package config

import "fmt"

// APIConfig configures the HTTP API.
type APIConfig struct {
	Address string `json:"address"`
	// JournalToken protects the journal endpoint. Empty disables the check.
	JournalToken string `json:"journal_token"`
	MetricsPath  string `json:"metrics_path"`
}

// SetDefaults applies the listen address and metrics path.
func (c *APIConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
}

// Validate checks the metrics path.
func (c APIConfig) Validate() error {
	if c.MetricsPath != "" && c.MetricsPath[0] != '/' {
		return fmt.Errorf("api: metrics_path must start with /")
	}
	return nil
}
