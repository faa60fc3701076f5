package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/roaming/core/metrics"
	"github.com/kilianp07/roaming/infra/mqtt"
)

// Config is the service configuration.
type Config struct {
	Network          NetworkConfig       `json:"network"`
	Coordinator      CoordinatorConfig   `json:"coordinator"`
	Authorization    AuthorizationConfig `json:"authorization"`
	Providers        []ProviderConfig    `json:"providers"`
	RoamingProviders []mqtt.HubConfig    `json:"roaming_providers"`
	MQTT             mqtt.Config         `json:"mqtt"`
	StatusFeed       StatusFeedConfig    `json:"status_feed"`
	Metrics          metrics.Config      `json:"metrics"`
	Journal          JournalConfig       `json:"journal"`
	Sentry           SentryConfig        `json:"sentry"`
	API              APIConfig           `json:"api"`
}

// Load reads the yaml or json file at path, applies K_ prefixed environment
// overrides, then defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Network.SetDefaults()
	c.Coordinator.SetDefaults()
	c.StatusFeed.SetDefaults()
	c.Journal.SetDefaults()
	c.API.SetDefaults()
	for i := range c.RoamingProviders {
		c.RoamingProviders[i].SetDefaults()
	}
}

// Validate checks every section and reports all failures at once.
func (c Config) Validate() error {
	errs := []error{
		c.Network.Validate(),
		c.Coordinator.Validate(),
		c.Authorization.Validate(),
		c.StatusFeed.Validate(),
		c.Metrics.Validate(),
		c.Journal.Validate(),
		c.Sentry.Validate(),
		c.API.Validate(),
	}
	seen := map[string]bool{}
	for _, p := range c.Providers {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("providers: duplicate id %s", p.ID))
		}
		seen[p.ID] = true
	}
	for _, h := range c.RoamingProviders {
		if err := h.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("roaming_providers: %w", err))
			continue
		}
		if seen[h.ID] {
			errs = append(errs, fmt.Errorf("roaming_providers: duplicate id %s", h.ID))
		}
		seen[h.ID] = true
	}
	if (len(c.RoamingProviders) > 0 || c.StatusFeed.Enabled) && c.MQTT.Broker == "" {
		errs = append(errs, fmt.Errorf("mqtt: broker is required by roaming providers and the status feed"))
	}
	return errors.Join(errs...)
}
