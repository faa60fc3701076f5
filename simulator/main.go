package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/logger"
	coremetrics "github.com/kilianp07/roaming/core/metrics"
	infralogger "github.com/kilianp07/roaming/infra/logger"
	"github.com/kilianp07/roaming/infra/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg Config
	cmd := &cobra.Command{
		Use:          "simulator",
		Short:        "Simulate EVSE status feeds and a roaming hub over MQTT",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	f.StringVar(&cfg.Operator, "operator", "DE*SIM", "EVSE operator id used to name simulated EVSEs")
	f.IntVar(&cfg.Count, "count", 1, "number of simulated EVSEs")
	f.StringVar(&cfg.StatusPrefix, "status-prefix", "roaming/status", "status feed topic prefix")
	f.StringVar(&cfg.HubPrefix, "hub-prefix", "roaming/hub", "roaming hub topic prefix")
	f.StringVar(&cfg.HubID, "hub", "", "answer requests for this roaming hub id")
	f.StringVar(&cfg.ProviderID, "provider", "SIM-EMP", "provider id reported in authorizations")
	f.DurationVar(&cfg.Interval, "interval", 30*time.Second, "status publish interval")
	f.DurationVar(&cfg.AnswerLatency, "answer-latency", 0, "hub answer latency")
	f.Float64Var(&cfg.DropRate, "drop-rate", 0, "probability of dropping a hub request")
	f.Float64Var(&cfg.RejectRate, "reject-rate", 0, "probability of rejecting a hub request")
	f.Float64Var(&cfg.OfflineRate, "offline-rate", 0, "probability of an EVSE reporting offline")
	f.StringSliceVar(&cfg.BlockedTokens, "blocked", nil, "tokens the hub reports as blocked")
	f.StringVar(&cfg.Availability, "availability-file", "", "hourly availability JSON")
	f.StringVar(&cfg.OverridesFile, "overrides-file", "", "per EVSE overrides JSON")
	f.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	f.StringVar(&cfg.InfluxURL, "influx-url", "", "InfluxDB URL")
	f.StringVar(&cfg.InfluxToken, "influx-token", "", "InfluxDB token")
	f.StringVar(&cfg.InfluxOrg, "influx-org", "", "InfluxDB organization")
	f.StringVar(&cfg.InfluxBucket, "influx-bucket", "", "InfluxDB bucket")
	return cmd
}

func run(ctx context.Context, cfg Config) error {
	var log logger.Logger = logger.NopLogger{}
	if cfg.Verbose {
		log = infralogger.New("simulator")
	}

	var sink coremetrics.MetricsSink = coremetrics.NopSink{}
	if cfg.InfluxURL != "" {
		sink = metrics.NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	}
	rec, _ := sink.(coremetrics.StatusRecorder)

	prof := FlatProfile(1)
	if cfg.Availability != "" {
		var err error
		if prof, err = readAvailabilityFile(cfg.Availability); err != nil {
			return fmt.Errorf("availability file: %w", err)
		}
	}
	overrides, err := readOverridesFile(cfg.OverridesFile)
	if err != nil {
		return fmt.Errorf("overrides file: %w", err)
	}

	evses := GenerateEVSEs(FleetConfig{
		Operator:     cfg.Operator,
		Size:         cfg.Count,
		OfflineRate:  cfg.OfflineRate,
		Availability: prof,
		Overrides:    overrides,
	})

	var wg sync.WaitGroup
	if cfg.HubID != "" {
		h := &HubResponder{
			HubID:    cfg.HubID,
			Prefix:   cfg.HubPrefix,
			Broker:   cfg.Broker,
			Strategy: newStrategy(cfg),
			Log:      log,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Run(ctx); err != nil {
				log.Errorf("hub %s: %v", h.HubID, err)
			}
		}()
	}
	runEVSEs(ctx, &wg, evses, cfg, rec, log)
	wg.Wait()
	return nil
}

func newStrategy(cfg Config) AnswerStrategy {
	blocked := make(map[ids.AuthToken]bool, len(cfg.BlockedTokens))
	for _, t := range cfg.BlockedTokens {
		blocked[ids.AuthToken(t)] = true
	}
	auto := AutoAnswer{Delay: cfg.AnswerLatency, ProviderID: ids.ProviderID(cfg.ProviderID), Blocked: blocked}
	if cfg.DropRate == 0 && cfg.RejectRate == 0 {
		return auto
	}
	return RandomAnswer{AutoAnswer: auto, DropRate: cfg.DropRate, RejectRate: cfg.RejectRate}
}

func readAvailabilityFile(path string) ([24]float64, error) {
	var prof [24]float64
	data, err := os.ReadFile(path)
	if err != nil {
		return prof, err
	}
	return LoadAvailabilityProfile(data)
}

func readOverridesFile(path string) (map[string]EVSETemplate, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]EVSETemplate
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func runEVSEs(ctx context.Context, wg *sync.WaitGroup, evses []SimulatedEVSE, cfg Config, rec coremetrics.StatusRecorder, log logger.Logger) {
	for i := range evses {
		e := &evses[i]
		e.Broker = cfg.Broker
		e.StatusPrefix = cfg.StatusPrefix
		e.Interval = cfg.Interval
		e.Metrics = rec
		e.Log = log
		wg.Add(1)
		go func(e *SimulatedEVSE) {
			defer wg.Done()
			if err := e.Run(ctx); err != nil {
				log.Errorf("%s: %v", e.ID, err)
			}
		}(e)
	}
}
