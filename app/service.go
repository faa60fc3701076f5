// Package app wires the roaming network with its transports, sinks and HTTP
// surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/roaming/api"
	"github.com/kilianp07/roaming/config"
	"github.com/kilianp07/roaming/core/journal"
	"github.com/kilianp07/roaming/core/kpi"
	coremetrics "github.com/kilianp07/roaming/core/metrics"
	coremon "github.com/kilianp07/roaming/core/monitoring"
	coremqtt "github.com/kilianp07/roaming/core/mqtt"
	"github.com/kilianp07/roaming/core/roaming"
	"github.com/kilianp07/roaming/infra/logger"
	"github.com/kilianp07/roaming/infra/metrics"
	"github.com/kilianp07/roaming/infra/monitoring"
	"github.com/kilianp07/roaming/infra/mqtt"
	"github.com/kilianp07/roaming/infra/statusfeed"
	"github.com/kilianp07/roaming/internal/eventbus"
)

const tracerName = "github.com/kilianp07/roaming"

// Service orchestrates the roaming network and its adapters.
type Service struct {
	Network *roaming.RoamingNetwork

	cfg     *config.Config
	bus     *eventbus.Bus
	log     logger.Logger
	sink    coremetrics.MetricsSink
	journal journal.Store
	kpi     kpi.Store
	client  coremqtt.Client
	hubs    []*mqtt.Hub
	feed    *statusfeed.Manager
	handler http.Handler
}

// Option customizes a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	client   coremqtt.Client
	registry prometheus.Registerer
	gatherer prometheus.Gatherer
}

// WithMQTTClient uses cli instead of dialing the configured broker.
func WithMQTTClient(cli coremqtt.Client) Option {
	return func(o *serviceOptions) { o.client = cli }
}

// WithRegistry registers the service collectors on reg and serves g.
func WithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) Option {
	return func(o *serviceOptions) {
		o.registry = reg
		o.gatherer = g
	}
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	o := serviceOptions{registry: prometheus.DefaultRegisterer, gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(&o)
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	bus := eventbus.New()
	net, err := BuildNetwork(ctx, cfg,
		roaming.WithLogger(logger.New("network")),
		roaming.WithBus(bus),
		roaming.WithTracer(otel.Tracer(tracerName)),
	)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	kpiStore, _ := metrics.FindKPIStore(sink)

	store, err := OpenJournal(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	svc := &Service{
		Network: net,
		cfg:     cfg,
		bus:     bus,
		log:     logg,
		sink:    sink,
		journal: store,
		kpi:     kpiStore,
		client:  o.client,
	}
	if err := svc.attachMQTT(ctx, o.registry); err != nil {
		_ = store.Close()
		return nil, err
	}
	svc.handler = api.NewRouter(api.Deps{
		Network:      net,
		Journal:      store,
		JournalToken: cfg.API.JournalToken,
		KPI:          kpiStore,
		Gatherer:     o.gatherer,
		MetricsPath:  cfg.API.MetricsPath,
		Logger:       logger.New("api"),
	})
	return svc, nil
}

// attachMQTT connects the roaming provider hubs and the status feed.
func (s *Service) attachMQTT(ctx context.Context, reg prometheus.Registerer) error {
	if len(s.cfg.RoamingProviders) == 0 && !s.cfg.StatusFeed.Enabled {
		return nil
	}
	if s.client == nil {
		cli, err := mqtt.NewPahoClient(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.client = cli
	}
	for _, hc := range s.cfg.RoamingProviders {
		hub, err := mqtt.NewHub(hc, s.client,
			mqtt.WithCommandHandler(s.Network),
			mqtt.WithHubLogger(logger.New("hub_"+hc.ID)),
		)
		if err != nil {
			return fmt.Errorf("roaming provider %s: %w", hc.ID, err)
		}
		if err := s.Network.RegisterRoamingProvider(ctx, hub); err != nil {
			return fmt.Errorf("roaming provider %s: %w", hc.ID, err)
		}
		s.hubs = append(s.hubs, hub)
	}
	if s.cfg.StatusFeed.Enabled {
		feed, err := statusfeed.NewManager(s.client, s.cfg.StatusFeed, s.Network, reg)
		if err != nil {
			return fmt.Errorf("status feed: %w", err)
		}
		s.feed = feed
	}
	return nil
}

// Handler returns the HTTP handler of the service.
func (s *Service) Handler() http.Handler { return s.handler }

// KPIStore returns the KPI store fed by the metrics sinks, if any.
func (s *Service) KPIStore() (kpi.Store, bool) { return s.kpi, s.kpi != nil }

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	metrics.StartEventCollector(ctx, s.bus, s.sink)
	journal.StartRecorder(ctx, s.bus, s.journal, logger.New("journal"), s.cfg.Journal.Levels...)

	for _, h := range s.hubs {
		if err := h.Start(); err != nil {
			return fmt.Errorf("roaming provider %s: %w", h.ID(), err)
		}
	}
	if s.feed != nil {
		g.Go(func() error { return s.feed.Start(ctx) })
	}
	g.Go(func() error {
		s.sweepReservations(ctx, s.cfg.Coordinator.ExpirySweep())
		return nil
	})
	g.Go(func() error { return api.Serve(ctx, s.cfg.API.Address, s.handler, s.log) })

	s.log.Infof("roaming network %s running", s.Network.ID())
	return g.Wait()
}

// sweepReservations releases expired reservations every interval.
func (s *Service) sweepReservations(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Network.ExpireReservations(ctx, now); n > 0 {
				s.log.Infof("released %d expired reservations", n)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	for _, h := range s.hubs {
		errs = append(errs, h.Close())
	}
	if d, ok := s.client.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	s.bus.Close()
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
