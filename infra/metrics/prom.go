package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/roaming/core/metrics"
)

// PromSink records network level outcomes, charge detail records and EVSE
// statuses in Prometheus metrics. Per level operation counters are kept by
// the coordinator itself.
type PromSink struct {
	requests *prometheus.HistogramVec
	cdrs     *prometheus.CounterVec
	energy   *prometheus.CounterVec
	statuses *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roaming_request_duration_seconds",
		Help:    "End to end duration of requests entering the network",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})
	cdrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaming_cdrs_total",
		Help: "Charge detail records by forwarding outcome",
	}, []string{"operator_id", "result"})
	energy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaming_cdr_energy_kwh_total",
		Help: "Energy reported by charge detail records",
	}, []string{"operator_id"})
	statuses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaming_status_changes_total",
		Help: "Status changes by entity kind and new status",
	}, []string{"kind", "status", "admin"})

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if cdrs, err = register(reg, cdrs); err != nil {
		return nil, err
	}
	if energy, err = register(reg, energy); err != nil {
		return nil, err
	}
	if statuses, err = register(reg, statuses); err != nil {
		return nil, err
	}
	return &PromSink{requests: requests, cdrs: cdrs, energy: energy, statuses: statuses}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordOperation observes requests completed at the network or by the
// authorization dispatcher.
func (s *PromSink) RecordOperation(ev coremetrics.OperationEvent) error {
	if ev.Level != "network" && ev.Level != "authorization" {
		return nil
	}
	s.requests.WithLabelValues(ev.Operation, ev.Result).Observe(ev.Runtime.Seconds())
	return nil
}

// RecordCDR counts the record and its energy.
func (s *PromSink) RecordCDR(ev coremetrics.CDREvent) error {
	op := string(ev.CDR.OperatorID)
	s.cdrs.WithLabelValues(op, ev.Result).Inc()
	s.energy.WithLabelValues(op).Add(ev.CDR.EnergyKWh())
	return nil
}

// RecordStatus counts the status change.
func (s *PromSink) RecordStatus(ev coremetrics.StatusEvent) error {
	s.statuses.WithLabelValues(ev.Kind, ev.Status, strconv.FormatBool(ev.Admin)).Inc()
	return nil
}
