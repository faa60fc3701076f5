package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/roaming/core/kpi"
	coremetrics "github.com/kilianp07/roaming/core/metrics"
)

// KPISink aggregates charge detail records into daily operator KPIs.
type KPISink struct {
	store    kpi.Store
	sessions *prometheus.GaugeVec
	energy   *prometheus.GaugeVec
	avg      *prometheus.GaugeVec
}

// NewKPISink creates a sink with Prometheus gauges registered on reg.
func NewKPISink(store kpi.Store, reg prometheus.Registerer) (*KPISink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	sessions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "operator_daily_sessions",
		Help: "Daily charging sessions per operator",
	}, []string{"operator_id", "day"})
	energy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "operator_daily_energy_kwh",
		Help: "Daily delivered energy per operator",
	}, []string{"operator_id", "day"})
	avg := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "operator_daily_avg_session_energy_kwh",
		Help: "Daily mean energy per session and operator",
	}, []string{"operator_id", "day"})
	var err error
	if sessions, err = register(reg, sessions); err != nil {
		return nil, err
	}
	if energy, err = register(reg, energy); err != nil {
		return nil, err
	}
	if avg, err = register(reg, avg); err != nil {
		return nil, err
	}
	return &KPISink{store: store, sessions: sessions, energy: energy, avg: avg}, nil
}

// RecordOperation is a no-op; only charge detail records feed KPIs.
func (s *KPISink) RecordOperation(coremetrics.OperationEvent) error { return nil }

// RecordCDR adds the record to the store and refreshes the gauges of its day.
func (s *KPISink) RecordCDR(ev coremetrics.CDREvent) error {
	if ev.CDR.OperatorID == "" {
		return nil
	}
	rec := kpi.FromCDR(ev.CDR)
	if err := s.store.Add(rec); err != nil {
		return err
	}
	records, err := s.store.Query(rec.OperatorID, rec.Date, rec.Date)
	if err != nil || len(records) == 0 {
		return err
	}
	r := records[0]
	day := r.Date.Format("2006-01-02")
	s.sessions.WithLabelValues(r.OperatorID, day).Set(float64(r.Sessions))
	s.energy.WithLabelValues(r.OperatorID, day).Set(r.EnergyKWh)
	s.avg.WithLabelValues(r.OperatorID, day).Set(r.AvgEnergyKWh())
	return nil
}

// Store returns the underlying KPI store.
func (s *KPISink) Store() kpi.Store { return s.store }

// FindKPIStore returns the store of the first KPI sink in sink, looking
// into multi sinks.
func FindKPIStore(sink coremetrics.MetricsSink) (kpi.Store, bool) {
	switch s := sink.(type) {
	case *KPISink:
		return s.store, true
	case *coremetrics.MultiSink:
		for _, child := range s.Sinks {
			if st, ok := FindKPIStore(child); ok {
				return st, true
			}
		}
	}
	return nil, false
}
