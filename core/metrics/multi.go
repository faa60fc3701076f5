package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordOperation forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordOperation(ev OperationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordOperation(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordCDR forwards charge detail records when supported by the sink.
func (m *MultiSink) RecordCDR(ev CDREvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(CDRRecorder); ok {
			if err := rec.RecordCDR(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordStatus forwards status changes when supported by the sink.
func (m *MultiSink) RecordStatus(ev StatusEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(StatusRecorder); ok {
			if err := rec.RecordStatus(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
