// Package metrics defines the sinks fed by the roaming network. Sinks like
// PromSink and InfluxSink record completed operations, charge detail records
// and status changes and can be combined with NewMultiSink. The factory
// helpers return a MultiSink automatically when multiple sinks are
// configured.
package metrics
