// Package infra groups the adapters of the roaming network: the MQTT hub
// transport and status feed, metrics and KPI sinks, zerolog logging and
// Sentry reporting. Adapters implement the interfaces declared under core.
package infra
