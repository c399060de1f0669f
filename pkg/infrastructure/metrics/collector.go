// Package metrics records what the query bridge does: batches and targets
// run against the grid, Flight calls served, and Arrow memory held.
//
// Names are plain snake_case without a namespace; the Prometheus collector
// adds the "ignis" prefix. Labels are passed as alternating key/value pairs.
package metrics

import (
	"time"
)

// Collector receives the bridge's observations. Services reach it through
// small adapters so they never import Prometheus.
type Collector interface {
	// IncrementCounter bumps a count, e.g. query_target_errors or
	// flight_calls{method,type,code}.
	IncrementCounter(name string, labels ...string)

	// RecordHistogram observes a distribution sample, e.g. rows per frame.
	RecordHistogram(name string, value float64, labels ...string)

	// RecordGauge sets a level, e.g. allocator bytes or schema cache entries.
	RecordGauge(name string, value float64, labels ...string)

	// StartTimer measures one operation; Stop records <name>_duration_seconds.
	StartTimer(name string) Timer
}

// Timer is a running measurement started by Collector.StartTimer.
type Timer interface {
	// Stop ends the measurement and returns the elapsed seconds.
	Stop() float64
}

// NoOpCollector discards everything. The one-shot CLI uses it.
type NoOpCollector struct{}

// NewNoOpCollector returns a Collector that records nothing.
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

func (n *NoOpCollector) IncrementCounter(string, ...string)          {}
func (n *NoOpCollector) RecordHistogram(string, float64, ...string) {}
func (n *NoOpCollector) RecordGauge(string, float64, ...string)     {}

// StartTimer still measures time so callers can log the elapsed seconds.
func (n *NoOpCollector) StartTimer(string) Timer {
	return elapsed(time.Now())
}

type elapsed time.Time

func (e elapsed) Stop() float64 {
	return time.Since(time.Time(e)).Seconds()
}
