// Package handlers contains the Flight action and ticket handlers.
package handlers

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
)

// QueryHandler handles query-related operations.
type QueryHandler interface {
	// ExecuteBatch runs a JSON encoded QueryBatch and returns one Arrow IPC
	// stream per frame, in target order.
	ExecuteBatch(ctx context.Context, body []byte) ([][]byte, error)

	// ExecuteTicket runs the single JSON encoded QueryTarget in ticket.
	ExecuteTicket(ctx context.Context, ticket []byte) (*arrow.Schema, <-chan flight.StreamChunk, error)

	// MetricFind runs a JSON encoded QueryTarget and returns its options as JSON.
	MetricFind(ctx context.Context, body []byte) ([]byte, error)
}

// HealthHandler handles connectivity probes.
type HealthHandler interface {
	// Check returns the JSON encoded HealthResult.
	Check(ctx context.Context) ([]byte, error)
}

// Logger defines the logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines the metrics interface.
type MetricsCollector interface {
	IncrementCounter(name string, tags ...string)
	RecordHistogram(name string, value float64, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop()
}
