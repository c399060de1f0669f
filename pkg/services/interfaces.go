// Package services contains business logic implementations.
package services

import (
	"context"
	"time"

	"github.com/TFMV/ignis/pkg/models"
)

// QueryService runs query batches against the grid.
type QueryService interface {
	// Query validates targets, checks their caches and executes them,
	// returning one frame per validated target in target order.
	Query(ctx context.Context, targets []models.QueryTarget) (*models.QueryResponse, error)
	// MetricFindQuery runs a single target and returns its first column as options.
	MetricFindQuery(ctx context.Context, target models.QueryTarget) ([]models.MetricFindValue, error)
}

// HealthService probes grid connectivity.
type HealthService interface {
	CheckHealth(ctx context.Context) *models.HealthResult
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
