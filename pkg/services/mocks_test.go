package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/TFMV/ignis/pkg/models"
)

// mockGridRepo implements repositories.GridRepository.
type mockGridRepo struct {
	mock.Mock
}

func (m *mockGridRepo) CacheSize(ctx context.Context, cacheName string) (*models.RestResponse, error) {
	args := m.Called(ctx, cacheName)
	resp, _ := args.Get(0).(*models.RestResponse)
	return resp, args.Error(1)
}

func (m *mockGridRepo) ExecuteFieldsQuery(ctx context.Context, cacheName, sql string, pageSize int) (*models.RestResponse, error) {
	args := m.Called(ctx, cacheName, sql, pageSize)
	resp, _ := args.Get(0).(*models.RestResponse)
	return resp, args.Error(1)
}

func (m *mockGridRepo) Version(ctx context.Context) (*models.RestResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*models.RestResponse)
	return resp, args.Error(1)
}

// envelope builds a REST envelope around a JSON payload.
func envelope(status int, errText, payload string) *models.RestResponse {
	resp := &models.RestResponse{SuccessStatus: status, Error: errText}
	if payload != "" {
		resp.Response = json.RawMessage(payload)
	}
	return resp
}

// noopLogger implements Logger.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// countingMetrics implements MetricsCollector and counts counter increments.
type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counters: make(map[string]int)}
}

func (m *countingMetrics) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

func (m *countingMetrics) RecordHistogram(string, float64, ...string) {}

func (m *countingMetrics) RecordGauge(string, float64, ...string) {}

func (m *countingMetrics) StartTimer(string) Timer {
	return mockTimer{}
}

func (m *countingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// mockTimer implements Timer.
type mockTimer struct{}

func (mockTimer) Stop() time.Duration {
	return 0
}
