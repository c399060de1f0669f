package middleware

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var doAction = &grpc.UnaryServerInfo{FullMethod: "/arrow.flight.protocol.FlightService/DoAction"}

type recordingCollector struct {
	mu       sync.Mutex
	counters map[string][]string
	observed map[string]int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{counters: map[string][]string{}, observed: map[string]int{}}
}

func (c *recordingCollector) IncrementCounter(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] = labels
}

func (c *recordingCollector) RecordHistogram(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observed[name]++
}

func (c *recordingCollector) RecordGauge(string, float64, ...string) {}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	m := NewLoggingMiddleware(zerolog.New(&buf))

	md := metadata.New(map[string]string{RequestIDHeader: "req-42"})
	ctx := metadata.NewIncomingContext(context.Background(), md)

	var scoped *zerolog.Logger
	_, err := m.UnaryInterceptor()(ctx, nil, doAction, func(ctx context.Context, req interface{}) (interface{}, error) {
		scoped = zerolog.Ctx(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	require.NotNil(t, scoped)
	assert.NotEqual(t, zerolog.Disabled, scoped.GetLevel())

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-42"`)
	assert.Contains(t, out, `"code":"OK"`)
	assert.Contains(t, out, `"level":"info"`)
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	tests := []struct {
		err   error
		level string
	}{
		{status.Error(codes.Canceled, "gone"), `"level":"info"`},
		{status.Error(codes.NotFound, "cache not found: x"), `"level":"warn"`},
		{status.Error(codes.Unavailable, "refused"), `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(status.Code(tt.err).String(), func(t *testing.T) {
			var buf bytes.Buffer
			m := NewLoggingMiddleware(zerolog.New(&buf))

			_, err := m.UnaryInterceptor()(context.Background(), nil, doAction, func(context.Context, interface{}) (interface{}, error) {
				return nil, tt.err
			})
			assert.Equal(t, tt.err, err)
			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), `"request_id":"`)
		})
	}
}

func TestMetricsMiddleware_Unary(t *testing.T) {
	collector := newRecordingCollector()
	m := NewMetricsMiddleware(collector)

	_, err := m.UnaryInterceptor()(context.Background(), nil, doAction, func(context.Context, interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	require.Error(t, err)

	assert.Equal(t, 1, collector.observed["flight_call_duration_seconds"])
	assert.Equal(t, []string{"method", doAction.FullMethod, "type", "unary", "code", "NotFound"}, collector.counters["flight_calls"])
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	m := NewRecoveryMiddleware(zerolog.New(&buf))

	_, err := m.UnaryInterceptor()(context.Background(), nil, doAction, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, buf.String(), "Panic recovered")

	info := &grpc.StreamServerInfo{FullMethod: "/arrow.flight.protocol.FlightService/DoGet"}
	err = m.StreamInterceptor()(nil, &mockServerStream{ctx: context.Background()}, info, func(interface{}, grpc.ServerStream) error {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}
