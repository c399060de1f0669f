package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// MetricsCollector defines the interface for collecting metrics.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
}

// MetricsMiddleware counts Flight calls and records their latency per method.
type MetricsMiddleware struct {
	collector MetricsCollector
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(collector MetricsCollector) *MetricsMiddleware {
	return &MetricsMiddleware{
		collector: collector,
	}
}

func (m *MetricsMiddleware) observe(method, kind string, start time.Time, err error) {
	m.collector.RecordHistogram("flight_call_duration_seconds", time.Since(start).Seconds(), "method", method, "type", kind)
	m.collector.IncrementCounter("flight_calls", "method", method, "type", kind, "code", status.Code(err).String())
}

// UnaryInterceptor returns a unary server interceptor for metrics.
func (m *MetricsMiddleware) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.observe(info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// StreamInterceptor returns a stream server interceptor for metrics.
func (m *MetricsMiddleware) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		wrappedStream := &metricsServerStream{
			ServerStream: ss,
			collector:    m.collector,
			method:       info.FullMethod,
		}

		err := handler(srv, wrappedStream)
		m.observe(info.FullMethod, "stream", start, err)
		return err
	}
}

// metricsServerStream wraps a ServerStream to count sent messages.
type metricsServerStream struct {
	grpc.ServerStream
	collector MetricsCollector
	method    string
}

func (s *metricsServerStream) SendMsg(m interface{}) error {
	err := s.ServerStream.SendMsg(m)
	if err != nil {
		s.collector.IncrementCounter("flight_stream_send_errors", "method", s.method)
		return err
	}
	s.collector.IncrementCounter("flight_stream_messages_sent", "method", s.method)
	return nil
}
