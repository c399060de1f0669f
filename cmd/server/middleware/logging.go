package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries a caller supplied request id. One is generated when absent.
const RequestIDHeader = "x-request-id"

// LoggingMiddleware logs every Flight call and attaches a request scoped
// logger to the context.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger,
	}
}

// requestID returns the incoming request id or a fresh one.
func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.NewString()
}

// scoped returns ctx carrying a logger tagged with the request id and method.
func (m *LoggingMiddleware) scoped(ctx context.Context, method string) (context.Context, zerolog.Logger) {
	logger := m.logger.With().
		Str("request_id", requestID(ctx)).
		Str("method", method).
		Logger()
	return logger.WithContext(ctx), logger
}

// UnaryInterceptor returns a unary server interceptor for logging.
func (m *LoggingMiddleware) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		ctx, logger := m.scoped(ctx, info.FullMethod)
		user, _ := GetUser(ctx)

		resp, err := handler(ctx, req)

		logEvent(logger, err).
			Str("user", user).
			Dur("duration", time.Since(start)).
			Msg("Unary request")

		return resp, err
	}
}

// StreamInterceptor returns a stream server interceptor for logging.
func (m *LoggingMiddleware) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx, logger := m.scoped(ss.Context(), info.FullMethod)
		user, _ := GetUser(ctx)

		wrappedStream := &loggingServerStream{ServerStream: ss, ctx: ctx}

		err := handler(srv, wrappedStream)

		logEvent(logger, err).
			Str("user", user).
			Dur("duration", time.Since(start)).
			Int("messages_sent", wrappedStream.messagesSent).
			Int("messages_received", wrappedStream.messagesReceived).
			Msg("Stream request")

		return err
	}
}

// logEvent picks the level for a finished call. Cancellations are not errors.
func logEvent(logger zerolog.Logger, err error) *zerolog.Event {
	code := status.Code(err)
	var event *zerolog.Event
	switch code {
	case codes.OK, codes.Canceled:
		event = logger.Info()
	case codes.InvalidArgument, codes.NotFound, codes.Unauthenticated:
		event = logger.Warn().Err(err)
	default:
		event = logger.Error().Err(err)
	}
	return event.Str("code", code.String())
}

// loggingServerStream wraps a ServerStream to track message counts.
type loggingServerStream struct {
	grpc.ServerStream
	ctx              context.Context
	messagesSent     int
	messagesReceived int
}

func (s *loggingServerStream) Context() context.Context {
	return s.ctx
}

func (s *loggingServerStream) SendMsg(m interface{}) error {
	err := s.ServerStream.SendMsg(m)
	if err == nil {
		s.messagesSent++
	}
	return err
}

func (s *loggingServerStream) RecvMsg(m interface{}) error {
	err := s.ServerStream.RecvMsg(m)
	if err == nil {
		s.messagesReceived++
	}
	return err
}
