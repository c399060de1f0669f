// Package server exposes the query bridge over Arrow Flight.
package server

import (
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TFMV/ignis/pkg/handlers"
)

// Action names served by DoAction.
const (
	ActionQuery           = "query"
	ActionHealth          = "health"
	ActionMetricFindQuery = "metricFindQuery"
)

var actionTypes = []flight.ActionType{
	{Type: ActionQuery, Description: "Run a query batch; returns one Arrow IPC stream per target, in order"},
	{Type: ActionHealth, Description: "Probe the grid; returns a JSON health result"},
	{Type: ActionMetricFindQuery, Description: "Run a single target; returns its first column as JSON options"},
}

// MetricsCollector defines the metrics interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
}

// FlightServer serves query batches, health probes and tickets over Flight.
type FlightServer struct {
	flight.BaseFlightServer

	queryHandler  handlers.QueryHandler
	healthHandler handlers.HealthHandler
	allocator     memory.Allocator
	logger        zerolog.Logger
	metrics       MetricsCollector
}

// NewFlightServer creates a Flight server over the given handlers.
func NewFlightServer(
	queryHandler handlers.QueryHandler,
	healthHandler handlers.HealthHandler,
	allocator memory.Allocator,
	logger zerolog.Logger,
	metrics MetricsCollector,
) *FlightServer {
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	return &FlightServer{
		queryHandler:  queryHandler,
		healthHandler: healthHandler,
		allocator:     allocator,
		logger:        logger.With().Str("component", "flight").Logger(),
		metrics:       metrics,
	}
}

// Register registers the Flight service with a gRPC server.
func (s *FlightServer) Register(grpcServer *grpc.Server) {
	flight.RegisterFlightServiceServer(grpcServer, s)
}

// ListActions describes the supported actions.
func (s *FlightServer) ListActions(_ *flight.Empty, stream flight.FlightService_ListActionsServer) error {
	for i := range actionTypes {
		if err := stream.Send(&actionTypes[i]); err != nil {
			return err
		}
	}
	return nil
}

// DoAction dispatches on the action type.
func (s *FlightServer) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	ctx := stream.Context()
	s.metrics.IncrementCounter("flight_actions", "action", action.GetType())

	switch action.GetType() {
	case ActionQuery:
		results, err := s.queryHandler.ExecuteBatch(ctx, action.GetBody())
		if err != nil {
			return err
		}
		for _, body := range results {
			if err := stream.Send(&flight.Result{Body: body}); err != nil {
				return err
			}
		}
		return nil

	case ActionHealth:
		body, err := s.healthHandler.Check(ctx)
		if err != nil {
			return err
		}
		return stream.Send(&flight.Result{Body: body})

	case ActionMetricFindQuery:
		body, err := s.queryHandler.MetricFind(ctx, action.GetBody())
		if err != nil {
			return err
		}
		return stream.Send(&flight.Result{Body: body})

	default:
		return status.Errorf(codes.Unimplemented, "unknown action: %s", action.GetType())
	}
}

// DoGet runs the target carried by the ticket and streams its record.
func (s *FlightServer) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx := stream.Context()

	schema, chunks, err := s.queryHandler.ExecuteTicket(ctx, ticket.GetTicket())
	if err != nil {
		return err
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(schema), ipc.WithAllocator(s.allocator))
	defer w.Close()

	var rows int64
	for chunk := range chunks {
		if err != nil {
			// drain so every record is released
			if chunk.Data != nil {
				chunk.Data.Release()
			}
			continue
		}
		if chunk.Err != nil {
			err = status.Errorf(codes.Internal, "stream chunk: %v", chunk.Err)
			continue
		}
		if chunk.Data == nil {
			continue
		}
		rows += chunk.Data.NumRows()
		err = w.Write(chunk.Data)
		chunk.Data.Release()
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("DoGet stream failed")
		return err
	}

	s.metrics.RecordHistogram("flight_doget_rows", float64(rows))
	return nil
}
