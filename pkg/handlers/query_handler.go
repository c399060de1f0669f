package handlers

import (
	"context"
	"encoding/json"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/ignis/pkg/errors"
	"github.com/TFMV/ignis/pkg/infrastructure/converter"
	"github.com/TFMV/ignis/pkg/models"
	"github.com/TFMV/ignis/pkg/services"
)

// queryHandler implements QueryHandler.
type queryHandler struct {
	queryService services.QueryService
	records      *converter.RecordBuilder
	allocator    memory.Allocator
	logger       Logger
	metrics      MetricsCollector
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(
	queryService services.QueryService,
	records *converter.RecordBuilder,
	allocator memory.Allocator,
	logger Logger,
	metrics MetricsCollector,
) QueryHandler {
	return &queryHandler{
		queryService: queryService,
		records:      records,
		allocator:    allocator,
		logger:       logger,
		metrics:      metrics,
	}
}

// ExecuteBatch runs a query batch and encodes each frame as an IPC stream.
func (h *queryHandler) ExecuteBatch(ctx context.Context, body []byte) ([][]byte, error) {
	timer := h.metrics.StartTimer("handler_execute_batch")
	defer timer.Stop()

	var batch models.QueryBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		h.metrics.IncrementCounter("handler_decode_errors")
		return nil, ToStatus(errors.Wrap(err, errors.CodeInvalidRequest, "invalid query batch"))
	}

	resp, err := h.queryService.Query(ctx, batch.Targets)
	if err != nil {
		h.metrics.IncrementCounter("handler_query_errors", "code", errors.GetCode(err))
		h.logger.Error("Failed to execute query batch", "error", err)
		return nil, ToStatus(err)
	}

	results := make([][]byte, 0, len(resp.Frames))
	for _, frame := range resp.Frames {
		data, err := h.encodeFrame(frame)
		if err != nil {
			h.metrics.IncrementCounter("handler_encode_errors")
			h.logger.Error("Failed to encode frame", "ref_id", frame.RefID, "error", err)
			return nil, ToStatus(err)
		}
		results = append(results, data)
	}

	h.logger.Debug("Query batch encoded",
		"batch_id", resp.BatchID,
		"frames", len(results))
	return results, nil
}

func (h *queryHandler) encodeFrame(frame *models.ResultFrame) ([]byte, error) {
	rec, err := h.records.Build(frame)
	if err != nil {
		return nil, err
	}
	defer rec.Release()
	return converter.EncodeIPC(rec, h.allocator)
}

// ExecuteTicket runs the ticket's target as a one-target batch and streams its record.
func (h *queryHandler) ExecuteTicket(ctx context.Context, ticket []byte) (*arrow.Schema, <-chan flight.StreamChunk, error) {
	timer := h.metrics.StartTimer("handler_execute_ticket")
	defer timer.Stop()

	target, err := decodeTarget(ticket)
	if err != nil {
		h.metrics.IncrementCounter("handler_decode_errors")
		return nil, nil, ToStatus(err)
	}

	resp, err := h.queryService.Query(ctx, []models.QueryTarget{target})
	if err != nil {
		h.metrics.IncrementCounter("handler_query_errors", "code", errors.GetCode(err))
		h.logger.Error("Failed to execute ticket", "ref_id", target.RefID, "error", err)
		return nil, nil, ToStatus(err)
	}

	rec, err := h.records.Build(resp.Frames[0])
	if err != nil {
		h.metrics.IncrementCounter("handler_encode_errors")
		return nil, nil, ToStatus(err)
	}

	chunks := make(chan flight.StreamChunk, 1)
	chunks <- flight.StreamChunk{Data: rec}
	close(chunks)

	h.metrics.RecordHistogram("handler_ticket_rows", float64(rec.NumRows()))
	return rec.Schema(), chunks, nil
}

// MetricFind runs a template-variable query.
func (h *queryHandler) MetricFind(ctx context.Context, body []byte) ([]byte, error) {
	timer := h.metrics.StartTimer("handler_metric_find")
	defer timer.Stop()

	target, err := decodeTarget(body)
	if err != nil {
		h.metrics.IncrementCounter("handler_decode_errors")
		return nil, ToStatus(err)
	}

	values, err := h.queryService.MetricFindQuery(ctx, target)
	if err != nil {
		h.metrics.IncrementCounter("handler_query_errors", "code", errors.GetCode(err))
		h.logger.Error("Failed to execute metric find query", "ref_id", target.RefID, "error", err)
		return nil, ToStatus(err)
	}

	data, err := json.Marshal(values)
	if err != nil {
		return nil, ToStatus(errors.Wrap(err, errors.CodeInternal, "failed to encode options"))
	}
	return data, nil
}

func decodeTarget(data []byte) (models.QueryTarget, error) {
	var target models.QueryTarget
	if err := json.Unmarshal(data, &target); err != nil {
		return target, errors.Wrap(err, errors.CodeInvalidRequest, "invalid query target")
	}
	return target, nil
}
