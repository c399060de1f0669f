package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TFMV/ignis/pkg/errors"
	"github.com/TFMV/ignis/pkg/infrastructure/converter"
	"github.com/TFMV/ignis/pkg/models"
	"github.com/TFMV/ignis/pkg/repositories"
)

// DefaultPageSize is the pageSize sent with every fields query.
const DefaultPageSize = 1024

// queryService implements QueryService.
type queryService struct {
	repo      repositories.GridRepository
	validator *TargetValidator
	frames    *converter.FrameBuilder
	logger    Logger
	metrics   MetricsCollector
	pageSize  int
}

// QueryOption customises the query service.
type QueryOption func(*queryService)

// WithPageSize overrides DefaultPageSize. Non-positive values are ignored.
func WithPageSize(n int) QueryOption {
	return func(s *queryService) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewQueryService creates a new query service.
func NewQueryService(
	repo repositories.GridRepository,
	frames *converter.FrameBuilder,
	logger Logger,
	metrics MetricsCollector,
	opts ...QueryOption,
) QueryService {
	s := &queryService{
		repo:      repo,
		validator: NewTargetValidator(),
		frames:    frames,
		logger:    logger,
		metrics:   metrics,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query runs a batch: validate, check every distinct cache, then execute each
// target. A failing target yields an empty frame; it never fails the batch.
// Cancellation of ctx does fail the batch with a transport error.
func (s *queryService) Query(ctx context.Context, targets []models.QueryTarget) (*models.QueryResponse, error) {
	timer := s.metrics.StartTimer("query_batch")
	defer timer.Stop()

	batchID := uuid.NewString()
	s.logger.Debug("Executing query batch", "batch_id", batchID, "targets", len(targets))

	valid, err := s.validator.Validate(targets)
	if err != nil {
		s.metrics.IncrementCounter("query_validation_errors")
		s.logger.Info("Query batch rejected", "batch_id", batchID, "error", err)
		return nil, err
	}
	if dropped := len(targets) - len(valid); dropped > 0 {
		s.metrics.IncrementCounter("query_targets_dropped")
		s.logger.Debug("Dropped invalid targets", "batch_id", batchID, "dropped", dropped)
	}

	if err := s.checkCaches(ctx, batchID, valid); err != nil {
		return nil, err
	}

	start := time.Now()
	frames := make([]*models.ResultFrame, len(valid))

	var g errgroup.Group
	for i, target := range valid {
		g.Go(func() error {
			frames[i] = s.execute(ctx, batchID, target)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		s.logger.Info("Query batch cancelled during execution", "batch_id", batchID, "error", err)
		return nil, errors.Wrap(err, errors.CodeTransport, "query batch cancelled")
	}

	executionTime := time.Since(start)
	s.metrics.IncrementCounter("successful_batches")
	s.metrics.RecordHistogram("query_execution_time", executionTime.Seconds())

	s.logger.Info("Query batch executed",
		"batch_id", batchID,
		"targets", len(valid),
		"execution_time", executionTime)

	return &models.QueryResponse{BatchID: batchID, Frames: frames}, nil
}

// checkCaches probes every distinct cache once and waits for all probes.
// Any cache that does not answer with a clean envelope fails the batch.
func (s *queryService) checkCaches(ctx context.Context, batchID string, targets []models.QueryTarget) error {
	names := distinctCaches(targets)
	results := make([]models.CacheExistenceResult, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = s.checkCache(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.CodeTransport, "query batch cancelled")
	}

	var missing []string
	causes := make(map[string]string)
	for _, r := range results {
		if !r.Success {
			missing = append(missing, r.CacheName)
			causes[r.CacheName] = r.Error
		}
	}
	if len(missing) == 0 {
		return nil
	}

	s.metrics.IncrementCounter("cache_not_found_errors")
	s.logger.Warn("Cache existence check failed",
		"batch_id", batchID,
		"caches", missing)
	return errors.CacheNotFound(missing, causes)
}

func (s *queryService) checkCache(ctx context.Context, name string) models.CacheExistenceResult {
	result := models.CacheExistenceResult{CacheName: name}

	resp, err := s.repo.CacheSize(ctx, name)
	switch {
	case err != nil:
		result.Error = err.Error()
	case !resp.OK():
		result.Error = envelopeError(resp)
	default:
		result.Success = true
	}
	return result
}

// execute runs one target and always returns a frame.
func (s *queryService) execute(ctx context.Context, batchID string, target models.QueryTarget) *models.ResultFrame {
	resp, err := s.repo.ExecuteFieldsQuery(ctx, target.CacheName, target.Query, s.pageSize)
	if err != nil {
		s.degrade(batchID, target, err.Error())
		return models.NewEmptyFrame(target.RefID)
	}
	if !resp.OK() {
		s.degrade(batchID, target, envelopeError(resp))
		return models.NewEmptyFrame(target.RefID)
	}

	frame, err := s.frames.BuildFromResponse(target.RefID, resp)
	if err != nil {
		s.degrade(batchID, target, err.Error())
		return models.NewEmptyFrame(target.RefID)
	}

	s.metrics.RecordHistogram("query_result_rows", float64(len(frame.Rows)))
	s.logger.Debug("Target executed",
		"batch_id", batchID,
		"ref_id", target.RefID,
		"fields", len(frame.Fields),
		"rows", len(frame.Rows))
	return frame
}

func (s *queryService) degrade(batchID string, target models.QueryTarget, reason string) {
	s.metrics.IncrementCounter("query_target_errors")
	s.logger.Warn("Target failed, returning empty frame",
		"batch_id", batchID,
		"ref_id", target.RefID,
		"cache", target.CacheName,
		"error", reason)
}

// MetricFindQuery runs target alone and maps the first column to options.
// Null cells are skipped.
func (s *queryService) MetricFindQuery(ctx context.Context, target models.QueryTarget) ([]models.MetricFindValue, error) {
	resp, err := s.Query(ctx, []models.QueryTarget{target})
	if err != nil {
		return nil, err
	}

	values := []models.MetricFindValue{}
	if len(resp.Frames) == 0 || resp.Frames[0].Empty() {
		return values, nil
	}
	frame := resp.Frames[0]

	for _, v := range frame.Column(0) {
		if v == nil {
			continue
		}
		values = append(values, models.MetricFindValue{Text: fmt.Sprint(v), Value: v})
	}
	return values, nil
}

func distinctCaches(targets []models.QueryTarget) []string {
	seen := make(map[string]struct{}, len(targets))
	var names []string
	for _, t := range targets {
		if _, ok := seen[t.CacheName]; ok {
			continue
		}
		seen[t.CacheName] = struct{}{}
		names = append(names, t.CacheName)
	}
	return names
}

func envelopeError(resp *models.RestResponse) string {
	if resp.Error != "" {
		return resp.Error
	}
	return fmt.Sprintf("successStatus %d", resp.SuccessStatus)
}
