package services

import (
	"context"
	"strings"

	"github.com/TFMV/ignis/pkg/models"
	"github.com/TFMV/ignis/pkg/repositories"
)

// HealthyMessage is reported when the grid answers the version probe.
const HealthyMessage = "Data source is working"

type healthService struct {
	repo    repositories.GridRepository
	logger  Logger
	metrics MetricsCollector
}

// NewHealthService creates the connectivity probe.
func NewHealthService(repo repositories.GridRepository, logger Logger, metrics MetricsCollector) HealthService {
	return &healthService{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckHealth issues cmd=version. The grid is considered reachable when the
// envelope has no error text or a zero status.
func (s *healthService) CheckHealth(ctx context.Context) *models.HealthResult {
	timer := s.metrics.StartTimer("health_check")
	defer timer.Stop()

	resp, err := s.repo.Version(ctx)
	if err != nil {
		return s.fail(err.Error())
	}

	if resp.Error != "" && resp.SuccessStatus != 0 {
		return s.fail(resp.Error)
	}

	version := decodeVersion(resp)
	s.metrics.IncrementCounter("health_checks", "status", string(models.HealthStatusSuccess))
	s.logger.Debug("Grid health check passed", "version", version)

	return &models.HealthResult{
		Status:  models.HealthStatusSuccess,
		Message: HealthyMessage,
		Version: version,
	}
}

func (s *healthService) fail(message string) *models.HealthResult {
	s.metrics.IncrementCounter("health_checks", "status", string(models.HealthStatusFailure))
	s.logger.Warn("Grid health check failed", "error", message)
	return &models.HealthResult{
		Status:  models.HealthStatusFailure,
		Message: message,
	}
}

// decodeVersion reads the version payload, which is normally a JSON string.
func decodeVersion(resp *models.RestResponse) string {
	var version string
	if err := resp.Decode(&version); err == nil {
		return version
	}
	return strings.Trim(string(resp.Response), `"`)
}
