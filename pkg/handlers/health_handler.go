package handlers

import (
	"context"
	"encoding/json"

	"github.com/TFMV/ignis/pkg/errors"
	"github.com/TFMV/ignis/pkg/services"
)

type healthHandler struct {
	healthService services.HealthService
	logger        Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(healthService services.HealthService, logger Logger) HealthHandler {
	return &healthHandler{
		healthService: healthService,
		logger:        logger,
	}
}

// Check runs the probe. A failing grid is reported in the result, not as an error.
func (h *healthHandler) Check(ctx context.Context) ([]byte, error) {
	result := h.healthService.CheckHealth(ctx)

	data, err := json.Marshal(result)
	if err != nil {
		return nil, ToStatus(errors.Wrap(err, errors.CodeInternal, "failed to encode health result"))
	}

	h.logger.Debug("Health check served", "status", string(result.Status))
	return data, nil
}
