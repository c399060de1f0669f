package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/TFMV/ignis/pkg/errors"
	"github.com/TFMV/ignis/pkg/models"
)

func TestHealthService_CheckHealth(t *testing.T) {
	tests := []struct {
		name        string
		resp        *models.RestResponse
		err         error
		wantStatus  models.HealthStatus
		wantMessage string
		wantVersion string
	}{
		{
			name:        "healthy",
			resp:        envelope(0, "", `"2.16.0"`),
			wantStatus:  models.HealthStatusSuccess,
			wantMessage: HealthyMessage,
			wantVersion: "2.16.0",
		},
		{
			name:        "error text with zero status is still healthy",
			resp:        envelope(0, "deprecated command", `"2.16.0"`),
			wantStatus:  models.HealthStatusSuccess,
			wantMessage: HealthyMessage,
			wantVersion: "2.16.0",
		},
		{
			name:        "non-zero status without error text is healthy",
			resp:        envelope(1, "", `"2.15.0"`),
			wantStatus:  models.HealthStatusSuccess,
			wantMessage: HealthyMessage,
			wantVersion: "2.15.0",
		},
		{
			name:        "grid failure",
			resp:        envelope(2, "Failed to authenticate remote client", ""),
			wantStatus:  models.HealthStatusFailure,
			wantMessage: "Failed to authenticate remote client",
		},
		{
			name:        "unreachable",
			err:         errors.New(errors.CodeTransport, "dial tcp: connection refused"),
			wantStatus:  models.HealthStatusFailure,
			wantMessage: "TRANSPORT_ERROR: dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockGridRepo{}
			repo.On("Version", mock.Anything).Return(tt.resp, tt.err).Once()
			metrics := newCountingMetrics()

			result := NewHealthService(repo, noopLogger{}, metrics).CheckHealth(context.Background())

			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Equal(t, tt.wantVersion, result.Version)
			assert.Equal(t, 1, metrics.count("health_checks"))
			repo.AssertExpectations(t)
		})
	}
}
