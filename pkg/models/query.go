// Package models provides data structures used throughout the query bridge.
package models

// Format is the result shape a target asks for.
type Format string

const (
	// FormatTimeSeries requires a time column on the target.
	FormatTimeSeries Format = "TIMESERIES"
	// FormatTable is a plain tabular result.
	FormatTable Format = "TABLE"
)

// QueryTarget is one query of a batch, as entered by the user.
type QueryTarget struct {
	RefID      string `json:"refId"`
	CacheName  string `json:"cacheName" validate:"required"`
	Format     Format `json:"format" validate:"required"`
	TimeColumn string `json:"timeColumn,omitempty" validate:"required_if=Format TIMESERIES"`
	Query      string `json:"query" validate:"required"`
}

// QueryBatch is the request envelope accepted by the transport layer.
type QueryBatch struct {
	Targets []QueryTarget `json:"targets"`
}

// QueryResponse holds one frame per validated target, in target order.
type QueryResponse struct {
	BatchID string         `json:"batchId,omitempty"`
	Frames  []*ResultFrame `json:"frames"`
}

// Frame returns the frame produced for refID.
func (r *QueryResponse) Frame(refID string) (*ResultFrame, bool) {
	if r == nil {
		return nil, false
	}
	for _, f := range r.Frames {
		if f.RefID == refID {
			return f, true
		}
	}
	return nil, false
}

// CacheExistenceResult is the outcome of a size probe against one cache.
type CacheExistenceResult struct {
	CacheName string `json:"cacheName"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// HealthStatus is the outcome of a connectivity probe.
type HealthStatus string

const (
	HealthStatusSuccess HealthStatus = "success"
	HealthStatusFailure HealthStatus = "failure"
)

// HealthResult is returned by the connectivity probe.
type HealthResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message"`
	Version string       `json:"version,omitempty"`
}

// MetricFindValue is one option of a template-variable query.
type MetricFindValue struct {
	Text  string `json:"text"`
	Value any    `json:"value"`
}
