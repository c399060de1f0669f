// Package repositories defines interfaces for access to the remote grid.
package repositories

import (
	"context"

	"github.com/TFMV/ignis/pkg/models"
)

// GridRepository issues the REST commands the query pipeline needs.
// Implementations return an error only when no envelope could be obtained
// (network failure, non-JSON body); grid-level failures are reported through
// the envelope itself.
type GridRepository interface {
	// CacheSize issues cmd=size for cacheName.
	CacheSize(ctx context.Context, cacheName string) (*models.RestResponse, error)
	// ExecuteFieldsQuery issues cmd=qryfldexe for sql against cacheName.
	ExecuteFieldsQuery(ctx context.Context, cacheName, sql string, pageSize int) (*models.RestResponse, error)
	// Version issues cmd=version.
	Version(ctx context.Context) (*models.RestResponse, error)
}
