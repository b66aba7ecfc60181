// Package sessions persists multipart upload sessions so abandoned uploads
// can be aborted by the background sweep.
package sessions

import (
	"context"
	"time"

	"uplink/internal/server/models"
)

// Repository defines storage operations for multipart sessions.
type Repository interface {
	// Create records a newly initiated multipart upload.
	Create(ctx context.Context, session *models.MultipartSession) error

	// Get returns the session or common.ErrorNotFound.
	Get(ctx context.Context, uploadID string) (*models.MultipartSession, error)

	// SetStatus moves the session to the given lifecycle state.
	SetStatus(ctx context.Context, uploadID string, status string) error

	// SelectStale returns open sessions created before the cutoff.
	SelectStale(ctx context.Context, cutoff time.Time) ([]*models.MultipartSession, error)
}
