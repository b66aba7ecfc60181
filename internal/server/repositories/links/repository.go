// Package links persists upload-link records, the tokens behind the public
// upload surface.
package links

import (
	"context"

	"uplink/internal/server/models"
)

// Repository defines storage operations for upload links.
type Repository interface {
	// Create inserts a new link. Returns common.ErrorAlreadyExists when the
	// link_id is already taken.
	Create(ctx context.Context, link *models.UploadLink) error

	// GetByLinkID returns the link or common.ErrorNotFound.
	GetByLinkID(ctx context.Context, linkID string) (*models.UploadLink, error)

	// List returns all links, newest first.
	List(ctx context.Context) ([]*models.UploadLink, error)

	// SetActive flips the is_active flag. Returns common.ErrorNotFound when
	// no row matches.
	SetActive(ctx context.Context, linkID string, active bool) error

	// Delete removes the link. Returns common.ErrorNotFound when no row
	// matches.
	Delete(ctx context.Context, linkID string) error

	// Touch increments upload_count and stamps last_used_at, both in one
	// UPDATE so concurrent completions cannot lose increments.
	Touch(ctx context.Context, linkID string) error
}
