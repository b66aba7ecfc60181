// Package files persists the canonical per-upload file records and their
// playback proxies.
package files

import (
	"context"
	"time"

	"uplink/internal/server/models"
)

// Assignment is one targeted column update. Tier patches are expressed as
// assignment lists so concurrent updates to different tiers never touch each
// other's columns.
type Assignment struct {
	Column string
	Value  any
}

// Repository defines storage operations for file records.
type Repository interface {
	// Create inserts a new file record.
	Create(ctx context.Context, file *models.File) error

	// GetByID returns the file with its proxies, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.File, error)

	// ListByLink returns files registered through the given link, newest first.
	ListByLink(ctx context.Context, linkID string) ([]*models.File, error)

	// Delete removes the file record (proxies cascade).
	// Returns common.ErrorNotFound when no row matches.
	Delete(ctx context.Context, id string) error

	// PatchColumns applies targeted assignments guarded by an optimistic
	// version check: the UPDATE only succeeds when the row still carries the
	// given version, and bumps it. Returns common.ErrVersionConflict when the
	// row has moved on (or does not exist).
	PatchColumns(ctx context.Context, id string, version int64, assignments []Assignment) error

	// SetStatus moves the file to status to. When from states are given, the
	// update only applies while the current status is one of them; ok reports
	// whether a row was updated.
	SetStatus(ctx context.Context, id string, to models.FileStatus, from ...models.FileStatus) (bool, error)

	// AddProxy upserts a proxy keyed by (file_id, quality); replaying the
	// same proxy event leaves a single entry.
	AddProxy(ctx context.Context, fileID string, proxy models.Proxy) error

	// ClaimTranscode atomically claims the single transcode slot of a file.
	// It succeeds only when no job is recorded or the previous one failed;
	// claimed reports whether this caller won the slot.
	ClaimTranscode(ctx context.Context, fileID string, qualities []string, startedAt time.Time) (claimed bool, err error)

	// SetTranscodeJob records the job id returned by the transcode worker.
	SetTranscodeJob(ctx context.Context, fileID string, jobID string) error

	// ReleaseTranscode marks the in-flight transcode failed with the given
	// message, freeing the slot for a later retry.
	ReleaseTranscode(ctx context.Context, fileID string, message string) error
}
