package services

import (
	"context"
	"time"

	"uplink/internal/server/models"
)

// ObjectStore is the slice of the object storage gateway the services need.
// Implemented by objstore.Client; faked in tests.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	CreateMultipart(ctx context.Context, key, contentType string) (string, error)
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.Part) (string, error)
	AbortMultipart(ctx context.Context, key, uploadID string) error
}

// Transcoder starts jobs on the external transcode worker; results come back
// through webhook ingest.
type Transcoder interface {
	StartJob(ctx context.Context, fileID, sourceURL string, qualities []string, webhookURL string) (jobID string, err error)
}

// Notifier delivers fire-and-forget notifications; implementations must not
// return errors into the upload path.
type Notifier interface {
	UploadCompleted(ctx context.Context, file *models.File)
}
