package models

import "time"

// Session lifecycle states for multipart uploads.
const (
	SessionOpen      = "open"
	SessionCompleted = "completed"
	SessionAborted   = "aborted"
)

// MultipartSession records an in-progress multipart upload. The storage
// provider owns the authoritative multipart state; this row exists so the
// sweep can abort sessions that were abandoned before completion.
// (uploadID, storageKey) is the durable handle the client carries between
// calls.
type MultipartSession struct {
	UploadID   string    `json:"uploadId"`
	StorageKey string    `json:"storageKey"`
	LinkID     string    `json:"linkId"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Part is one completed part of a multipart upload, reported by the client
// after it PUT the bytes to the presigned part URL.
type Part struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}
