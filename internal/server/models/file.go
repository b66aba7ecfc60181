package models

import "time"

// FileStatus is the lifecycle state of a file record.
//
// Transitions: uploading -> processing -> processed|failed;
// processed -> completed once a stable original exists in at least one
// durable tier. StatusError is terminal and reachable from processing or
// from any stage on unrecoverable storage error.
type FileStatus string

const (
	StatusUploading  FileStatus = "uploading"
	StatusProcessing FileStatus = "processing"
	StatusProcessed  FileStatus = "processed"
	StatusCompleted  FileStatus = "completed"
	StatusFailed     FileStatus = "failed"
	StatusError      FileStatus = "error"
)

// TierStatus is the per-tier progress state, tracked independently of the
// file-level status.
type TierStatus string

const (
	TierPending  TierStatus = "pending"
	TierComplete TierStatus = "complete"
	TierError    TierStatus = "error"
)

// Tier identifies one downstream storage tier of a file record. Each tier's
// sub-object is mutated exclusively by the webhook handler for that tier.
type Tier string

const (
	TierFrameio   Tier = "frameio"
	TierR2        Tier = "r2"
	TierWasabi    Tier = "wasabi"
	TierLucidLink Tier = "lucidlink"
)

// FrameioData tracks the temporary processing tier (video platform asset).
type FrameioData struct {
	Status   TierStatus `json:"status,omitempty"`
	AssetID  string     `json:"assetId,omitempty"`
	FolderID string     `json:"folderId,omitempty"`
}

// R2Data tracks the edge delivery tier.
type R2Data struct {
	Status      TierStatus `json:"status,omitempty"`
	OriginalKey string     `json:"originalKey,omitempty"`
}

// WasabiData tracks the archival tier.
type WasabiData struct {
	Status     TierStatus `json:"status,omitempty"`
	ArchiveKey string     `json:"archiveKey,omitempty"`
}

// LucidLinkData tracks the optional high-quality storage tier.
type LucidLinkData struct {
	Status   TierStatus `json:"status,omitempty"`
	FilePath string     `json:"filePath,omitempty"`
}

// Transcoding is the embedded state of the single active transcode job.
type Transcoding struct {
	JobID       string     `json:"jobId,omitempty"`
	Status      string     `json:"status,omitempty"` // processing|completed|failed
	Qualities   []string   `json:"qualities,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

const (
	TranscodeProcessing = "processing"
	TranscodeCompleted  = "completed"
	TranscodeFailed     = "failed"
)

// Proxy is one transcoded rendition available for playback. Proxies are
// deduplicated by quality: replaying a proxy.ready webhook must not create
// a second entry for the same quality.
type Proxy struct {
	Quality    string `json:"quality"`
	StorageKey string `json:"storageKey"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// File is the canonical per-upload record. Version guards targeted tier
// updates with optimistic concurrency: a patch carries the version it read,
// and the update is rejected when the row has moved on.
type File struct {
	ID          string     `json:"id"`
	FileName    string     `json:"fileName"`
	FileSize    int64      `json:"fileSize"`
	FileType    string     `json:"fileType"`
	StorageKey  string     `json:"storageKey"`
	ClientName  string     `json:"clientName"`
	ProjectName string     `json:"projectName"`
	LinkID      string     `json:"linkId,omitempty"`
	Status      FileStatus `json:"status"`
	Version     int64      `json:"-"`

	Frameio     FrameioData   `json:"frameIoData"`
	R2          R2Data        `json:"r2Data"`
	Wasabi      WasabiData    `json:"wasabiData"`
	LucidLink   LucidLinkData `json:"lucidLinkData"`
	Transcoding Transcoding   `json:"transcoding"`
	Proxies     []Proxy       `json:"proxies"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
