package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"uplink/internal/common"
	"uplink/internal/logging"
	sc "uplink/internal/server/config"
	"uplink/internal/server/models"
	"uplink/internal/server/repositories/files"
	"uplink/internal/server/repositories/repomanager"
)

// patchRetries bounds the optimistic-concurrency retry loop on tier updates.
const patchRetries = 3

// RegisterInput carries the client-reported metadata for a finished upload.
type RegisterInput struct {
	LinkID     string
	FileName   string
	FileType   string
	FileSize   int64
	StorageKey string

	// AssetFlow marks registrations whose bytes still travel through the
	// processing pipeline; the record starts in uploading instead of completed.
	AssetFlow bool
}

// TierPatch is a partial update to one storage tier. Only non-nil fields are
// written; fields that do not belong to the target tier are rejected.
type TierPatch struct {
	Status      *models.TierStatus
	AssetID     *string
	FolderID    *string
	OriginalKey *string
	ArchiveKey  *string
	FilePath    *string
}

// DeleteResult reports the outcome for one id of a bulk delete.
type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// FileService owns the canonical file records: registration, tier
// reconciliation driven by webhooks, the status machine and transcode
// orchestration.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	links       *LinkService
	edge        ObjectStore
	transcoder  Transcoder
	notifier    Notifier
	cfg         *sc.Config
	logger      logging.Logger
}

func NewFileService(db *sql.DB, rm repomanager.RepositoryManager, links *LinkService, edge ObjectStore, transcoder Transcoder, notifier Notifier, cfg *sc.Config, logger logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: rm,
		links:       links,
		edge:        edge,
		transcoder:  transcoder,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.With("service", "files"),
	}
}

// Register creates the file record after the client finished its upload.
// Placeholder keys from batch presigning are resolved to their final names
// (record-level only, the object itself is not renamed). The link's usage
// counters are touched and a completion notification goes out asynchronously.
func (s *FileService) Register(ctx context.Context, in RegisterInput) (*models.File, error) {
	link, err := s.links.Validate(ctx, in.LinkID)
	if err != nil {
		return nil, err
	}
	if in.FileName == "" || in.StorageKey == "" {
		return nil, fmt.Errorf("%w: file name and storage key are required", common.ErrorValidation)
	}

	status := models.StatusCompleted
	if in.AssetFlow {
		status = models.StatusUploading
	}

	file := &models.File{
		ID:          uuid.NewString(),
		FileName:    in.FileName,
		FileSize:    in.FileSize,
		FileType:    in.FileType,
		StorageKey:  resolvePlaceholderKey(in.StorageKey, in.FileName),
		ClientName:  link.ClientName,
		ProjectName: link.ProjectName,
		LinkID:      in.LinkID,
		Status:      status,
	}
	if err := s.repomanager.Files(s.db).Create(ctx, file); err != nil {
		return nil, err
	}

	if err := s.links.Touch(ctx, in.LinkID); err != nil {
		s.logger.Error(ctx, "touch link", "linkId", in.LinkID, "error", err)
	}

	// direct registrations land on the edge account, so the edge tier is
	// complete the moment the record exists
	if !in.AssetFlow {
		tierStatus := models.TierComplete
		patch := TierPatch{Status: &tierStatus, OriginalKey: &file.StorageKey}
		if err := s.ApplyTierUpdate(ctx, file.ID, models.TierR2, patch); err != nil {
			s.logger.Error(ctx, "mark edge tier", "fileId", file.ID, "error", err)
		}
	}

	created, err := s.repomanager.Files(s.db).GetByID(ctx, file.ID)
	if err != nil {
		return nil, err
	}

	go s.notifier.UploadCompleted(context.WithoutCancel(ctx), created)

	return created, nil
}

// resolvePlaceholderKey rewrites a batch placeholder key to the real file
// name once it is known, e.g. "uploads/l1/<uuid>_placeholder" becomes
// "uploads/l1/<uuid>/<name>".
func resolvePlaceholderKey(key, fileName string) string {
	if !strings.HasSuffix(key, "_placeholder") {
		return key
	}
	return strings.TrimSuffix(key, "_placeholder") + "/" + fileName
}

// Get returns one file with its proxies.
func (s *FileService) Get(ctx context.Context, id string) (*models.File, error) {
	return s.repomanager.Files(s.db).GetByID(ctx, id)
}

// ListByLink returns the files registered through a link, newest first.
func (s *FileService) ListByLink(ctx context.Context, linkID string) ([]*models.File, error) {
	return s.repomanager.Files(s.db).ListByLink(ctx, linkID)
}

// BulkDelete removes each id independently and reports per-item outcomes.
// There is no rollback: a failure on one id leaves the others deleted.
func (s *FileService) BulkDelete(ctx context.Context, ids []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(ids))
	for _, id := range ids {
		res := DeleteResult{ID: id, Deleted: true}
		if err := s.repomanager.Files(s.db).Delete(ctx, id); err != nil {
			res.Deleted = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

// ApplyTierUpdate writes a targeted patch to one tier's columns under the
// record's version guard, re-reading and retrying on concurrent movement so
// independent tier updates never clobber each other.
func (s *FileService) ApplyTierUpdate(ctx context.Context, fileID string, tier models.Tier, patch TierPatch) error {
	assignments, err := tierAssignments(tier, patch)
	if err != nil {
		return err
	}
	return s.patchWithRetry(ctx, fileID, assignments)
}

func (s *FileService) patchWithRetry(ctx context.Context, fileID string, assignments []files.Assignment) error {
	repo := s.repomanager.Files(s.db)
	for attempt := 0; attempt < patchRetries; attempt++ {
		file, err := repo.GetByID(ctx, fileID)
		if err != nil {
			return err
		}
		err = repo.PatchColumns(ctx, fileID, file.Version, assignments)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrVersionConflict) {
			return err
		}
	}
	return common.ErrVersionConflict
}

// tierAssignments maps a TierPatch onto the columns of its tier. A field set
// for the wrong tier is a caller bug and rejected outright.
func tierAssignments(tier models.Tier, patch TierPatch) ([]files.Assignment, error) {
	var out []files.Assignment
	add := func(column string, v any) { out = append(out, files.Assignment{Column: column, Value: v}) }

	reject := func(field string) ([]files.Assignment, error) {
		return nil, fmt.Errorf("%w: field %s does not belong to tier %s", common.ErrorValidation, field, tier)
	}

	switch tier {
	case models.TierFrameio:
		if patch.OriginalKey != nil {
			return reject("originalKey")
		}
		if patch.ArchiveKey != nil {
			return reject("archiveKey")
		}
		if patch.FilePath != nil {
			return reject("filePath")
		}
		if patch.Status != nil {
			add("frameio_status", *patch.Status)
		}
		if patch.AssetID != nil {
			add("frameio_asset_id", *patch.AssetID)
		}
		if patch.FolderID != nil {
			add("frameio_folder_id", *patch.FolderID)
		}
	case models.TierR2:
		if patch.AssetID != nil || patch.FolderID != nil {
			return reject("assetId/folderId")
		}
		if patch.ArchiveKey != nil {
			return reject("archiveKey")
		}
		if patch.FilePath != nil {
			return reject("filePath")
		}
		if patch.Status != nil {
			add("r2_status", *patch.Status)
		}
		if patch.OriginalKey != nil {
			add("r2_original_key", *patch.OriginalKey)
		}
	case models.TierWasabi:
		if patch.AssetID != nil || patch.FolderID != nil {
			return reject("assetId/folderId")
		}
		if patch.OriginalKey != nil {
			return reject("originalKey")
		}
		if patch.FilePath != nil {
			return reject("filePath")
		}
		if patch.Status != nil {
			add("wasabi_status", *patch.Status)
		}
		if patch.ArchiveKey != nil {
			add("wasabi_archive_key", *patch.ArchiveKey)
		}
	case models.TierLucidLink:
		if patch.AssetID != nil || patch.FolderID != nil {
			return reject("assetId/folderId")
		}
		if patch.OriginalKey != nil {
			return reject("originalKey")
		}
		if patch.ArchiveKey != nil {
			return reject("archiveKey")
		}
		if patch.Status != nil {
			add("lucidlink_status", *patch.Status)
		}
		if patch.FilePath != nil {
			add("lucidlink_file_path", *patch.FilePath)
		}
	default:
		return nil, fmt.Errorf("%w: unknown tier %q", common.ErrorValidation, tier)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty tier patch", common.ErrorValidation)
	}
	return out, nil
}

// AddProxy records one transcoded rendition; replays upsert in place.
func (s *FileService) AddProxy(ctx context.Context, fileID string, proxy models.Proxy) error {
	if proxy.Quality == "" || proxy.StorageKey == "" {
		return fmt.Errorf("%w: proxy quality and storage key are required", common.ErrorValidation)
	}
	return s.repomanager.Files(s.db).AddProxy(ctx, fileID, proxy)
}

// Transition moves the file-level status along the allowed machine:
// uploading -> processing -> processed|failed, processed -> completed.
// StatusError is reachable from any non-terminal state and is terminal.
func (s *FileService) Transition(ctx context.Context, fileID string, to models.FileStatus) error {
	var from []models.FileStatus
	switch to {
	case models.StatusProcessing:
		from = []models.FileStatus{models.StatusUploading}
	case models.StatusProcessed, models.StatusFailed:
		from = []models.FileStatus{models.StatusProcessing}
	case models.StatusCompleted:
		from = []models.FileStatus{models.StatusProcessed}
	case models.StatusError:
		from = []models.FileStatus{models.StatusUploading, models.StatusProcessing, models.StatusProcessed}
	default:
		return fmt.Errorf("%w: status %q is not a transition target", common.ErrorValidation, to)
	}

	ok, err := s.repomanager.Files(s.db).SetStatus(ctx, fileID, to, from...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: transition to %s", common.ErrVersionConflict, to)
	}
	return nil
}

// MarkDurable promotes a processed file to completed once a stable original
// exists in at least one durable tier.
func (s *FileService) MarkDurable(ctx context.Context, fileID string) error {
	return s.Transition(ctx, fileID, models.StatusCompleted)
}

// StartTranscode claims the file's single transcode slot and submits a job to
// the worker. started is false when another caller already holds the slot;
// the claim is released again if the worker cannot be reached.
func (s *FileService) StartTranscode(ctx context.Context, fileID string, qualities []string) (jobID string, started bool, err error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return "", false, err
	}
	if len(qualities) == 0 {
		qualities = s.cfg.TranscodeQualities
	}

	claimed, err := s.repomanager.Files(s.db).ClaimTranscode(ctx, fileID, qualities, time.Now())
	if err != nil {
		return "", false, err
	}
	if !claimed {
		return "", false, nil
	}

	sourceURL, err := s.edge.PresignGet(ctx, file.StorageKey, s.cfg.StreamURLValidityDuration)
	if err != nil {
		s.releaseAfter(ctx, fileID, err)
		return "", false, fmt.Errorf("%w: presign source: %v", common.ErrUpstream, err)
	}

	webhookURL := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/api/webhooks/transcode"
	jobID, err = s.transcoder.StartJob(ctx, fileID, sourceURL, qualities, webhookURL)
	if err != nil {
		s.releaseAfter(ctx, fileID, err)
		return "", false, err
	}

	if err := s.repomanager.Files(s.db).SetTranscodeJob(ctx, fileID, jobID); err != nil {
		return "", false, err
	}
	s.logger.Info(ctx, "transcode started", "fileId", fileID, "jobId", jobID, "qualities", qualities)
	return jobID, true, nil
}

func (s *FileService) releaseAfter(ctx context.Context, fileID string, cause error) {
	if err := s.repomanager.Files(s.db).ReleaseTranscode(ctx, fileID, cause.Error()); err != nil {
		s.logger.Error(ctx, "release transcode claim", "fileId", fileID, "error", err)
	}
}

// CompleteTranscode records a finished job.
func (s *FileService) CompleteTranscode(ctx context.Context, fileID string) error {
	return s.patchWithRetry(ctx, fileID, []files.Assignment{
		{Column: "transcoding_status", Value: models.TranscodeCompleted},
		{Column: "transcoding_completed_at", Value: time.Now()},
		{Column: "transcoding_error", Value: ""},
	})
}

// FailTranscode records a failed job, freeing the slot for a retry.
func (s *FileService) FailTranscode(ctx context.Context, fileID string, message string) error {
	return s.repomanager.Files(s.db).ReleaseTranscode(ctx, fileID, message)
}
