package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"uplink/internal/common"
	"uplink/internal/logging"
	sc "uplink/internal/server/config"
	"uplink/internal/server/models"
	"uplink/internal/server/repositories/repomanager"
)

// UploadStrategy selects how a client moves its bytes to edge storage.
type UploadStrategy string

const (
	StrategyAuto      UploadStrategy = "auto"
	StrategyDirect    UploadStrategy = "direct"
	StrategyMultipart UploadStrategy = "multipart"
)

// PresignResult describes one granted upload credential.
type PresignResult struct {
	Strategy   UploadStrategy `json:"strategy"`
	URL        string         `json:"url,omitempty"`
	StorageKey string         `json:"storageKey"`
	UploadID   string         `json:"uploadId,omitempty"`
	ExpiresIn  int64          `json:"expiresIn"`
}

// PartURL is one presigned part PUT.
type PartURL struct {
	PartNumber int32  `json:"partNumber"`
	URL        string `json:"url"`
}

// UploadService coordinates presigned direct, batch and multipart uploads to
// the edge storage account. Every operation revalidates the upload link
// before a single storage credential is issued.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	links       *LinkService
	edge        ObjectStore
	cfg         *sc.Config
	logger      logging.Logger
}

func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, links *LinkService, edge ObjectStore, cfg *sc.Config, logger logging.Logger) *UploadService {
	return &UploadService{db: db, repomanager: rm, links: links, edge: edge, cfg: cfg, logger: logger.With("service", "upload")}
}

// ChooseStrategy resolves the auto strategy by file size: files at or above
// the multipart threshold go multipart, everything else takes one direct PUT.
func (s *UploadService) ChooseStrategy(requested UploadStrategy, fileSize int64) (UploadStrategy, error) {
	switch requested {
	case StrategyDirect, StrategyMultipart:
		return requested, nil
	case StrategyAuto, "":
		if fileSize >= s.cfg.MultipartThreshold {
			return StrategyMultipart, nil
		}
		return StrategyDirect, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", common.ErrorValidation, requested)
	}
}

// PresignDirect grants one presigned PUT for a single-shot upload.
func (s *UploadService) PresignDirect(ctx context.Context, linkID, fileName, fileType string) (*PresignResult, error) {
	if _, err := s.links.Validate(ctx, linkID); err != nil {
		return nil, err
	}
	if fileName == "" {
		return nil, fmt.Errorf("%w: missing file name", common.ErrorValidation)
	}

	key := fmt.Sprintf("uploads/%s/%s", linkID, fileName)
	url, err := s.edge.PresignPut(ctx, key, fileType, s.cfg.UploadURLValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: presign put: %v", common.ErrUpstream, err)
	}
	return &PresignResult{
		Strategy:   StrategyDirect,
		URL:        url,
		StorageKey: key,
		ExpiresIn:  int64(s.cfg.UploadURLValidityDuration.Seconds()),
	}, nil
}

// Presign resolves the strategy for the announced file size and either grants
// a direct PUT or initiates a multipart session.
func (s *UploadService) Presign(ctx context.Context, linkID, fileName, fileType string, fileSize int64, requested UploadStrategy) (*PresignResult, error) {
	strategy, err := s.ChooseStrategy(requested, fileSize)
	if err != nil {
		return nil, err
	}
	if strategy == StrategyDirect {
		return s.PresignDirect(ctx, linkID, fileName, fileType)
	}
	return s.InitMultipart(ctx, linkID, fileName, fileType)
}

// PresignBatch pre-allocates count placeholder upload URLs. Keys carry a
// "_placeholder" suffix and no content type; registration later resolves them
// to their final names. Generation is all-or-nothing: one presign failure
// fails the whole batch so the client never holds a partial set.
func (s *UploadService) PresignBatch(ctx context.Context, linkID string, count int) ([]PresignResult, error) {
	if _, err := s.links.Validate(ctx, linkID); err != nil {
		return nil, err
	}
	if count < 1 || count > s.cfg.MaxBatchURLs {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", common.ErrorValidation, s.cfg.MaxBatchURLs)
	}

	results := make([]PresignResult, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			key := fmt.Sprintf("uploads/%s/%s_placeholder", linkID, uuid.NewString())
			url, err := s.edge.PresignPut(gctx, key, "", s.cfg.UploadURLValidityDuration)
			if err != nil {
				return fmt.Errorf("%w: presign %s: %v", common.ErrUpstream, key, err)
			}
			results[i] = PresignResult{
				Strategy:   StrategyDirect,
				URL:        url,
				StorageKey: key,
				ExpiresIn:  int64(s.cfg.UploadURLValidityDuration.Seconds()),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// InitMultipart starts a multipart upload and persists the session so the
// sweep can abort it if the client never completes.
func (s *UploadService) InitMultipart(ctx context.Context, linkID, fileName, fileType string) (*PresignResult, error) {
	if _, err := s.links.Validate(ctx, linkID); err != nil {
		return nil, err
	}
	if fileName == "" {
		return nil, fmt.Errorf("%w: missing file name", common.ErrorValidation)
	}

	key := fmt.Sprintf("uploads/%s/%s", linkID, fileName)
	uploadID, err := s.edge.CreateMultipart(ctx, key, fileType)
	if err != nil {
		return nil, fmt.Errorf("%w: create multipart: %v", common.ErrUpstream, err)
	}

	session := &models.MultipartSession{
		UploadID:   uploadID,
		StorageKey: key,
		LinkID:     linkID,
		FileName:   fileName,
		FileType:   fileType,
		Status:     models.SessionOpen,
		CreatedAt:  time.Now(),
	}
	if err := s.repomanager.Sessions(s.db).Create(ctx, session); err != nil {
		// the provider-side upload must not outlive a session we failed to record
		if abortErr := s.edge.AbortMultipart(ctx, key, uploadID); abortErr != nil {
			s.logger.Error(ctx, "abort after session create failure", "uploadId", uploadID, "error", abortErr)
		}
		return nil, err
	}

	return &PresignResult{
		Strategy:   StrategyMultipart,
		StorageKey: key,
		UploadID:   uploadID,
		ExpiresIn:  int64(s.cfg.PartURLValidityDuration.Seconds()),
	}, nil
}

// PartURLs presigns PUT URLs for the requested part numbers in parallel.
// All-or-nothing: a single presign failure fails the call.
func (s *UploadService) PartURLs(ctx context.Context, linkID, uploadID, storageKey string, partNumbers []int32) ([]PartURL, error) {
	if _, err := s.links.Validate(ctx, linkID); err != nil {
		return nil, err
	}
	if len(partNumbers) == 0 {
		return nil, fmt.Errorf("%w: no part numbers", common.ErrorValidation)
	}
	for _, n := range partNumbers {
		if n < 1 {
			return nil, fmt.Errorf("%w: invalid part number %d", common.ErrorValidation, n)
		}
	}
	session, err := s.openSession(ctx, uploadID, storageKey)
	if err != nil {
		return nil, err
	}

	urls := make([]PartURL, len(partNumbers))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range partNumbers {
		i, n := i, n
		g.Go(func() error {
			url, err := s.edge.PresignUploadPart(gctx, session.StorageKey, uploadID, n, s.cfg.PartURLValidityDuration)
			if err != nil {
				return fmt.Errorf("%w: presign part %d: %v", common.ErrUpstream, n, err)
			}
			urls[i] = PartURL{PartNumber: n, URL: url}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// Complete finalizes a multipart upload. On provider-side failure the upload
// is aborted immediately so orphaned parts do not accrue storage charges.
func (s *UploadService) Complete(ctx context.Context, linkID, uploadID, storageKey string, parts []models.Part) (location string, err error) {
	if _, err := s.links.Validate(ctx, linkID); err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no parts", common.ErrorValidation)
	}
	session, err := s.openSession(ctx, uploadID, storageKey)
	if err != nil {
		return "", err
	}

	location, err = s.edge.CompleteMultipart(ctx, session.StorageKey, uploadID, parts)
	if err != nil {
		if abortErr := s.edge.AbortMultipart(ctx, session.StorageKey, uploadID); abortErr != nil {
			s.logger.Error(ctx, "abort after completion failure", "uploadId", uploadID, "error", abortErr)
		}
		if stErr := s.repomanager.Sessions(s.db).SetStatus(ctx, uploadID, models.SessionAborted); stErr != nil {
			s.logger.Error(ctx, "mark session aborted", "uploadId", uploadID, "error", stErr)
		}
		return "", fmt.Errorf("%w: complete multipart: %v", common.ErrUpstream, err)
	}

	if stErr := s.repomanager.Sessions(s.db).SetStatus(ctx, uploadID, models.SessionCompleted); stErr != nil {
		s.logger.Error(ctx, "mark session completed", "uploadId", uploadID, "error", stErr)
	}
	return location, nil
}

// SweepStale aborts open multipart sessions older than the configured max
// age. Errors on individual sessions are logged and do not stop the sweep.
func (s *UploadService) SweepStale(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.SweepMaxAge)
	stale, err := s.repomanager.Sessions(s.db).SelectStale(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, session := range stale {
		if err := s.edge.AbortMultipart(ctx, session.StorageKey, session.UploadID); err != nil {
			s.logger.Error(ctx, "sweep abort", "uploadId", session.UploadID, "key", session.StorageKey, "error", err)
			continue
		}
		if err := s.repomanager.Sessions(s.db).SetStatus(ctx, session.UploadID, models.SessionAborted); err != nil {
			s.logger.Error(ctx, "sweep mark aborted", "uploadId", session.UploadID, "error", err)
			continue
		}
		s.logger.Info(ctx, "aborted stale multipart session", "uploadId", session.UploadID, "key", session.StorageKey)
	}
	return nil
}

// openSession loads a session and verifies it is still open and that the
// caller-supplied key matches the one the upload was initiated with.
func (s *UploadService) openSession(ctx context.Context, uploadID, storageKey string) (*models.MultipartSession, error) {
	if uploadID == "" {
		return nil, fmt.Errorf("%w: missing upload id", common.ErrorValidation)
	}
	session, err := s.repomanager.Sessions(s.db).Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionOpen {
		return nil, fmt.Errorf("%w: session %s is %s", common.ErrorValidation, uploadID, session.Status)
	}
	if storageKey != "" && storageKey != session.StorageKey {
		return nil, fmt.Errorf("%w: storage key mismatch", common.ErrorValidation)
	}
	return session, nil
}
