package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"uplink/internal/common"
	"uplink/internal/logging"
	sc "uplink/internal/server/config"
	"uplink/internal/server/models"
)

// WebhookService ingests push notifications from the downstream tiers and
// the transcode worker, translating them into targeted file-record updates.
type WebhookService struct {
	files  *FileService
	cfg    *sc.Config
	logger logging.Logger
}

func NewWebhookService(files *FileService, cfg *sc.Config, logger logging.Logger) *WebhookService {
	return &WebhookService{files: files, cfg: cfg, logger: logger.With("service", "webhook")}
}

type assetReadyEvent struct {
	FileID   string `json:"fileId"`
	AssetID  string `json:"assetId"`
	FolderID string `json:"folderId"`
}

type proxyReadyEvent struct {
	FileID     string `json:"fileId"`
	Quality    string `json:"quality"`
	StorageKey string `json:"storageKey"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type transcodeDoneEvent struct {
	FileID string `json:"fileId"`
	JobID  string `json:"jobId"`
	Error  string `json:"error"`
}

type archiveCompleteEvent struct {
	FileID     string `json:"fileId"`
	ArchiveKey string `json:"archiveKey"`
}

type hqCompleteEvent struct {
	FileID   string `json:"fileId"`
	FilePath string `json:"filePath"`
}

// Handle authenticates and dispatches one webhook event. handled reports
// whether the event type is one this system consumes; unknown types are
// acknowledged without error so senders do not retry them into failure.
// Handlers are idempotent: replaying an event repeats upserts and no-op
// transitions only.
func (s *WebhookService) Handle(ctx context.Context, secret, eventType string, data json.RawMessage) (handled bool, err error) {
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.WebhookSecret)) != 1 {
		return false, common.ErrorUnauthorized
	}

	switch eventType {
	case "asset.ready":
		return true, s.handleAssetReady(ctx, data)
	case "proxy.ready":
		return true, s.handleProxyReady(ctx, data)
	case "transcode.complete":
		return true, s.handleTranscodeComplete(ctx, data)
	case "transcode.failed":
		return true, s.handleTranscodeFailed(ctx, data)
	case "archive.complete":
		return true, s.handleArchiveComplete(ctx, data)
	case "hq.complete":
		return true, s.handleHQComplete(ctx, data)
	default:
		s.logger.Info(ctx, "ignoring webhook event", "event", eventType)
		return false, nil
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: decode payload: %v", common.ErrorValidation, err)
	}
	return v, nil
}

func (s *WebhookService) handleAssetReady(ctx context.Context, data json.RawMessage) error {
	ev, err := decode[assetReadyEvent](data)
	if err != nil {
		return err
	}
	if ev.FileID == "" {
		return fmt.Errorf("%w: missing fileId", common.ErrorValidation)
	}

	status := models.TierComplete
	patch := TierPatch{Status: &status}
	if ev.AssetID != "" {
		patch.AssetID = &ev.AssetID
	}
	if ev.FolderID != "" {
		patch.FolderID = &ev.FolderID
	}
	if err := s.files.ApplyTierUpdate(ctx, ev.FileID, models.TierFrameio, patch); err != nil {
		return err
	}

	// already-processing on replay is fine
	s.transition(ctx, ev.FileID, models.StatusProcessing)
	return nil
}

func (s *WebhookService) handleProxyReady(ctx context.Context, data json.RawMessage) error {
	ev, err := decode[proxyReadyEvent](data)
	if err != nil {
		return err
	}
	if ev.FileID == "" {
		return fmt.Errorf("%w: missing fileId", common.ErrorValidation)
	}
	return s.files.AddProxy(ctx, ev.FileID, models.Proxy{
		Quality:    ev.Quality,
		StorageKey: ev.StorageKey,
		Width:      ev.Width,
		Height:     ev.Height,
	})
}

func (s *WebhookService) handleTranscodeComplete(ctx context.Context, data json.RawMessage) error {
	ev, err := decode[transcodeDoneEvent](data)
	if err != nil {
		return err
	}
	if ev.FileID == "" {
		return fmt.Errorf("%w: missing fileId", common.ErrorValidation)
	}
	if err := s.files.CompleteTranscode(ctx, ev.FileID); err != nil {
		return err
	}
	s.transition(ctx, ev.FileID, models.StatusProcessed)
	return nil
}

func (s *WebhookService) handleTranscodeFailed(ctx context.Context, data json.RawMessage) error {
	ev, err := decode[transcodeDoneEvent](data)
	if err != nil {
		return err
	}
	if ev.FileID == "" {
		return fmt.Errorf("%w: missing fileId", common.ErrorValidation)
	}
	if ev.Error == "" {
		ev.Error = "transcode failed"
	}
	if err := s.files.FailTranscode(ctx, ev.FileID, ev.Error); err != nil {
		return err
	}
	s.transition(ctx, ev.FileID, models.StatusFailed)
	return nil
}

func (s *WebhookService) handleArchiveComplete(ctx context.Context, data json.RawMessage) error {
	ev, err := decode[archiveCompleteEvent](data)
	if err != nil {
		return err
	}
	if ev.FileID == "" {
		return fmt.Errorf("%w: missing fileId", common.ErrorValidation)
	}

	status := models.TierComplete
	patch := TierPatch{Status: &status}
	if ev.ArchiveKey != "" {
		patch.ArchiveKey = &ev.ArchiveKey
	}
	if err := s.files.ApplyTierUpdate(ctx, ev.FileID, models.TierWasabi, patch); err != nil {
		return err
	}

	// the original is durable now; promote processed files
	s.transition(ctx, ev.FileID, models.StatusCompleted)
	return nil
}

func (s *WebhookService) handleHQComplete(ctx context.Context, data json.RawMessage) error {
	ev, err := decode[hqCompleteEvent](data)
	if err != nil {
		return err
	}
	if ev.FileID == "" {
		return fmt.Errorf("%w: missing fileId", common.ErrorValidation)
	}

	status := models.TierComplete
	patch := TierPatch{Status: &status}
	if ev.FilePath != "" {
		patch.FilePath = &ev.FilePath
	}
	return s.files.ApplyTierUpdate(ctx, ev.FileID, models.TierLucidLink, patch)
}

// transition attempts a best-effort status move; a guard miss just means the
// file already advanced (or a replay), which is not an event failure.
func (s *WebhookService) transition(ctx context.Context, fileID string, to models.FileStatus) {
	err := s.files.Transition(ctx, fileID, to)
	if err == nil || errors.Is(err, common.ErrVersionConflict) {
		return
	}
	s.logger.Error(ctx, "status transition", "fileId", fileID, "to", to, "error", err)
}
