// Package services contains the application services of the Uplink server:
// the upload-link registry, the chunk/multipart upload coordinator, the file
// record reconciler, the adaptive playback resolver, and webhook ingest.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"uplink/internal/common"
	"uplink/internal/server/models"
	"uplink/internal/server/repositories/repomanager"
)

// linkTokenBytes sizes the random upload-link token (hex doubles it).
const linkTokenBytes = 16

// LinkService manages upload links and acts as the authorization gate for
// the public upload surface.
type LinkService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewLinkService(db *sql.DB, repomanager repomanager.RepositoryManager) *LinkService {
	return &LinkService{db: db, repomanager: repomanager}
}

// Validate authorizes an upload-path request. Rejection reasons keep their
// priority order: unknown link, then inactive, then expired. Nothing on the
// upload path may issue a storage credential before this check passes.
func (s *LinkService) Validate(ctx context.Context, linkID string) (*models.UploadLink, error) {
	if linkID == "" {
		return nil, fmt.Errorf("%w: missing link id", common.ErrorValidation)
	}

	link, err := s.repomanager.Links(s.db).GetByLinkID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if !link.IsActive {
		return nil, common.ErrLinkInactive
	}
	if link.Expired(time.Now()) {
		return nil, common.ErrLinkExpired
	}
	return link, nil
}

// Create mints a new upload link with a random public token.
func (s *LinkService) Create(ctx context.Context, clientName, projectName, createdBy string, expiresAt *time.Time) (*models.UploadLink, error) {
	if clientName == "" || projectName == "" {
		return nil, fmt.Errorf("%w: client and project names are required", common.ErrorValidation)
	}

	token, err := common.MakeRandHexString(linkTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate link token: %w", err)
	}

	link := &models.UploadLink{
		LinkID:      token,
		ClientName:  clientName,
		ProjectName: projectName,
		IsActive:    true,
		ExpiresAt:   expiresAt,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now(),
	}
	if err := s.repomanager.Links(s.db).Create(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// Get returns a link regardless of its active/expired state.
func (s *LinkService) Get(ctx context.Context, linkID string) (*models.UploadLink, error) {
	return s.repomanager.Links(s.db).GetByLinkID(ctx, linkID)
}

// List returns all links, newest first.
func (s *LinkService) List(ctx context.Context) ([]*models.UploadLink, error) {
	return s.repomanager.Links(s.db).List(ctx)
}

// Deactivate soft-disables a link; uploads through it are rejected while the
// record and its history remain.
func (s *LinkService) Deactivate(ctx context.Context, linkID string) error {
	return s.repomanager.Links(s.db).SetActive(ctx, linkID, false)
}

// Delete removes the link record entirely.
func (s *LinkService) Delete(ctx context.Context, linkID string) error {
	return s.repomanager.Links(s.db).Delete(ctx, linkID)
}

// Touch records one completed upload through the link.
func (s *LinkService) Touch(ctx context.Context, linkID string) error {
	return s.repomanager.Links(s.db).Touch(ctx, linkID)
}
