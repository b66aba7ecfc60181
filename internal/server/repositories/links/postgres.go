package links

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"uplink/internal/common"
	"uplink/internal/dbx"
	"uplink/internal/server/models"
)

// PostgresRepository implements link storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

func (r *PostgresRepository) Create(ctx context.Context, link *models.UploadLink) error {
	query := `
		INSERT INTO upload_links (link_id, client_name, project_name, is_active, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		link.LinkID, link.ClientName, link.ProjectName, link.IsActive, link.ExpiresAt, link.CreatedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByLinkID(ctx context.Context, linkID string) (*models.UploadLink, error) {
	query := `
		SELECT link_id, client_name, project_name, is_active, expires_at, upload_count, last_used_at, created_by, created_at
		FROM upload_links WHERE link_id=$1
	`
	result := &models.UploadLink{}
	err := r.db.QueryRowContext(ctx, query, linkID).Scan(
		&result.LinkID, &result.ClientName, &result.ProjectName, &result.IsActive,
		&result.ExpiresAt, &result.UploadCount, &result.LastUsedAt, &result.CreatedBy, &result.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select link: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.UploadLink, error) {
	query := `
		SELECT link_id, client_name, project_name, is_active, expires_at, upload_count, last_used_at, created_by, created_at
		FROM upload_links ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select links: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadLink
	for rows.Next() {
		var item models.UploadLink
		if err := rows.Scan(&item.LinkID, &item.ClientName, &item.ProjectName, &item.IsActive,
			&item.ExpiresAt, &item.UploadCount, &item.LastUsedAt, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, linkID string, active bool) error {
	query := `UPDATE upload_links SET is_active=$2 WHERE link_id=$1`
	return r.execOne(ctx, query, linkID, active)
}

func (r *PostgresRepository) Delete(ctx context.Context, linkID string) error {
	query := `DELETE FROM upload_links WHERE link_id=$1`
	return r.execOne(ctx, query, linkID)
}

func (r *PostgresRepository) Touch(ctx context.Context, linkID string) error {
	query := `UPDATE upload_links SET upload_count=upload_count+1, last_used_at=now() WHERE link_id=$1`
	return r.execOne(ctx, query, linkID)
}

// execOne runs a statement that must affect exactly one row, mapping zero
// rows to common.ErrorNotFound.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
