package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"uplink/internal/common"
	"uplink/internal/dbx"
	"uplink/internal/server/models"
)

// PostgresRepository implements session storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, session *models.MultipartSession) error {
	query := `
		INSERT INTO multipart_sessions (upload_id, storage_key, link_id, file_name, file_type, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.UploadID, session.StorageKey, session.LinkID, session.FileName, session.FileType, models.SessionOpen)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, uploadID string) (*models.MultipartSession, error) {
	query := `
		SELECT upload_id, storage_key, link_id, file_name, file_type, status, created_at
		FROM multipart_sessions WHERE upload_id=$1
	`
	result := &models.MultipartSession{}
	err := r.db.QueryRowContext(ctx, query, uploadID).Scan(
		&result.UploadID, &result.StorageKey, &result.LinkID,
		&result.FileName, &result.FileType, &result.Status, &result.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select session: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, uploadID string, status string) error {
	query := `UPDATE multipart_sessions SET status=$2 WHERE upload_id=$1`
	res, err := r.db.ExecContext(ctx, query, uploadID, status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SelectStale(ctx context.Context, cutoff time.Time) ([]*models.MultipartSession, error) {
	query := `
		SELECT upload_id, storage_key, link_id, file_name, file_type, status, created_at
		FROM multipart_sessions WHERE status=$1 AND created_at < $2
	`
	rows, err := r.db.QueryContext(ctx, query, models.SessionOpen, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.MultipartSession
	for rows.Next() {
		var item models.MultipartSession
		if err := rows.Scan(&item.UploadID, &item.StorageKey, &item.LinkID,
			&item.FileName, &item.FileType, &item.Status, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
