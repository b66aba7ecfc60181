package files

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"uplink/internal/common"
	"uplink/internal/dbx"
	"uplink/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// patchableColumns is the whitelist for PatchColumns. Anything outside it is
// a programming error, not caller input.
var patchableColumns = map[string]struct{}{
	"status":                   {},
	"storage_key":              {},
	"frameio_status":           {},
	"frameio_asset_id":         {},
	"frameio_folder_id":        {},
	"r2_status":                {},
	"r2_original_key":          {},
	"wasabi_status":            {},
	"wasabi_archive_key":       {},
	"lucidlink_status":         {},
	"lucidlink_file_path":      {},
	"transcoding_job_id":       {},
	"transcoding_status":       {},
	"transcoding_completed_at": {},
	"transcoding_error":        {},
}

const fileColumns = `id, file_name, file_size, file_type, storage_key, client_name, project_name, link_id,
		status, version,
		frameio_status, frameio_asset_id, frameio_folder_id,
		r2_status, r2_original_key,
		wasabi_status, wasabi_archive_key,
		lucidlink_status, lucidlink_file_path,
		transcoding_job_id, transcoding_status, transcoding_qualities,
		transcoding_started_at, transcoding_completed_at, transcoding_error,
		created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, file_name, file_size, file_type, storage_key, client_name, project_name, link_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		file.ID, file.FileName, file.FileSize, file.FileType, file.StorageKey,
		file.ClientName, file.ProjectName, file.LinkID, file.Status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanFile(row interface{ Scan(dest ...any) error }) (*models.File, error) {
	var f models.File
	var qualities []byte
	err := row.Scan(
		&f.ID, &f.FileName, &f.FileSize, &f.FileType, &f.StorageKey, &f.ClientName, &f.ProjectName, &f.LinkID,
		&f.Status, &f.Version,
		&f.Frameio.Status, &f.Frameio.AssetID, &f.Frameio.FolderID,
		&f.R2.Status, &f.R2.OriginalKey,
		&f.Wasabi.Status, &f.Wasabi.ArchiveKey,
		&f.LucidLink.Status, &f.LucidLink.FilePath,
		&f.Transcoding.JobID, &f.Transcoding.Status, &qualities,
		&f.Transcoding.StartedAt, &f.Transcoding.CompletedAt, &f.Transcoding.Error,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(qualities) > 0 {
		if err := json.Unmarshal(qualities, &f.Transcoding.Qualities); err != nil {
			return nil, fmt.Errorf("decode qualities: %w", err)
		}
	}
	return &f, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id=$1`

	file, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}

	proxies, err := r.listProxies(ctx, id)
	if err != nil {
		return nil, err
	}
	file.Proxies = proxies
	return file, nil
}

func (r *PostgresRepository) ListByLink(ctx context.Context, linkID string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE link_id=$1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id=$1`, id)
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

func (r *PostgresRepository) PatchColumns(ctx context.Context, id string, version int64, assignments []Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	var sets []string
	args := []any{id, version}
	for _, a := range assignments {
		if _, ok := patchableColumns[a.Column]; !ok {
			return fmt.Errorf("column %q is not patchable", a.Column)
		}
		args = append(args, a.Value)
		sets = append(sets, fmt.Sprintf("%s=$%d", a.Column, len(args)))
	}

	query := fmt.Sprintf(
		`UPDATE files SET %s, version=version+1, updated_at=now() WHERE id=$1 AND version=$2`,
		strings.Join(sets, ", "))

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
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, to models.FileStatus, from ...models.FileStatus) (bool, error) {
	args := []any{id, to}
	query := `UPDATE files SET status=$2, version=version+1, updated_at=now() WHERE id=$1`
	if len(from) > 0 {
		var ph []string
		for _, s := range from {
			args = append(args, s)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		query += ` AND status IN (` + strings.Join(ph, ", ") + `)`
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) AddProxy(ctx context.Context, fileID string, proxy models.Proxy) error {
	query := `
		INSERT INTO file_proxies (file_id, quality, storage_key, width, height)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file_id, quality)
		DO UPDATE SET storage_key = EXCLUDED.storage_key, width = EXCLUDED.width, height = EXCLUDED.height
	`
	_, err := r.db.ExecContext(ctx, query, fileID, proxy.Quality, proxy.StorageKey, proxy.Width, proxy.Height)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) listProxies(ctx context.Context, fileID string) ([]models.Proxy, error) {
	query := `
		SELECT quality, storage_key, width, height FROM file_proxies
		WHERE file_id=$1 ORDER BY created_at, quality
	`
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select proxies: %w", err)
	}
	defer rows.Close()

	var result []models.Proxy
	for rows.Next() {
		var p models.Proxy
		if err := rows.Scan(&p.Quality, &p.StorageKey, &p.Width, &p.Height); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ClaimTranscode(ctx context.Context, fileID string, qualities []string, startedAt time.Time) (bool, error) {
	encoded, err := json.Marshal(qualities)
	if err != nil {
		return false, fmt.Errorf("encode qualities: %w", err)
	}

	// The WHERE clause is the lock: only one concurrent caller can move the
	// slot into 'processing'.
	query := `
		UPDATE files SET
			transcoding_status='processing',
			transcoding_job_id='',
			transcoding_qualities=$2,
			transcoding_started_at=$3,
			transcoding_completed_at=NULL,
			transcoding_error='',
			version=version+1,
			updated_at=now()
		WHERE id=$1 AND transcoding_status IN ('', 'failed')
	`
	res, err := r.db.ExecContext(ctx, query, fileID, encoded, startedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetTranscodeJob(ctx context.Context, fileID string, jobID string) error {
	query := `UPDATE files SET transcoding_job_id=$2, version=version+1, updated_at=now() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, query, fileID, jobID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ReleaseTranscode(ctx context.Context, fileID string, message string) error {
	query := `
		UPDATE files SET transcoding_status='failed', transcoding_error=$2, version=version+1, updated_at=now()
		WHERE id=$1 AND transcoding_status='processing'
	`
	if _, err := r.db.ExecContext(ctx, query, fileID, message); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
