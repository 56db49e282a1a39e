package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"filedrop/internal/domain"
)

// PostgresStore implements Store using a PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database using the provided connection string.
func NewPostgresStore(ctx context.Context, conn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(conn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) CreateFile(ctx context.Context, record *domain.FileRecord) error {
	if record.Meta == nil {
		record.Meta = json.RawMessage(`{}`)
	}
	query := `
		INSERT INTO files (
			id, kind, name, mime_type, size_bytes, status, meta,
			blob_path, checksum, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,0,$5,$6,'','',now(),now()
		)
	`
	_, err := s.pool.Exec(ctx, query,
		record.ID, record.Kind, record.Name, record.MimeType,
		string(record.Status), record.Meta,
	)
	return err
}

func (s *PostgresStore) GetFile(ctx context.Context, kind string, id uuid.UUID) (*domain.FileRecord, error) {
	query := `
		SELECT id, kind, name, mime_type, size_bytes, status, meta,
		       blob_path, checksum, created_at, updated_at
		FROM files
		WHERE id = $1 AND kind = $2
	`
	row := s.pool.QueryRow(ctx, query, id, kind)
	var record domain.FileRecord
	var status string
	err := row.Scan(
		&record.ID,
		&record.Kind,
		&record.Name,
		&record.MimeType,
		&record.SizeBytes,
		&status,
		&record.Meta,
		&record.BlobPath,
		&record.Checksum,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	record.Status = domain.FileStatus(status)
	return &record, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, kind string) ([]domain.FileRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, name, mime_type, size_bytes, status, meta,
		       blob_path, checksum, created_at, updated_at
		FROM files
		WHERE kind = $1 AND status <> 'deleted'
		ORDER BY created_at ASC
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.FileRecord
	for rows.Next() {
		var record domain.FileRecord
		var status string
		if err := rows.Scan(
			&record.ID,
			&record.Kind,
			&record.Name,
			&record.MimeType,
			&record.SizeBytes,
			&status,
			&record.Meta,
			&record.BlobPath,
			&record.Checksum,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		record.Status = domain.FileStatus(status)
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkReady flips an awaiting_upload record to ready in one statement so a
// concurrent second upload for the same record loses the race.
func (s *PostgresStore) MarkReady(ctx context.Context, id uuid.UUID, sizeBytes int64, blobPath, checksum string) error {
	res, err := s.pool.Exec(ctx, `
		UPDATE files
		SET status='ready', size_bytes=$2, blob_path=$3, checksum=$4, updated_at=now()
		WHERE id=$1 AND status='awaiting_upload'
	`, id, sizeBytes, blobPath, checksum)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotAwaitingUpload
	}
	return nil
}

func (s *PostgresStore) UpdateFileStatus(ctx context.Context, id uuid.UUID, status domain.FileStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE files SET status=$2, updated_at=now() WHERE id=$1
	`, id, string(status))
	return err
}

func (s *PostgresStore) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	res, err := s.pool.Exec(ctx, `
		UPDATE files SET status='deleted', blob_path='', updated_at=now()
		WHERE id=$1 AND status <> 'deleted'
	`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}
