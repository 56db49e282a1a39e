package store

import (
	"context"

	"github.com/google/uuid"

	"filedrop/internal/domain"
)

// Store defines persistence behavior for file records.
type Store interface {
	CreateFile(ctx context.Context, record *domain.FileRecord) error
	GetFile(ctx context.Context, kind string, id uuid.UUID) (*domain.FileRecord, error)
	ListFiles(ctx context.Context, kind string) ([]domain.FileRecord, error)
	// MarkReady records a completed content upload.
	MarkReady(ctx context.Context, id uuid.UUID, sizeBytes int64, blobPath, checksum string) error
	UpdateFileStatus(ctx context.Context, id uuid.UUID, status domain.FileStatus) error
	// MarkDeleted flips the record to deleted and detaches its blob path.
	MarkDeleted(ctx context.Context, id uuid.UUID) error
}
