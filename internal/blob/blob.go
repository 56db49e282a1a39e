package blob

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// PutResult describes a stored blob.
type PutResult struct {
	Path     string
	Size     int64
	Checksum string
}

// Store persists raw file content. Implementations: local disk and a
// GitHub repository.
type Store interface {
	Put(ctx context.Context, kind string, id uuid.UUID, data io.Reader) (PutResult, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}
