package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore keeps blobs on the local filesystem under basePath/kind/id.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a LocalStore rooted at basePath.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{basePath: basePath}, nil
}

// Put copies the incoming reader to disk and computes its checksum. The
// write goes to a .partial file first and is renamed into place so readers
// never observe a half-written blob.
func (s *LocalStore) Put(ctx context.Context, kind string, id uuid.UUID, data io.Reader) (PutResult, error) {
	blobPath := filepath.Join(s.basePath, kind, id.String())
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return PutResult{}, err
	}

	tmpPath := blobPath + ".partial"
	file, err := os.Create(tmpPath)
	if err != nil {
		return PutResult{}, err
	}
	defer file.Close()

	hasher := sha256.New()
	w := io.MultiWriter(file, hasher)
	written, err := io.Copy(w, data)
	if err != nil {
		_ = os.Remove(tmpPath)
		return PutResult{}, err
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return PutResult{}, err
	}

	if err := os.Rename(tmpPath, blobPath); err != nil {
		_ = os.Remove(tmpPath)
		return PutResult{}, err
	}

	return PutResult{
		Path:     blobPath,
		Size:     written,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open opens a stored blob for reading.
func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Remove deletes a stored blob. A missing blob is not an error.
func (s *LocalStore) Remove(ctx context.Context, path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
