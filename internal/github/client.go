package github

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	gogithub "github.com/google/go-github/v60/github"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"filedrop/internal/blob"
)

// BlobStore keeps file content inside a GitHub repository, one object per
// file record under files/<kind>/<id>. It implements blob.Store.
type BlobStore struct {
	client *gogithub.Client
	owner  string
	repo   string
}

// NewBlobStore creates a GitHub-backed blob store using a static access token.
func NewBlobStore(token, owner, repo string) *BlobStore {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &BlobStore{
		client: gogithub.NewClient(tc),
		owner:  owner,
		repo:   repo,
	}
}

// Put writes the blob to the storage repo. Content is buffered in memory:
// the GitHub contents API takes whole objects, and kind size limits are
// enforced before the body reaches this store.
func (s *BlobStore) Put(ctx context.Context, kind string, id uuid.UUID, data io.Reader) (blob.PutResult, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return blob.PutResult{}, err
	}

	path := fmt.Sprintf("files/%s/%s", kind, id.String())
	message := fmt.Sprintf("Store blob %s", id.String())
	opts := &gogithub.RepositoryContentFileOptions{
		Message: gogithub.String(message),
		Content: content,
	}

	// Try create first for better performance; fall back to update if exists.
	_, _, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, path, opts)
	if err != nil {
		if !isUnprocessable(err) {
			return blob.PutResult{}, err
		}
		existing, _, _, getErr := s.client.Repositories.GetContents(ctx, s.owner, s.repo, path, nil)
		if getErr != nil {
			return blob.PutResult{}, getErr
		}
		opts.SHA = existing.SHA
		if _, _, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, path, opts); err != nil {
			return blob.PutResult{}, err
		}
	}

	sum := sha256.Sum256(content)
	return blob.PutResult{
		Path:     path,
		Size:     int64(len(content)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

// Open streams a stored blob back from the repo.
func (s *BlobStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, _, err := s.client.Repositories.DownloadContents(ctx, s.owner, s.repo, path, nil)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// Remove deletes a blob from the storage repo. A missing object is not an
// error so repeated cleanup stays idempotent.
func (s *BlobStore) Remove(ctx context.Context, path string) error {
	contents, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, path, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	opts := &gogithub.RepositoryContentFileOptions{
		Message: gogithub.String(fmt.Sprintf("Remove blob %s", path)),
		SHA:     contents.SHA,
	}
	_, _, err = s.client.Repositories.DeleteFile(ctx, s.owner, s.repo, path, opts)
	return err
}

func isUnprocessable(err error) bool {
	var ghErr *gogithub.ErrorResponse
	if !errors.As(err, &ghErr) {
		return false
	}
	return ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity
}

func isNotFound(err error) bool {
	var ghErr *gogithub.ErrorResponse
	if !errors.As(err, &ghErr) {
		return false
	}
	return ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
