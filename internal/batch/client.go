package batch

import (
	"context"
	"io"
)

// CreateParams is sent to the backend when registering a file placeholder.
type CreateParams struct {
	Kind     string
	Name     string
	MimeType string
	Meta     map[string]any
}

// CreatedFile is the backend's answer to Create.
type CreatedFile struct {
	ID string
}

// UploadParams carries one file body to the backend.
type UploadParams struct {
	ID   string
	Kind string
	Body io.Reader
}

// Client is the backend boundary the coordinator drives. All three
// operations are blocking and honor context cancellation. Delete is
// best-effort: the coordinator ignores its result beyond logging.
type Client interface {
	Create(ctx context.Context, params CreateParams) (CreatedFile, error)
	Upload(ctx context.Context, params UploadParams) error
	Delete(ctx context.Context, id string, kind string) error
}
