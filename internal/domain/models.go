package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FileStatus captures lifecycle of a file record on the service side.
type FileStatus string

const (
	StatusAwaitingUpload FileStatus = "awaiting_upload"
	StatusReady          FileStatus = "ready"
	StatusUploadError    FileStatus = "upload_error"
	StatusDeleted        FileStatus = "deleted"
)

// FileRecord represents one stored file as kept in the DB.
type FileRecord struct {
	ID        uuid.UUID
	Kind      string
	Name      string
	MimeType  string
	SizeBytes int64
	Status    FileStatus
	Meta      json.RawMessage
	BlobPath  string
	Checksum  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FileKind describes a category of files the service accepts. Kinds come
// from configuration; the upload coordinator enforces MaxSizeBytes locally
// before any network call, the service enforces AllowedMimeTypes.
type FileKind struct {
	ID               string   `yaml:"id" json:"id"`
	MaxSizeBytes     int64    `yaml:"maxSizeBytes" json:"maxSizeBytes"`
	AllowedMimeTypes []string `yaml:"allowedMimeTypes" json:"allowedMimeTypes"`
}

// AllowsMimeType reports whether the kind accepts the given MIME type.
// An empty allow-list accepts everything.
func (k FileKind) AllowsMimeType(mimeType string) bool {
	if len(k.AllowedMimeTypes) == 0 {
		return true
	}
	for _, allowed := range k.AllowedMimeTypes {
		if allowed == mimeType {
			return true
		}
	}
	return false
}
