package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"filedrop/internal/blob"
	"filedrop/internal/config"
	"filedrop/internal/domain"
	"filedrop/internal/kinds"
	"filedrop/internal/store"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu    sync.Mutex
	files map[uuid.UUID]*domain.FileRecord
}

func newMemStore() *memStore {
	return &memStore{files: make(map[uuid.UUID]*domain.FileRecord)}
}

func (m *memStore) CreateFile(ctx context.Context, record *domain.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *record
	m.files[record.ID] = &clone
	return nil
}

func (m *memStore) GetFile(ctx context.Context, kind string, id uuid.UUID) (*domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.files[id]
	if !ok || record.Kind != kind {
		return nil, store.ErrFileNotFound
	}
	clone := *record
	return &clone, nil
}

func (m *memStore) ListFiles(ctx context.Context, kind string) ([]domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FileRecord
	for _, record := range m.files {
		if record.Kind == kind && record.Status != domain.StatusDeleted {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (m *memStore) MarkReady(ctx context.Context, id uuid.UUID, sizeBytes int64, blobPath, checksum string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.files[id]
	if !ok {
		return store.ErrFileNotFound
	}
	if record.Status != domain.StatusAwaitingUpload {
		return store.ErrNotAwaitingUpload
	}
	record.Status = domain.StatusReady
	record.SizeBytes = sizeBytes
	record.BlobPath = blobPath
	record.Checksum = checksum
	return nil
}

func (m *memStore) UpdateFileStatus(ctx context.Context, id uuid.UUID, status domain.FileStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.files[id]
	if !ok {
		return store.ErrFileNotFound
	}
	record.Status = status
	return nil
}

func (m *memStore) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.files[id]
	if !ok || record.Status == domain.StatusDeleted {
		return store.ErrFileNotFound
	}
	record.Status = domain.StatusDeleted
	record.BlobPath = ""
	return nil
}

func mustRegistry(t *testing.T, yamlBody string) *kinds.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kinds.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write kinds file: %v", err)
	}
	registry, err := kinds.Load(path)
	if err != nil {
		t.Fatalf("load kinds: %v", err)
	}
	return registry
}

func testHandler(t *testing.T, apiKey string) (*Handler, *memStore) {
	t.Helper()
	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}
	st := newMemStore()
	registry := kinds.Default()
	cfg := &config.Config{APIKey: apiKey}
	return NewHandler(cfg, registry, st, blobs, nil), st
}

func doRequest(h *Handler, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func createFile(t *testing.T, h *Handler, name string) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{"name": name, "mimeType": "text/plain"})
	rec := doRequest(h, http.MethodPost, "/api/files/attachment/", payload, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		File struct {
			ID string `json:"id"`
		} `json:"file"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.File.ID
}

func TestHandleCreate(t *testing.T) {
	h, st := testHandler(t, "")

	id := createFile(t, h, "report.txt")
	parsed, err := uuid.Parse(id)
	assert.NoError(t, err)

	record, err := st.GetFile(context.Background(), "attachment", parsed)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingUpload, record.Status)
	assert.Equal(t, "report.txt", record.Name)
}

func TestHandleCreateValidation(t *testing.T) {
	h, _ := testHandler(t, "")

	tests := []struct {
		name       string
		path       string
		payload    map[string]any
		wantStatus int
	}{
		{
			name:       "missing name",
			path:       "/api/files/attachment/",
			payload:    map[string]any{"mimeType": "text/plain"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown kind",
			path:       "/api/files/nope/",
			payload:    map[string]any{"name": "a.txt"},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, _ := json.Marshal(tt.payload)
			rec := doRequest(h, http.MethodPost, tt.path, payload, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleCreateDisallowedMime(t *testing.T) {
	blobs, err := blob.NewLocalStore(t.TempDir())
	assert.NoError(t, err)
	registry := mustRegistry(t, `
kinds:
  - id: image
    maxSizeBytes: 1024
    allowedMimeTypes: ["image/png"]
`)
	h := NewHandler(&config.Config{}, registry, newMemStore(), blobs, nil)

	payload, _ := json.Marshal(map[string]any{"name": "a.exe", "mimeType": "application/x-msdownload"})
	rec := doRequest(h, http.MethodPost, "/api/files/image/", payload, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUploadBlobRoundtrip(t *testing.T) {
	h, st := testHandler(t, "")
	id := createFile(t, h, "report.txt")

	content := []byte("hello filedrop")
	rec := doRequest(h, http.MethodPut, "/api/files/attachment/"+id+"/blob", content, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	parsed, _ := uuid.Parse(id)
	record, err := st.GetFile(context.Background(), "attachment", parsed)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusReady, record.Status)
	assert.Equal(t, int64(len(content)), record.SizeBytes)
	assert.NotEmpty(t, record.Checksum)

	// Second upload for the same record is rejected.
	rec = doRequest(h, http.MethodPut, "/api/files/attachment/"+id+"/blob", content, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Content comes back unchanged.
	rec = doRequest(h, http.MethodGet, "/api/files/attachment/"+id+"/blob", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestHandleUploadBlobTooLarge(t *testing.T) {
	blobs, err := blob.NewLocalStore(t.TempDir())
	assert.NoError(t, err)
	registry := mustRegistry(t, `
kinds:
  - id: tiny
    maxSizeBytes: 8
`)
	st := newMemStore()
	h := NewHandler(&config.Config{}, registry, st, blobs, nil)

	payload, _ := json.Marshal(map[string]any{"name": "big.bin"})
	rec := doRequest(h, http.MethodPost, "/api/files/tiny/", payload, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		File struct {
			ID string `json:"id"`
		} `json:"file"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = doRequest(h, http.MethodPut, "/api/files/tiny/"+resp.File.ID+"/blob", make([]byte, 64), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	parsed, _ := uuid.Parse(resp.File.ID)
	record, err := st.GetFile(context.Background(), "tiny", parsed)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusUploadError, record.Status)
}

func TestHandleUploadBlobUnknownID(t *testing.T) {
	h, _ := testHandler(t, "")
	rec := doRequest(h, http.MethodPut, "/api/files/attachment/"+uuid.NewString()+"/blob", []byte("x"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDelete(t *testing.T) {
	h, st := testHandler(t, "")
	id := createFile(t, h, "report.txt")
	doRequest(h, http.MethodPut, "/api/files/attachment/"+id+"/blob", []byte("content"), nil)

	rec := doRequest(h, http.MethodDelete, "/api/files/attachment/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	parsed, _ := uuid.Parse(id)
	record, err := st.GetFile(context.Background(), "attachment", parsed)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, record.Status)

	// Deleting again reports not found.
	rec = doRequest(h, http.MethodDelete, "/api/files/attachment/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleList(t *testing.T) {
	h, _ := testHandler(t, "")
	createFile(t, h, "a.txt")
	createFile(t, h, "b.txt")

	rec := doRequest(h, http.MethodGet, "/api/files/attachment/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Files []fileJSON `json:"files"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Files, 2)
}

func TestAuthRequired(t *testing.T) {
	h, _ := testHandler(t, "secret")

	payload, _ := json.Marshal(map[string]any{"name": "a.txt"})
	rec := doRequest(h, http.MethodPost, "/api/files/attachment/", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(h, http.MethodPost, "/api/files/attachment/", payload, map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealth(t *testing.T) {
	h, _ := testHandler(t, "secret")
	rec := doRequest(h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
