package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"filedrop/internal/blob"
	"filedrop/internal/config"
	"filedrop/internal/domain"
	"filedrop/internal/kinds"
	"filedrop/internal/store"
)

// Handler wires HTTP routes to the file store and blob backend.
type Handler struct {
	cfg      *config.Config
	registry *kinds.Registry
	store    store.Store
	blobs    blob.Store
	logger   *log.Logger
}

// NewHandler creates a Handler instance.
func NewHandler(cfg *config.Config, registry *kinds.Registry, st store.Store, blobs blob.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{cfg: cfg, registry: registry, store: st, blobs: blobs, logger: logger}
}

// Router returns a configured chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(h.requestLog)

	r.Get("/healthz", h.handleHealth)
	r.Route("/api/files/{kind}", func(r chi.Router) {
		r.Post("/", h.withAuth(h.handleCreate))
		r.Get("/", h.withAuth(h.handleList))
		r.Get("/{fileID}", h.withAuth(h.handleGet))
		r.Put("/{fileID}/blob", h.withAuth(h.handleUploadBlob))
		r.Get("/{fileID}/blob", h.withAuth(h.handleDownloadBlob))
		r.Delete("/{fileID}", h.withAuth(h.handleDelete))
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createFileRequest struct {
	Name     string          `json:"name"`
	MimeType string          `json:"mimeType"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

type fileJSON struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Name      string          `json:"name"`
	MimeType  string          `json:"mimeType"`
	SizeBytes int64           `json:"size"`
	Status    string          `json:"status"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	Checksum  string          `json:"checksum,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toFileJSON(record *domain.FileRecord) fileJSON {
	return fileJSON{
		ID:        record.ID.String(),
		Kind:      record.Kind,
		Name:      record.Name,
		MimeType:  record.MimeType,
		SizeBytes: record.SizeBytes,
		Status:    string(record.Status),
		Meta:      record.Meta,
		Checksum:  record.Checksum,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, kind domain.FileKind) {
	var req createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.MimeType != "" && !kind.AllowsMimeType(req.MimeType) {
		writeError(w, http.StatusBadRequest, "mime type not allowed for kind "+kind.ID)
		return
	}

	now := time.Now().UTC()
	record := &domain.FileRecord{
		ID:        uuid.New(),
		Kind:      kind.ID,
		Name:      req.Name,
		MimeType:  req.MimeType,
		Status:    domain.StatusAwaitingUpload,
		Meta:      req.Meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateFile(r.Context(), record); err != nil {
		h.logger.Error("create file record failed", "kind", kind.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create file record")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"file": toFileJSON(record)})
}

func (h *Handler) handleUploadBlob(w http.ResponseWriter, r *http.Request, kind domain.FileKind) {
	record, ok := h.lookupFile(w, r, kind)
	if !ok {
		return
	}
	if record.Status != domain.StatusAwaitingUpload {
		writeError(w, http.StatusConflict, "file is not awaiting upload")
		return
	}

	body := r.Body
	if kind.MaxSizeBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, kind.MaxSizeBytes)
	}

	result, err := h.blobs.Put(r.Context(), kind.ID, record.ID, body)
	if err != nil {
		if statusErr := h.store.UpdateFileStatus(r.Context(), record.ID, domain.StatusUploadError); statusErr != nil {
			h.logger.Error("mark upload error failed", "id", record.ID, "err", statusErr)
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds kind size limit")
			return
		}
		h.logger.Error("blob write failed", "id", record.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store file content")
		return
	}

	if err := h.store.MarkReady(r.Context(), record.ID, result.Size, result.Path, result.Checksum); err != nil {
		if errors.Is(err, store.ErrNotAwaitingUpload) {
			writeError(w, http.StatusConflict, "file is not awaiting upload")
			return
		}
		h.logger.Error("mark ready failed", "id", record.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to finalize upload")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"size":     result.Size,
		"checksum": result.Checksum,
	})
}

func (h *Handler) handleDownloadBlob(w http.ResponseWriter, r *http.Request, kind domain.FileKind) {
	record, ok := h.lookupFile(w, r, kind)
	if !ok {
		return
	}
	if record.Status != domain.StatusReady {
		writeError(w, http.StatusConflict, "file has no content")
		return
	}

	reader, err := h.blobs.Open(r.Context(), record.BlobPath)
	if err != nil {
		h.logger.Error("blob open failed", "id", record.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to open file content")
		return
	}
	defer reader.Close()

	contentType := record.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Error("blob stream failed", "id", record.ID, "err", err)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, kind domain.FileKind) {
	record, ok := h.lookupFile(w, r, kind)
	if !ok {
		return
	}

	// Blob removal is best-effort; the record flips to deleted regardless.
	if record.BlobPath != "" {
		if err := h.blobs.Remove(r.Context(), record.BlobPath); err != nil {
			h.logger.Warn("blob removal failed", "id", record.ID, "path", record.BlobPath, "err", err)
		}
	}

	if err := h.store.MarkDeleted(r.Context(), record.ID); err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("mark deleted failed", "id", record.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, kind domain.FileKind) {
	record, ok := h.lookupFile(w, r, kind)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": toFileJSON(record)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, kind domain.FileKind) {
	records, err := h.store.ListFiles(r.Context(), kind.ID)
	if err != nil {
		h.logger.Error("list files failed", "kind", kind.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	files := make([]fileJSON, 0, len(records))
	for i := range records {
		files = append(files, toFileJSON(&records[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *Handler) lookupFile(w http.ResponseWriter, r *http.Request, kind domain.FileKind) (*domain.FileRecord, bool) {
	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return nil, false
	}
	record, err := h.store.GetFile(r.Context(), kind.ID, fileID)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return nil, false
		}
		h.logger.Error("get file failed", "id", fileID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load file record")
		return nil, false
	}
	return record, true
}

type kindHandler func(http.ResponseWriter, *http.Request, domain.FileKind)

// withAuth checks the API key when one is configured and resolves the kind
// route parameter before handing off.
func (h *Handler) withAuth(next kindHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.APIKey != "" {
			if apiKey := r.Header.Get("X-API-Key"); apiKey != h.cfg.APIKey {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		kindID := chi.URLParam(r, "kind")
		kind, ok := h.registry.Get(kindID)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown file kind "+kindID)
			return
		}
		next(w, r, kind)
	}
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
