package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"filedrop/internal/domain"
)

// Status captures the lifecycle of one file within a batch. Transitions are
// monotonic within a single upload attempt: idle -> uploading ->
// {uploaded | upload_failed}. A failed record re-enters uploading only
// through a new Upload call.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusUploading    Status = "uploading"
	StatusUploaded     Status = "uploaded"
	StatusUploadFailed Status = "upload_failed"
)

// ErrInvalidState is returned when an operation is called while the
// coordinator is in an incompatible state, e.g. SetFiles during an upload.
var ErrInvalidState = errors.New("invalid state")

// SizeLimitError marks a file that exceeds the kind's maximum size. It is
// recorded on records at SetFiles time and never reaches the network.
type SizeLimitError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("file %q is too large: %d bytes exceeds limit of %d bytes", e.Name, e.Size, e.Limit)
}

// File is one user-selected file staged for upload.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Record is a point-in-time snapshot of one file's state within the batch.
type Record struct {
	Name   string
	Size   int64
	Status Status
	ID     string
	Err    error
}

// DoneFile identifies one successfully uploaded file in a done event.
type DoneFile struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// EventType discriminates observer notifications.
type EventType string

const (
	EventChange EventType = "change"
	EventDone   EventType = "done"
	EventClear  EventType = "clear"
)

// Event is delivered to registered observers on every state change. Done
// events additionally carry one DoneFile per record and fire exactly once
// per completed batch. Observers must not call back into the coordinator.
type Event struct {
	Type    EventType
	Records []Record
	Done    []DoneFile
}

// Options tune coordinator behavior.
type Options struct {
	// AllowRepeatedUploads clears the batch after a fully successful upload
	// cycle so the same coordinator can be reused for the next selection.
	AllowRepeatedUploads bool
	Logger               *log.Logger
}

type record struct {
	file   File
	status Status
	id     string
	err    error
}

// Coordinator drives zero or more independent file uploads as one logical
// operation. Per-file attempts run on their own goroutines and are
// independent except for the shared abort signal; aggregate state is
// recomputed under a single mutex on every record change.
type Coordinator struct {
	kind   domain.FileKind
	client Client
	opts   Options
	logger *log.Logger

	mu        sync.Mutex
	records   []*record
	uploading bool
	cancel    context.CancelFunc
	done      []DoneFile
	observers []func(Event)
}

// New creates a Coordinator for the given file kind backed by client.
func New(kind domain.FileKind, client Client, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		kind:   kind,
		client: client,
		opts:   opts,
		logger: logger,
	}
}

// SetFiles replaces the batch. It fails with ErrInvalidState while an upload
// is in progress. Statuses reset to idle; if any file exceeds the kind's
// size limit, every record in the batch is marked upload_failed with a
// SizeLimitError. An empty list clears prior completion and error state.
func (c *Coordinator) SetFiles(files []File) error {
	c.mu.Lock()
	if c.uploading {
		c.mu.Unlock()
		return fmt.Errorf("cannot replace files while uploading: %w", ErrInvalidState)
	}

	records := make([]*record, 0, len(files))
	for _, f := range files {
		records = append(records, &record{file: f, status: StatusIdle})
	}

	// Batch-wide validation: one oversize file fails the whole selection.
	if c.kind.MaxSizeBytes > 0 {
		for _, r := range records {
			if r.file.Size > c.kind.MaxSizeBytes {
				oversizeErr := &SizeLimitError{Name: r.file.Name, Size: r.file.Size, Limit: c.kind.MaxSizeBytes}
				for _, rec := range records {
					rec.status = StatusUploadFailed
					rec.err = oversizeErr
				}
				break
			}
		}
	}

	c.records = records
	c.done = nil
	c.mu.Unlock()

	c.notify(Event{Type: EventChange, Records: c.Files()})
	return nil
}

// Upload begins an attempt for every record in idle or upload_failed state
// and returns once all attempts settle. Records in other states are left
// untouched. Individual failures do not short-circuit the wait: cleanup for
// attempts that succeeded before a sibling failed must still run. It fails
// with ErrInvalidState if an upload is already in progress.
func (c *Coordinator) Upload(ctx context.Context, meta map[string]any) error {
	c.mu.Lock()
	if c.uploading {
		c.mu.Unlock()
		return fmt.Errorf("upload already in progress: %w", ErrInvalidState)
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	c.uploading = true
	c.cancel = cancel

	var pending []*record
	for _, r := range c.records {
		if r.status == StatusIdle || r.status == StatusUploadFailed {
			r.status = StatusUploading
			r.err = nil
			r.id = ""
			pending = append(pending, r)
		}
	}
	c.mu.Unlock()

	c.notify(Event{Type: EventChange, Records: c.Files()})

	var wg sync.WaitGroup
	for _, r := range pending {
		wg.Add(1)
		go func(r *record) {
			defer wg.Done()
			c.attempt(attemptCtx, r, meta)
		}(r)
	}
	wg.Wait()
	cancel()

	c.mu.Lock()
	c.uploading = false
	c.cancel = nil
	// Done state is recomputed only for cycles that ran attempts: a repeat
	// Upload on an already completed batch must not re-fire the done event.
	var done []DoneFile
	if len(pending) > 0 && len(c.records) > 0 {
		done = make([]DoneFile, 0, len(c.records))
		for _, r := range c.records {
			if r.status != StatusUploaded {
				done = nil
				break
			}
			done = append(done, DoneFile{ID: r.id, Kind: c.kind.ID})
		}
		c.done = done
	}
	c.mu.Unlock()

	if done != nil {
		c.notify(Event{Type: EventDone, Records: c.Files(), Done: done})
		if c.opts.AllowRepeatedUploads {
			c.Clear()
		}
	}
	return nil
}

// attempt runs the per-file protocol: create a placeholder, stream the body
// under the shared abort context, then record the outcome. A failed or
// cancelled attempt that already holds a remote ID triggers a best-effort
// delete of the placeholder so no orphaned remote object is left behind.
func (c *Coordinator) attempt(ctx context.Context, r *record, meta map[string]any) {
	var id string
	created, err := c.client.Create(ctx, CreateParams{
		Kind:     c.kind.ID,
		Name:     filepath.Base(r.file.Name),
		MimeType: contentTypeFromName(r.file.Name),
		Meta:     meta,
	})
	if err == nil {
		id = created.ID
		c.setRecordID(r, id)

		var body io.ReadCloser
		body, err = r.file.Open()
		if err == nil {
			uploadErr := c.client.Upload(ctx, UploadParams{ID: id, Kind: c.kind.ID, Body: body})
			if closeErr := body.Close(); closeErr != nil {
				c.logger.Warn("failed to close file body", "name", r.file.Name, "err", closeErr)
			}
			err = uploadErr
		}
	}

	if err == nil {
		c.settle(r, StatusUploaded, nil)
		return
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		// Cancellation is deliberate and stays out of the error channel.
		c.settle(r, StatusUploadFailed, nil)
	} else {
		c.settle(r, StatusUploadFailed, err)
	}

	if id != "" {
		// The abort context may already be cancelled; cleanup gets its own.
		if delErr := c.client.Delete(context.Background(), id, c.kind.ID); delErr != nil {
			c.logger.Warn("orphan cleanup failed", "id", id, "kind", c.kind.ID, "err", delErr)
		}
	}
}

// Abort signals cancellation to all in-flight attempts. It fails with
// ErrInvalidState when no upload is in progress. Attempts already past
// their transfer complete normally and are not rolled back.
func (c *Coordinator) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.uploading || c.cancel == nil {
		return fmt.Errorf("no upload in progress: %w", ErrInvalidState)
	}
	c.cancel()
	return nil
}

// Clear resets the batch to empty and drops error and done state. Unlike
// SetFiles it is usable at any time: an in-flight upload is aborted first,
// and its attempts settle against their detached records.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	if c.uploading && c.cancel != nil {
		c.cancel()
	}
	c.records = nil
	c.done = nil
	c.mu.Unlock()

	c.notify(Event{Type: EventClear})
}

// IsUploading reports whether any upload attempt is in flight.
func (c *Coordinator) IsUploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading
}

// Err returns the error of the first record, in batch order, that carries
// one. It is cleared only by a new attempt or by clearing the batch, never
// by sibling successes.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

// Files returns a snapshot of every record in batch order.
func (c *Coordinator) Files() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, Record{
			Name:   r.file.Name,
			Size:   r.file.Size,
			Status: r.status,
			ID:     r.id,
			Err:    r.err,
		})
	}
	return out
}

// Done returns the done files of the last completed batch, or nil if the
// batch has not fully uploaded.
func (c *Coordinator) Done() []DoneFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DoneFile(nil), c.done...)
}

// Notify registers an observer for state-change, done, and clear events.
func (c *Coordinator) Notify(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Coordinator) setRecordID(r *record, id string) {
	c.mu.Lock()
	r.id = id
	c.mu.Unlock()
	c.notify(Event{Type: EventChange, Records: c.Files()})
}

func (c *Coordinator) settle(r *record, status Status, err error) {
	c.mu.Lock()
	r.status = status
	r.err = err
	c.mu.Unlock()
	c.notify(Event{Type: EventChange, Records: c.Files()})
}

func (c *Coordinator) notify(ev Event) {
	c.mu.Lock()
	observers := make([]func(Event), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// contentTypeFromName infers a MIME type from the file extension, falling
// back to application/octet-stream.
func contentTypeFromName(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
