package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"filedrop/internal/batch"
)

// FilesClient talks to the filedrop files API. It implements batch.Client
// so the upload coordinator can run against a remote service.
type FilesClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a FilesClient for the given server base URL.
func New(baseURL, apiKey string) *FilesClient {
	return &FilesClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

type createRequest struct {
	Name     string         `json:"name"`
	MimeType string         `json:"mimeType"`
	Meta     map[string]any `json:"meta,omitempty"`
}

type createResponse struct {
	File struct {
		ID string `json:"id"`
	} `json:"file"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Create registers a file placeholder and returns its assigned id.
func (c *FilesClient) Create(ctx context.Context, params batch.CreateParams) (batch.CreatedFile, error) {
	payload, err := json.Marshal(createRequest{
		Name:     params.Name,
		MimeType: params.MimeType,
		Meta:     params.Meta,
	})
	if err != nil {
		return batch.CreatedFile{}, fmt.Errorf("marshal create request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/files/%s", c.baseURL, url.PathEscape(params.Kind))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return batch.CreatedFile{}, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return batch.CreatedFile{}, fmt.Errorf("create file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return batch.CreatedFile{}, responseError("create file", resp)
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return batch.CreatedFile{}, fmt.Errorf("decode create response: %w", err)
	}
	if out.File.ID == "" {
		return batch.CreatedFile{}, fmt.Errorf("create file: server returned empty id")
	}
	return batch.CreatedFile{ID: out.File.ID}, nil
}

// Upload streams the file body to the placeholder's blob endpoint. The
// context doubles as the coordinator's abort signal: cancelling it tears
// down the transfer mid-flight.
func (c *FilesClient) Upload(ctx context.Context, params batch.UploadParams) error {
	endpoint := fmt.Sprintf("%s/api/files/%s/%s/blob", c.baseURL, url.PathEscape(params.Kind), url.PathEscape(params.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, params.Body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("upload cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError("upload file", resp)
	}
	return nil
}

// Delete removes a file record and its blob.
func (c *FilesClient) Delete(ctx context.Context, id string, kind string) error {
	endpoint := fmt.Sprintf("%s/api/files/%s/%s", c.baseURL, url.PathEscape(kind), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return responseError("delete file", resp)
	}
	return nil
}

func (c *FilesClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return fmt.Errorf("%s: %s (status %d)", op, parsed.Error, resp.StatusCode)
	}
	return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
}
