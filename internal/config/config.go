package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultPort    = "8080"
	defaultBlobDir = "filedrop/blobs"

	// BackendLocal keeps blobs on the local filesystem; BackendGitHub keeps
	// them in a GitHub repository.
	BackendLocal  = "local"
	BackendGitHub = "github"
)

// Config captures server runtime configuration.
type Config struct {
	Port        string
	DatabaseURL string
	APIKey      string
	KindsPath   string
	BlobBackend string
	BlobDir     string
	GitHubToken string
	GitHubOwner string
	GitHubRepo  string
}

// Load reads environment variables into a Config structure.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("FILEDROP_PORT", defaultPort),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		APIKey:      os.Getenv("FILEDROP_API_KEY"),
		KindsPath:   os.Getenv("FILEDROP_KINDS_FILE"),
		BlobBackend: getEnv("FILEDROP_BLOB_BACKEND", BackendLocal),
		BlobDir:     getEnv("FILEDROP_BLOB_DIR", defaultBlobDir),
		GitHubToken: os.Getenv("GITHUB_ACCESS_TOKEN"),
		GitHubOwner: os.Getenv("GITHUB_STORAGE_OWNER"),
		GitHubRepo:  os.Getenv("GITHUB_STORAGE_REPO"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	switch cfg.BlobBackend {
	case BackendLocal:
		if !filepath.IsAbs(cfg.BlobDir) {
			cfg.BlobDir = filepath.Join(os.TempDir(), cfg.BlobDir)
		}
	case BackendGitHub:
		if cfg.GitHubToken == "" {
			return nil, errors.New("GITHUB_ACCESS_TOKEN is required for the github blob backend")
		}
		if cfg.GitHubOwner == "" {
			return nil, errors.New("GITHUB_STORAGE_OWNER is required for the github blob backend")
		}
		if cfg.GitHubRepo == "" {
			return nil, errors.New("GITHUB_STORAGE_REPO is required for the github blob backend")
		}
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
