package kinds

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"filedrop/internal/domain"
)

const defaultMaxSizeBytes = 100 * 1024 * 1024 // 100MB

// Registry holds the file kinds the service accepts, keyed by kind id.
type Registry struct {
	kinds map[string]domain.FileKind
}

type kindsFile struct {
	Kinds []domain.FileKind `yaml:"kinds"`
}

// Load reads a kind registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kinds file: %w", err)
	}
	var parsed kindsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse kinds file: %w", err)
	}
	if len(parsed.Kinds) == 0 {
		return nil, fmt.Errorf("kinds file %s declares no kinds", path)
	}

	registry := &Registry{kinds: make(map[string]domain.FileKind, len(parsed.Kinds))}
	for _, kind := range parsed.Kinds {
		if kind.ID == "" {
			return nil, fmt.Errorf("kinds file %s contains a kind without an id", path)
		}
		if _, exists := registry.kinds[kind.ID]; exists {
			return nil, fmt.Errorf("duplicate kind id %q", kind.ID)
		}
		if kind.MaxSizeBytes <= 0 {
			kind.MaxSizeBytes = defaultMaxSizeBytes
		}
		registry.kinds[kind.ID] = kind
	}
	return registry, nil
}

// Default returns a registry with a single permissive "attachment" kind.
func Default() *Registry {
	return &Registry{kinds: map[string]domain.FileKind{
		"attachment": {ID: "attachment", MaxSizeBytes: defaultMaxSizeBytes},
	}}
}

// Get looks up a kind by id.
func (r *Registry) Get(id string) (domain.FileKind, bool) {
	kind, ok := r.kinds[id]
	return kind, ok
}
