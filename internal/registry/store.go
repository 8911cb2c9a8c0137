package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orreryhq/orrery/internal/widget"
)

// Store persists the latest committed generation so the serving process can
// reconstruct the registry without rebuilding. Implementations: [FileStore]
// (JSON manifest next to the artifacts) and [PostgresStore].
type Store interface {
	// Load returns the latest committed generation, or (nil, nil) when none
	// has been committed yet.
	Load(ctx context.Context) (*widget.Generation, error)

	// Save commits a generation. It must be total: after Save returns, Load
	// observes the whole generation or (on failure) the previous one.
	Save(ctx context.Context, gen *widget.Generation) error
}

// FileStore persists the manifest as a single JSON file, written atomically
// via a temp file and rename so a concurrent Load never sees a torn write.
type FileStore struct {
	path string
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore writing to the given manifest path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements [Store].
func (s *FileStore) Load(_ context.Context) (*widget.Generation, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read manifest %q: %w", s.path, err)
	}
	var gen widget.Generation
	if err := json.Unmarshal(data, &gen); err != nil {
		return nil, fmt.Errorf("registry: decode manifest %q: %w", s.path, err)
	}
	return &gen, nil
}

// Save implements [Store].
func (s *FileStore) Save(_ context.Context, gen *widget.Generation) error {
	data, err := json.MarshalIndent(gen, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal manifest: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: create manifest dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("registry: create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("registry: write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry: close temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry: commit manifest %q: %w", s.path, err)
	}
	return nil
}
