// Package file persists the channel's page-address token in a plain file,
// the zero-infrastructure alternative to the Redis store.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Store writes the token to a single file, atomically via temp file and
// rename.
type Store struct {
	path string
}

// NewStore creates a store at path. Parent directories are created on the
// first Store call.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("file store requires a path")
	}
	return &Store{path: path}, nil
}

// Load returns the persisted token, or domain.ErrTokenNotFound.
func (s *Store) Load(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", domain.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", domain.ErrTokenNotFound
	}
	return token, nil
}

// Store persists the token atomically.
func (s *Store) Store(ctx context.Context, token string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// Clear removes the token file. A missing file is not an error.
func (s *Store) Clear(ctx context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

var _ ports.TokenStore = (*Store)(nil)
