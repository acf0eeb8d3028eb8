// Package file implements slots as plain files in a shared directory, so that
// callers and workers running as separate processes on one host can exchange
// requests and responses.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/resort-relay/internal/slot"
)

// Config captures the parameters for the file-backed slot store.
type Config struct {
	// Dir is the directory holding one file per slot.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Extension is appended to every slot name, e.g. ".txt".
	Extension string `mapstructure:"extension" yaml:"extension"`
}

// Store opens file-backed slots inside one directory.
type Store struct {
	dir string
	ext string
}

// New creates a Store, creating the directory when missing and checking that
// it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("slot directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("slot directory path is not a directory")
	case err != nil && os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create slot directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat slot directory: %w", err)
	}

	probe := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("slot directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &Store{dir: cfg.Dir, ext: cfg.Extension}, nil
}

// Open returns the slot stored in <dir>/<name><ext>. The file is created
// lazily by the first Write.
func (s *Store) Open(name string) (slot.Slot, error) {
	if err := slot.ValidateName(name); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, name+s.ext)
	cleanDir := filepath.Clean(s.dir)
	if !strings.HasPrefix(filepath.Clean(path), cleanDir+string(filepath.Separator)) {
		return nil, fmt.Errorf("path traversal detected")
	}
	return &Slot{dir: s.dir, path: path}, nil
}

// Slot is one file. Writes go to a temporary file that is renamed over the
// target, so a concurrent Read sees either the old or the new content.
type Slot struct {
	dir  string
	path string
}

// Path returns the file backing the slot.
func (s *Slot) Path() string {
	return s.path
}

// Write replaces the file content.
func (s *Slot) Write(_ context.Context, value string) error {
	return s.replace(value)
}

// Read returns the file content. A missing or empty file is an empty slot.
func (s *Slot) Read(_ context.Context) (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read slot file: %w", err)
	}
	value := string(data)
	return value, value != "", nil
}

// Clear truncates the file. The file is kept so that readers polling it by
// name keep finding it.
func (s *Slot) Clear(_ context.Context) error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return s.replace("")
}

func (s *Slot) replace(value string) error {
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp slot file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp slot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp slot file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename slot file: %w", err)
	}
	return nil
}
