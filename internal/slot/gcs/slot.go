// Package gcs stores slots as objects in a Google Cloud Storage bucket, which
// lets callers and workers on different hosts share mailboxes.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/resort-relay/internal/slot"
)

// Config captures the parameters required to address slot objects.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	// Prefix is prepended to every slot name, e.g. "relay/".
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// Store opens object-backed slots in one bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed slot store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Open returns the slot stored at <prefix><name>.
func (s *Store) Open(name string) (slot.Slot, error) {
	if err := slot.ValidateName(name); err != nil {
		return nil, err
	}
	return &Slot{obj: s.client.Bucket(s.bucket).Object(s.prefix + name)}, nil
}

// Slot is one object. An absent object is an empty slot.
type Slot struct {
	obj *storage.ObjectHandle
}

// Write uploads value, replacing the object.
func (s *Slot) Write(ctx context.Context, value string) error {
	writer := s.obj.NewWriter(ctx)
	writer.ContentType = "text/plain; charset=utf-8"
	if _, err := io.Copy(writer, strings.NewReader(value)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Read downloads the object content.
func (s *Slot) Read(ctx context.Context) (string, bool, error) {
	reader, err := s.obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", false, fmt.Errorf("read object: %w", err)
	}
	value := string(data)
	return value, value != "", nil
}

// Clear deletes the object.
func (s *Slot) Clear(ctx context.Context) error {
	if err := s.obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
