// Package storage persists the OAuth credential document.
// Implementations exist for a local file and for S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"credserver/internal/model"
)

var (
	// ErrNotFound is returned when no credential document has been written yet.
	ErrNotFound = errors.New("credentials not found")
	// ErrCorrupt is returned when the stored bytes are not a JSON credential document.
	ErrCorrupt = errors.New("credentials document is corrupt")
)

// Store is a reusable credential document store.
// Save replaces the whole document; readers never observe a partial write.
type Store interface {
	// Load returns the current document, ErrNotFound or ErrCorrupt.
	Load(ctx context.Context) (*model.Credentials, error)
	// Save replaces the stored document.
	Save(ctx context.Context, creds *model.Credentials) error
	// Exists reports whether a document is present, regardless of its validity.
	Exists(ctx context.Context) (bool, error)
}

// encode renders the document indented with four spaces.
func encode(creds *model.Credentials) ([]byte, error) {
	if creds == nil {
		return nil, errors.New("credentials are nil")
	}
	b, err := json.MarshalIndent(creds, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	return append(b, '\n'), nil
}

func decode(b []byte) (*model.Credentials, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrCorrupt
	}
	var creds model.Credentials
	if err := json.Unmarshal(trimmed, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &creds, nil
}
