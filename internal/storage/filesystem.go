// Package storage persists generated artifacts on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore writes generated artifacts under a single root directory. It
// stands in for object storage in local and single-host deployments; keys
// stay relative so a bucket-backed store could adopt the same layout.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed and returns a store
// rooted there.
func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// BasePath returns the root directory artifacts are written under.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Write stores data under the slash-separated key and returns the canonical
// key. Keys are normalized and may not escape the root.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("storage: create artifact directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write artifact: %w", err)
	}
	return clean, nil
}

// normalizeKey flattens separators, strips leading ./ and / and rejects keys
// that resolve outside the root.
func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(strings.TrimPrefix(key, "./"), "/")
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.New("storage: key escapes the storage root")
	}
	return clean, nil
}
