package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// ErrExists is returned by Save when a document is already stored under key.
var ErrExists = errors.New("document already exists")

// DocumentStorage persists uploaded documents on local disk. Locations handed
// back to callers are prefixed with the public base URL when one is set.
type DocumentStorage struct {
	baseDir string
	baseURL string
	maxSize int64
}

// NewDocumentStorage ensures the base directory exists and returns a handle.
func NewDocumentStorage(baseDir, baseURL string, maxSize int64) (*DocumentStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	return &DocumentStorage{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
	}, nil
}

// Save copies r into a new file named by key and returns its locator. An
// existing file is never overwritten. Partial files are removed when the copy
// fails or the size limit is hit.
func (s *DocumentStorage) Save(key string, r io.Reader) (string, error) {
	key = CleanKey(key)
	if key == "" {
		return "", fmt.Errorf("document key required")
	}
	target := filepath.Join(s.baseDir, key)
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%s: %w", key, ErrExists)
		}
		return "", fmt.Errorf("create document file: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	written, copyErr := io.Copy(file, src)
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(target)
		return "", fmt.Errorf("write document stream: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(target)
		return "", fmt.Errorf("close document file: %w", closeErr)
	case s.maxSize > 0 && written > s.maxSize:
		_ = os.Remove(target)
		return "", ErrTooLarge
	}
	return s.Locate(key), nil
}

// Open returns a read-only handle for the document behind location.
func (s *DocumentStorage) Open(location string) (*os.File, error) {
	file, err := os.Open(filepath.Join(s.baseDir, s.KeyOf(location)))
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return file, nil
}

// Delete removes the document behind location. Missing files are not an error.
func (s *DocumentStorage) Delete(location string) error {
	key := s.KeyOf(location)
	if key == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(s.baseDir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Locate renders the public locator for key.
func (s *DocumentStorage) Locate(key string) string {
	if s.baseURL == "" {
		return key
	}
	return s.baseURL + "/" + key
}

// KeyOf recovers the storage key from a locator.
func (s *DocumentStorage) KeyOf(location string) string {
	if s.baseURL != "" {
		location = strings.TrimPrefix(location, s.baseURL+"/")
	}
	return CleanKey(location)
}

// CleanKey reduces key to a single safe path element.
func CleanKey(key string) string {
	key = path.Base(strings.ReplaceAll(strings.TrimSpace(key), "\\", "/"))
	if key == "." || key == "/" || key == ".." {
		return ""
	}
	return key
}
