// Package blobstore stores uploaded report files. It defines the BlobStore
// interface, an in-memory implementation for development and tests, and a
// MinIO/S3 implementation for deployments.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed blob size in bytes (25 MB).
const MaxFileSize = 25 * 1024 * 1024

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// BlobMetadata describes a stored blob.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
}

// readLimited reads content fully, failing once it exceeds MaxFileSize, and
// fills in the size, hash, id and creation time of meta.
func readLimited(meta *BlobMetadata, content io.Reader) ([]byte, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}

	h := sha256.Sum256(data)
	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()
	return data, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
	}
}

// Upload reads the content, computes a SHA-256 hash, and stores the blob in
// memory.
func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readLimited(&meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{
		metadata: meta,
		content:  data,
	}
	s.mu.Unlock()

	out := meta // copy
	return &out, nil
}

// Download returns an io.ReadCloser over the blob content and its metadata.
func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata // copy
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

// Delete removes a blob by ID.
func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// GetMetadata returns blob metadata without content.
func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}

	meta := blob.metadata // copy
	return &meta, nil
}
