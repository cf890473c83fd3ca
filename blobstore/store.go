// Package blobstore abstracts where buffered result artifacts land.
//
// The buffered result sink accumulates the whole run in memory and writes
// one artifact at flush time; Store is the destination of that single
// write. LocalStore covers the common file case, the s3 subpackage
// uploads to Amazon S3, and MemStore backs tests.
package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store writes one named, immutable artifact.
type Store interface {
	// Put atomically writes data under name, replacing any previous
	// artifact of that name.
	Put(ctx context.Context, name string, data []byte) error
}

// LocalStore implements Store on the local filesystem, rooted at a
// directory. Writes go through a temp file and rename so readers never
// observe a partial artifact.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Put writes the artifact atomically.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	dest := filepath.Join(s.root, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("blobstore: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp*")
	if err != nil {
		return fmt.Errorf("blobstore: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (s *MemStore) Put(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[name] = cp
	return nil
}

// Get returns the stored artifact, if any.
func (s *MemStore) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[name]
	return b, ok
}
