package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store persists attachment and avatar files under opaque paths. The
// returned path is a handle for later retrieval or deletion; callers must
// not parse it.
type Store interface {
	Save(ctx context.Context, originalName string, r io.Reader) (path string, size int64, err error)
	Remove(ctx context.Context, path string) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// LocalStore keeps files on the local filesystem under a single root
// directory. Names are randomized, only the extension of the original name
// is preserved.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Save(ctx context.Context, originalName string, r io.Reader) (string, int64, error) {
	name := uuid.NewString() + filepath.Ext(originalName)
	full := filepath.Join(s.root, name)

	f, err := os.Create(full)
	if err != nil {
		return "", 0, fmt.Errorf("create stored file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return "", 0, fmt.Errorf("write stored file: %w", err)
	}
	return name, size, nil
}

func (s *LocalStore) Remove(ctx context.Context, path string) error {
	err := os.Remove(filepath.Join(s.root, filepath.Base(path)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.root, filepath.Base(path)))
}
