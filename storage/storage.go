package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage abstracts where saved wheels and their metadata are written.
type Storage interface {
	// Stat returns the size of a stored file and whether it exists.
	Stat(ctx context.Context, filename string) (size int64, exists bool, err error)

	// Get opens a stored file for reading.
	Get(ctx context.Context, filename string) (r io.ReadCloser, exists bool, err error)

	// Put creates or overwrites a stored file. The caller must close
	// the returned writer to complete the write.
	Put(ctx context.Context, filename string) (w io.WriteCloser, err error)
}

var _ Storage = (*FileSystem)(nil)

// FileSystem implements Storage on a local directory.
type FileSystem struct {
	basePath string
}

func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{
		basePath: basePath,
	}
}

func (fs *FileSystem) Stat(ctx context.Context, filename string) (size int64, exists bool, err error) {
	info, err := os.Stat(filepath.Join(fs.basePath, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return info.Size(), true, nil
}

func (fs *FileSystem) Get(ctx context.Context, filename string) (r io.ReadCloser, exists bool, err error) {
	f, err := os.Open(filepath.Join(fs.basePath, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return f, true, nil
}

func (fs *FileSystem) Put(ctx context.Context, filename string) (w io.WriteCloser, err error) {
	fullPath := filepath.Join(fs.basePath, filename)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}
