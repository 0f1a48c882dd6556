package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/lupppig/bita/internal/errors"
)

type LocalBackend struct {
	path string

	mu   sync.Mutex
	file *os.File
}

func NewLocalBackend(path string) *LocalBackend {
	return &LocalBackend{path: path}
}

func (s *LocalBackend) open() (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.TypeResource, "archive not found", "Check the archive path.")
		}
		return nil, apperrors.Wrap(err, apperrors.TypeIO, "failed to open archive", "Check file permissions.")
	}
	s.file = f
	return f, nil
}

func (s *LocalBackend) ReadAt(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.open()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if err == io.EOF && uint64(n) < length {
		return nil, shortRead(s.path, offset, length, n)
	}
	if err != nil && err != io.EOF {
		return nil, rangeError(err, s.path, offset, length)
	}
	return buf, nil
}

func (s *LocalBackend) Size(ctx context.Context) (int64, error) {
	f, err := s.open()
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeIO, "failed to stat archive", "")
	}
	return info.Size(), nil
}

// Put writes the object through a temp file and renames it into place.
func (s *LocalBackend) Put(ctx context.Context, r io.Reader, size int64) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource, "failed to create directory", "Check permissions on the output directory.")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource, "failed to create temp file", "Check permissions on the output directory.")
	}
	defer os.Remove(tmp.Name()) // Cleanup if we fail

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to write data", "")
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to write data", "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return apperrors.Wrap(err, apperrors.TypeIO, fmt.Sprintf("failed to finalize %s (rename)", s.path), "")
	}
	return nil
}

func (s *LocalBackend) Location() string {
	return s.path
}

func (s *LocalBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
