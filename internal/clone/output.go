package clone

import (
	"errors"
	"os"
	"path/filepath"

	apperrors "github.com/lupppig/bita/internal/errors"
)

// FileOutput writes a clone into a temp file next to the target and renames
// it into place on Commit, so a failed clone never leaves a half-written
// target behind.
type FileOutput struct {
	f    *os.File
	path string
}

// CreateFileOutput prepares an output of the given final size. An existing
// target is only replaced when force is set.
func CreateFileOutput(path string, size uint64, force bool) (*FileOutput, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil, apperrors.New(apperrors.TypeConfig, "output "+path+" already exists", "Pass --force to overwrite it.")
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.TypeResource, "failed to check output path", "")
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeResource, "failed to create output directory", "Check permissions on the output directory.")
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".bita-*")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeResource, "failed to create output file", "Check permissions on the output directory.")
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, apperrors.Wrap(err, apperrors.TypeResource, "failed to size output file", "Check free disk space.")
	}
	return &FileOutput{f: f, path: path}, nil
}

func (o *FileOutput) WriteAt(p []byte, off int64) (int, error) {
	return o.f.WriteAt(p, off)
}

func (o *FileOutput) ReadAt(p []byte, off int64) (int, error) {
	return o.f.ReadAt(p, off)
}

func (o *FileOutput) Path() string { return o.path }

// Commit syncs the data and moves it to the target path.
func (o *FileOutput) Commit() error {
	if err := o.f.Sync(); err != nil {
		o.Abort()
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to sync output", "")
	}
	if err := o.f.Close(); err != nil {
		os.Remove(o.f.Name())
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to close output", "")
	}
	if err := os.Rename(o.f.Name(), o.path); err != nil {
		os.Remove(o.f.Name())
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to finalize output (rename)", "")
	}
	return nil
}

// Abort discards the partial output.
func (o *FileOutput) Abort() error {
	o.f.Close()
	if err := os.Remove(o.f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
