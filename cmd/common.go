package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lupppig/bita/internal/archive"
	"github.com/lupppig/bita/internal/compress"
	"github.com/lupppig/bita/internal/config"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/storage"
	"github.com/spf13/cobra"
)

// storageOptions merges the config file's transport settings with flags.
func storageOptions(cmd *cobra.Command) (storage.StorageOptions, error) {
	opts := config.GetConfig().StorageOptions()
	opts.AllowInsecure = allowInsecure

	if f := cmd.Flags().Lookup("retries"); f != nil && f.Changed {
		opts.RetryCount = httpRetries
	}
	for _, h := range httpHeaders {
		k, v, ok := strings.Cut(h, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return opts, apperrors.Newf(apperrors.TypeConfig, "invalid header %q", h)
		}
		opts.Headers[k] = strings.TrimSpace(v)
	}
	return opts, nil
}

// openArchive resolves uri to a backend and reads the archive's header and
// dictionary. The caller closes the backend.
func openArchive(ctx context.Context, uri string, opts storage.StorageOptions) (*archive.Reader, storage.Backend, error) {
	backend, err := storage.FromURI(uri, opts)
	if err != nil {
		return nil, nil, err
	}
	r, err := archive.Open(ctx, backend)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return r, backend, nil
}

// openInput opens a local file, or stdin for "-", and undoes any stream
// compression. size is -1 when unknown.
func openInput(cmd *cobra.Command, path, algoName string) (io.ReadCloser, int64, error) {
	var (
		raw  io.ReadCloser
		size int64 = -1
	)
	if path == "-" {
		raw = io.NopCloser(cmd.InOrStdin())
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, apperrors.Wrap(err, apperrors.TypeResource, "failed to open "+path, "Check that the file exists and is readable.")
		}
		if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
			size = info.Size()
		}
		raw = f
	}

	algo, err := compress.ParseAlgorithm(algoName, path)
	if err != nil {
		raw.Close()
		return nil, 0, apperrors.Wrap(err, apperrors.TypeConfig, "invalid input compression", "Use auto, none, gzip, lz4 or zstd.")
	}
	if algo == compress.None {
		return raw, size, nil
	}
	dec, err := compress.NewReader(raw, algo)
	if err != nil {
		raw.Close()
		return nil, 0, apperrors.Wrapf(err, apperrors.TypeFormat, "failed to read %s as %s", path, algo)
	}
	// The decompressed size is unknown up front.
	return &stackedCloser{ReadCloser: dec, under: raw}, -1, nil
}

type stackedCloser struct {
	io.ReadCloser
	under io.Closer
}

func (s *stackedCloser) Close() error {
	err := s.ReadCloser.Close()
	if uerr := s.under.Close(); err == nil {
		err = uerr
	}
	return err
}

func parseBytes(flag, s string) (uint64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.TypeConfig, "invalid size %q for --%s", s, flag)
	}
	return n, nil
}
