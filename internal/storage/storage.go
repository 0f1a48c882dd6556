// Package storage provides byte-range access to archives wherever they live:
// local files, HTTP servers, S3-compatible object stores, SFTP and FTP.
//
// A backend addresses exactly one object. ReadAt may be called concurrently
// and each call returns exactly the requested range or an error.
package storage

import (
	"context"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/lupppig/bita/internal/errors"
)

// ReaderBackend reads byte ranges of a single remote or local object.
type ReaderBackend interface {
	ReadAt(ctx context.Context, offset, length uint64) ([]byte, error)
	Size(ctx context.Context) (int64, error)
	Location() string
	Close() error
}

// Backend is a ReaderBackend that can also replace the object's contents.
// Put is used to publish a freshly built archive.
type Backend interface {
	ReaderBackend
	Put(ctx context.Context, r io.Reader, size int64) error
}

type StorageOptions struct {
	AllowInsecure bool
	// HTTP only.
	Headers    map[string]string
	RetryCount int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// FromURI picks a backend from the URI scheme. Plain paths are local files.
// Remote backends connect lazily on first use.
func FromURI(uri string, opts StorageOptions) (Backend, error) {
	if uri == "" {
		return nil, apperrors.New(apperrors.TypeConfig, "empty archive location", "Pass a file path or a URI such as https://host/file.bita.")
	}

	// Shorthands without a scheme.
	if !strings.Contains(uri, "://") {
		switch {
		case strings.HasPrefix(uri, "s3:"):
			return NewS3Backend(&url.URL{Scheme: "s3", Opaque: strings.TrimPrefix(uri, "s3:")})
		case sftpShorthand.MatchString(uri):
			m := sftpShorthand.FindStringSubmatch(uri)
			u := &url.URL{Scheme: "sftp", User: url.User(m[1]), Host: m[2], Path: "/" + strings.TrimPrefix(m[3], "/")}
			if !strings.HasPrefix(m[3], "/") {
				// Relative to the login directory.
				u.Path = "/./" + m[3]
			}
			return NewSSHBackend(u)
		default:
			return NewLocalBackend(uri), nil
		}
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig, "invalid archive URI", "Check the URI syntax, e.g. sftp://user@host/path/file.bita.")
	}

	switch strings.ToLower(u.Scheme) {
	case "file", "local":
		path := u.Path
		if u.Host != "" {
			path = filepath.Join(u.Host, u.Path)
		}
		return NewLocalBackend(path), nil
	case "http", "https":
		return NewHTTPBackend(u, opts), nil
	case "s3":
		return NewS3Backend(u)
	case "sftp", "ssh":
		return NewSSHBackend(u)
	case "ftp":
		return NewFTPBackend(u, opts)
	default:
		return nil, apperrors.Newf(apperrors.TypeConfig, "unsupported archive scheme %q", u.Scheme)
	}
}

var sftpShorthand = regexp.MustCompile(`^([^@/:]+)@([^:/]+):(.+)$`)

var passwordInURI = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*://[^:/@]+):([^@]+)@`)

// Scrub masks the password part of a URI for logging.
func Scrub(uri string) string {
	return passwordInURI.ReplaceAllString(uri, "${1}:********@")
}

// ReadFull reads the whole object. Meant for small objects such as
// manifests.
func ReadFull(ctx context.Context, b ReaderBackend) ([]byte, error) {
	size, err := b.Size(ctx)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	return b.ReadAt(ctx, 0, uint64(size))
}

// SectionReader adapts a backend to io.ReaderAt for code that wants the
// standard interface. The context is captured at construction.
type SectionReader struct {
	ctx     context.Context
	backend ReaderBackend
}

func NewSectionReader(ctx context.Context, b ReaderBackend) *SectionReader {
	return &SectionReader{ctx: ctx, backend: b}
}

func (s *SectionReader) ReadAt(p []byte, off int64) (int, error) {
	data, err := s.backend.ReadAt(s.ctx, uint64(off), uint64(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(p, data), nil
}

func rangeError(err error, location string, offset, length uint64) error {
	if err == nil {
		return nil
	}
	if apperrors.TypeOf(err) != apperrors.TypeInternal {
		return err
	}
	return apperrors.Wrapf(err, apperrors.TypeIO, "reading %s range [%d, %d)", Scrub(location), offset, offset+length)
}

func shortRead(location string, offset, want uint64, got int) error {
	return apperrors.Newf(apperrors.TypeIO, "short read from %s at offset %d: got %d of %d bytes", Scrub(location), offset, got, want)
}
