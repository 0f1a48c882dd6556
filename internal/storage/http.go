package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/lupppig/bita/internal/errors"
)

const (
	defaultHTTPRetries    = 3
	defaultHTTPRetryDelay = 500 * time.Millisecond
	defaultHTTPTimeout    = 60 * time.Second
)

// HTTPBackend reads ranges with HTTP Range requests. The server must answer
// 206 Partial Content. Failed requests are retried with a linear backoff.
type HTTPBackend struct {
	client     *http.Client
	url        *url.URL
	headers    map[string]string
	retries    int
	retryDelay time.Duration
}

func NewHTTPBackend(u *url.URL, opts StorageOptions) *HTTPBackend {
	retries := opts.RetryCount
	if retries <= 0 {
		retries = defaultHTTPRetries
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = defaultHTTPRetryDelay
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPBackend{
		client:     &http.Client{Timeout: timeout},
		url:        u,
		headers:    opts.Headers,
		retries:    retries,
		retryDelay: delay,
	}
}

func (s *HTTPBackend) ReadAt(ctx context.Context, offset, length uint64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * s.retryDelay):
			}
		}
		data, err := s.readRange(ctx, offset, length)
		if err == nil {
			return data, nil
		}
		lastErr = err
		var perm *permanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			break
		}
	}
	return nil, rangeError(lastErr, s.url.String(), offset, length)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (s *HTTPBackend) newRequest(ctx context.Context, method string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.url.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (s *HTTPBackend) readRange(ctx context.Context, offset, length uint64) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodGet)
	if err != nil {
		return nil, &permanentError{err}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConnection, "HTTP request failed", "Check that the archive server is reachable.")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &permanentError{apperrors.Newf(apperrors.TypeAuth, "HTTP %s from %s", resp.Status, Scrub(s.url.String()))}
	case resp.StatusCode == http.StatusOK:
		return nil, &permanentError{apperrors.New(apperrors.TypeIO, "server ignored the Range header", "The archive server must support HTTP range requests (206 Partial Content).")}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.Newf(apperrors.TypeConnection, "HTTP %s", resp.Status)
	default:
		return nil, &permanentError{apperrors.Newf(apperrors.TypeIO, "HTTP %s", resp.Status)}
	}

	buf := make([]byte, length)
	n, err := io.ReadFull(resp.Body, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, &permanentError{shortRead(s.url.String(), offset, length, n)}
		}
		return nil, err
	}
	return buf, nil
}

// Size uses HEAD and falls back to the total in a one byte range response.
func (s *HTTPBackend) Size(ctx context.Context) (int64, error) {
	req, err := s.newRequest(ctx, http.MethodHead)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeConfig, "invalid HTTP request", "")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeConnection, "HTTP request failed", "Check that the archive server is reachable.")
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}

	req, err = s.newRequest(ctx, http.MethodGet)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeConfig, "invalid HTTP request", "")
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err = s.client.Do(req)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeConnection, "HTTP request failed", "Check that the archive server is reachable.")
	}
	defer resp.Body.Close()
	// Content-Range: bytes 0-0/12345
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndex(cr, "/"); i >= 0 {
			if n, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				return n, nil
			}
		}
	}
	return 0, apperrors.Newf(apperrors.TypeIO, "could not determine size of %s (HTTP %s)", Scrub(s.url.String()), resp.Status)
}

func (s *HTTPBackend) Put(ctx context.Context, r io.Reader, size int64) error {
	return apperrors.New(apperrors.TypeConfig, "HTTP archive locations are read-only", "Write the archive locally, to s3://, sftp:// or ftp:// and serve it over HTTP.")
}

func (s *HTTPBackend) Location() string {
	return s.url.String()
}

func (s *HTTPBackend) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
