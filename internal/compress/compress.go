// Package compress holds the per-chunk codecs stored in archives and the
// stream codecs used to read compressed input and seed files.
package compress

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm is a whole-stream compression format, detected from a file
// name.
type Algorithm string

const (
	Gzip Algorithm = "gzip"
	Lz4  Algorithm = "lz4"
	Zstd Algorithm = "zstd"
	None Algorithm = "none"
)

// DetectAlgorithm guesses the stream format from a file extension.
func DetectAlgorithm(filename string) Algorithm {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".gz", ".gzip", ".tgz":
		return Gzip
	case ".lz4":
		return Lz4
	case ".zst", ".zstd":
		return Zstd
	default:
		return None
	}
}

// ParseAlgorithm accepts an explicit format name; "auto" and "" mean
// detect from the file name.
func ParseAlgorithm(name, filename string) (Algorithm, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return DetectAlgorithm(filename), nil
	case "gzip", "gz":
		return Gzip, nil
	case "lz4":
		return Lz4, nil
	case "zstd", "zst":
		return Zstd, nil
	case "none":
		return None, nil
	default:
		return "", ErrUnsupportedAlgo(name)
	}
}

// NewReader wraps r so reads return decompressed bytes. Closing the result
// releases decoder resources but does not close r.
func NewReader(r io.Reader, algo Algorithm) (io.ReadCloser, error) {
	switch algo {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		gz, err := gzip.NewReader(bufio.NewReader(r))
		if err != nil {
			return nil, err
		}
		return gz, nil
	case Lz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		z, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return z.IOReadCloser(), nil
	default:
		return nil, ErrUnsupportedAlgo(algo)
	}
}

// NewWriter is the inverse of NewReader. Close flushes the compressor but
// does not close w.
func NewWriter(w io.Writer, algo Algorithm) (io.WriteCloser, error) {
	switch algo {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Lz4:
		return lz4.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	default:
		return nil, ErrUnsupportedAlgo(algo)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type ErrUnsupportedAlgo Algorithm

func (e ErrUnsupportedAlgo) Error() string {
	return "unsupported compression algorithm: " + string(e)
}
