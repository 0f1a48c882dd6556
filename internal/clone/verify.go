package clone

import (
	"context"
	"io"

	"github.com/lupppig/bita/internal/archive"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
)

// VerifyOutput hashes the first SourceSize bytes of out and compares the
// digest with the checksum recorded in the archive.
func VerifyOutput(ctx context.Context, r *archive.Reader, out io.ReaderAt) error {
	h := hashsum.NewHasher(r.HashFunc())
	src := io.NewSectionReader(out, 0, int64(r.SourceSize()))
	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: src}); err != nil {
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to read output for verification", "")
	}
	return checkSum(r, h.Sum())
}

func checkSum(r *archive.Reader, got hashsum.HashSum) error {
	want := r.SourceChecksum()
	if !got.Truncate(len(want)).Equal(want) {
		return apperrors.Wrapf(apperrors.ErrIntegrityMismatch, apperrors.TypeIntegrity,
			"output checksum %s does not match archive %s", got.Short(), want.Short())
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Comparison describes how much of an archive a local file already holds.
type Comparison struct {
	ChunksPresent int
	ChunksMissing int
	BytesPresent  uint64
	BytesMissing  uint64
	// Identical is set when the file matches the archive source byte for byte.
	Identical bool
}

type discard struct{}

func (discard) WriteAt(p []byte, off int64) (int, error) { return len(p), nil }

// Compare chunks f as a seed without writing anything and reports which
// archive chunks it lacks.
func Compare(ctx context.Context, r *archive.Reader, f io.Reader, opts Options) (*Comparison, error) {
	idx, err := r.NewChunkIndex()
	if err != nil {
		return nil, err
	}

	h := hashsum.NewHasher(r.HashFunc())
	counter := &countingWriter{w: h}
	stats, err := Seed(ctx, r, idx, SeedInput{Name: "compare", Reader: io.TeeReader(f, counter)}, discard{}, opts)
	if err != nil {
		return nil, err
	}
	// Seed stops early once the index is empty; hash the rest for the
	// checksum.
	if _, err := io.Copy(counter, f); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeIO, "failed to read file", "")
	}

	cmp := &Comparison{
		ChunksPresent: stats.ChunksUsed,
		BytesPresent:  stats.BytesUsed,
		ChunksMissing: idx.Len(),
		BytesMissing:  idx.TotalBytes(),
	}
	cmp.Identical = cmp.ChunksMissing == 0 && counter.n == r.SourceSize() && checkSum(r, h.Sum()) == nil
	return cmp, nil
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}
