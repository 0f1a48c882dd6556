// Package clone rebuilds an archived file from local seeds and the archive.
//
// A clone starts from the archive's chunk index, the list of every unique
// chunk and the output offsets it fills. Each seed is chunked with the
// archive's own parameters and any seed chunk whose hash is still pending
// in the index is written straight to the output. Whatever the seeds could
// not supply is then fetched from the archive. Each hash is claimed exactly
// once, so every output offset is written exactly once.
package clone

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/lupppig/bita/internal/archive"
	"github.com/lupppig/bita/internal/chunker"
	"github.com/lupppig/bita/internal/chunkindex"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
	"github.com/lupppig/bita/internal/logger"
	"github.com/lupppig/bita/internal/pipeline"
)

// Output receives rebuilt bytes. WriteAt is called concurrently, always
// for disjoint ranges.
type Output interface {
	io.WriterAt
}

type SeedInput struct {
	Name   string
	Reader io.Reader
}

type Options struct {
	// HashWorkers is how many seed chunks are hashed at once.
	HashWorkers int
	Fetch       archive.FetchOptions
	Logger      *logger.Logger
	// OnSeedRead is called with the size of every seed chunk read.
	OnSeedRead func(n int)
	// OnWrite is called with the number of output bytes written.
	OnWrite func(n uint64)
}

func DefaultOptions() Options {
	return Options{
		HashWorkers: runtime.NumCPU(),
		Fetch:       archive.DefaultFetchOptions(),
	}
}

func (o Options) withDefaults() Options {
	if o.HashWorkers < 1 {
		o.HashWorkers = 1
	}
	if o.Fetch.Workers < 1 {
		o.Fetch.Workers = 1
	}
	if o.Fetch.MaxBatch == 0 {
		o.Fetch.MaxBatch = archive.DefaultFetchOptions().MaxBatch
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	return o
}

type SeedStats struct {
	Name       string
	ChunksUsed int
	BytesUsed  uint64
	BytesRead  uint64
}

type FetchStats struct {
	ChunksFetched int
	BytesFetched  uint64
	BytesWritten  uint64
}

type Result struct {
	Seeds    []SeedStats
	Fetch    FetchStats
	Duration time.Duration
}

// BytesFromSeeds is the output volume the seeds supplied.
func (r *Result) BytesFromSeeds() uint64 {
	var total uint64
	for _, s := range r.Seeds {
		total += s.BytesUsed
	}
	return total
}

// Clone rebuilds the archive's source into out. Seeds are consumed in order,
// each claiming from the same index, and the remainder is fetched.
// Partially written output is not rolled back on error.
func Clone(ctx context.Context, r *archive.Reader, seeds []SeedInput, out Output, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	idx, err := r.NewChunkIndex()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, seed := range seeds {
		if idx.IsEmpty() {
			opts.Logger.Debug("Skipping seed, nothing left to claim", "seed", seed.Name)
			continue
		}
		stats, err := Seed(ctx, r, idx, seed, out, opts)
		if err != nil {
			return nil, err
		}
		res.Seeds = append(res.Seeds, stats)
	}

	res.Fetch, err = Fetch(ctx, r, idx, out, opts)
	if err != nil {
		return nil, err
	}
	if !idx.IsEmpty() {
		return nil, apperrors.Newf(apperrors.TypeInternal, "%d chunks left unwritten after fetch", idx.Len())
	}

	res.Duration = time.Since(start)
	opts.Logger.Info("Clone complete",
		"from_seeds", res.BytesFromSeeds(),
		"fetched", res.Fetch.BytesFetched,
		"chunks_fetched", res.Fetch.ChunksFetched,
		"duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

type seedChunk struct {
	data []byte
	hash hashsum.HashSum
}

// errIndexExhausted stops a seed early once nothing is left to claim.
var errIndexExhausted = apperrors.New(apperrors.TypeInternal, "index exhausted", "")

// Seed chunks one seed with the archive's parameters and writes every seed
// chunk still pending in idx to all of its offsets.
func Seed(ctx context.Context, r *archive.Reader, idx *chunkindex.Index, in SeedInput, out Output, opts Options) (SeedStats, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With("seed", in.Name)
	stats := SeedStats{Name: in.Name}

	ch, err := chunker.New(in.Reader, r.ChunkerConfig())
	if err != nil {
		return stats, err
	}

	next := func() (chunker.Chunk, error) {
		c, err := ch.Next()
		if err != nil && err != io.EOF {
			return c, apperrors.Wrapf(err, apperrors.TypeChunking, "reading seed %s", in.Name)
		}
		return c, err
	}
	hash := func(ctx context.Context, c chunker.Chunk) (seedChunk, error) {
		return seedChunk{data: c.Data, hash: r.Digest(c.Data)}, nil
	}
	sink := func(c seedChunk) error {
		stats.BytesRead += uint64(len(c.data))
		if opts.OnSeedRead != nil {
			opts.OnSeedRead(len(c.data))
		}

		entry, ok := idx.Claim(c.hash, uint32(len(c.data)))
		if !ok {
			return nil
		}
		if err := writeAll(out, c.data, entry.Offsets); err != nil {
			return err
		}
		stats.ChunksUsed++
		stats.BytesUsed += entry.Bytes()
		if opts.OnWrite != nil {
			opts.OnWrite(entry.Bytes())
		}
		if log.Enabled(slog.LevelDebug) {
			log.Debug("Chunk from seed", "hash", c.hash.Short(), "size", len(c.data), "offsets", len(entry.Offsets))
		}
		if idx.IsEmpty() {
			return errIndexExhausted
		}
		return nil
	}

	err = pipeline.Ordered(ctx, opts.HashWorkers, next, hash, sink)
	if err != nil && err != errIndexExhausted {
		return stats, err
	}

	log.Info("Seed used", "chunks", stats.ChunksUsed, "bytes", stats.BytesUsed, "read", stats.BytesRead)
	return stats, nil
}

// Fetch claims everything left in idx and fetches it from the archive.
func Fetch(ctx context.Context, r *archive.Reader, idx *chunkindex.Index, out Output, opts Options) (FetchStats, error) {
	opts = opts.withDefaults()
	var stats FetchStats

	entries := idx.Drain()
	if len(entries) == 0 {
		return stats, nil
	}

	hashes := make([]hashsum.HashSum, len(entries))
	for i, e := range entries {
		loc, ok := r.Locations().Lookup(e.Hash)
		if !ok {
			return stats, apperrors.Newf(apperrors.TypeMissingChunk, "chunk %s is in the layout but has no descriptor", e.Hash)
		}
		hashes[i] = e.Hash
		stats.BytesFetched += uint64(loc.Size)
	}
	stats.ChunksFetched = len(entries)

	log := opts.Logger
	log.Debug("Fetching chunks", "chunks", len(entries), "bytes", stats.BytesFetched, "archive", r.Location())

	var written atomic.Uint64
	err := r.FetchChunks(ctx, hashes, opts.Fetch, func(i int, data []byte) error {
		e := entries[i]
		if uint32(len(data)) != e.Size {
			return apperrors.Newf(apperrors.TypeMissingChunk, "chunk %s is %d bytes, layout expects %d", e.Hash, len(data), e.Size)
		}
		if err := writeAll(out, data, e.Offsets); err != nil {
			return err
		}
		written.Add(e.Bytes())
		if opts.OnWrite != nil {
			opts.OnWrite(e.Bytes())
		}
		return nil
	})
	stats.BytesWritten = written.Load()
	if err != nil {
		return stats, err
	}

	log.Info("Fetched from archive", "chunks", stats.ChunksFetched, "bytes", stats.BytesFetched)
	return stats, nil
}

func writeAll(out Output, data []byte, offsets []uint64) error {
	for _, off := range offsets {
		n, err := out.WriteAt(data, int64(off))
		if err != nil {
			return apperrors.Wrapf(err, apperrors.TypeIO, "writing %d bytes at output offset %d", len(data), off)
		}
		if n != len(data) {
			return apperrors.Newf(apperrors.TypeIO, "short write at output offset %d: %d of %d bytes", off, n, len(data))
		}
	}
	return nil
}
