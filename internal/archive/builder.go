package archive

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/lupppig/bita/internal/chunker"
	"github.com/lupppig/bita/internal/compress"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
	"github.com/lupppig/bita/internal/logger"
	"github.com/lupppig/bita/internal/pipeline"
	"golang.org/x/crypto/blake2b"
)

type BuildOptions struct {
	Chunker    chunker.Config
	HashFunc   hashsum.Func
	HashLength int
	Codec      compress.Codec
	// Workers is the number of chunks hashed and compressed concurrently.
	Workers int
	// TempDir holds the chunk data while the dictionary is assembled.
	TempDir string
	Logger  *logger.Logger
	// OnChunk is called with the source size of every chunk consumed.
	OnChunk func(size int)
}

// DefaultBuildOptions is blake2b truncated to 32 bytes, the default chunker
// and zstd.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Chunker:    chunker.DefaultConfig(),
		HashFunc:   hashsum.Blake2b,
		HashLength: hashsum.DefaultLength,
		Codec:      compress.DefaultCodec,
		Workers:    runtime.NumCPU(),
	}
}

type BuildStats struct {
	SourceSize    uint64
	Chunks        int
	UniqueChunks  int
	ChunkDataSize uint64
	ArchiveSize   uint64
	Duration      time.Duration
	Codecs        map[compress.Kind]int
}

type Builder struct {
	Options BuildOptions
}

func NewBuilder(opts BuildOptions) (*Builder, error) {
	if err := opts.Chunker.Validate(); err != nil {
		return nil, err
	}
	if err := hashsum.ValidateLength(opts.HashLength); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig, "invalid hash length", "Use --hash-length between 4 and 64.")
	}
	if !opts.HashFunc.Valid() {
		return nil, apperrors.Newf(apperrors.TypeConfig, "invalid hash function %s", opts.HashFunc)
	}
	if !opts.Codec.Kind.Valid() {
		return nil, apperrors.Newf(apperrors.TypeConfig, "invalid compression %s", opts.Codec)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Builder{Options: opts}, nil
}

type builtChunk struct {
	source []byte
	full   hashsum.HashSum
	stored []byte
	codec  compress.Codec
}

// Build chunks r, stores every unique chunk once and writes the finished
// archive to w. Chunk data is staged in a temp file because the dictionary
// precedes it in the archive.
func (b *Builder) Build(ctx context.Context, r io.Reader, w io.Writer) (*BuildStats, error) {
	opts := b.Options
	start := time.Now()
	log := opts.Logger

	ch, err := chunker.New(r, opts.Chunker)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(opts.TempDir, "bita-chunks-*")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeResource, "failed to create temp file", "Check permissions and free space in the temp directory.")
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	data := bufio.NewWriterSize(tmp, 1<<20)

	var (
		dict       = &Dictionary{}
		byHash     = make(map[string]uint32)
		fullHashes = make(map[string]hashsum.HashSum)
		source     = hashsum.NewHasher(opts.HashFunc)
		dataOffset uint64
	)

	next := func() ([]byte, error) {
		c, err := ch.Next()
		return c.Data, err
	}
	work := func(ctx context.Context, chunk []byte) (builtChunk, error) {
		full := hashsum.Digest(opts.HashFunc, chunk, hashsum.MaxLength)
		stored, codec, err := compress.CompressChunk(chunk, opts.Codec)
		if err != nil {
			return builtChunk{}, err
		}
		return builtChunk{source: chunk, full: full, stored: stored, codec: codec}, nil
	}
	sink := func(c builtChunk) error {
		source.Write(c.source)
		if opts.OnChunk != nil {
			opts.OnChunk(len(c.source))
		}

		hash := c.full.Truncate(opts.HashLength)
		if idx, ok := byHash[hash.Key()]; ok {
			if !fullHashes[hash.Key()].Equal(c.full) {
				return apperrors.Wrapf(apperrors.ErrHashCollision, apperrors.TypeIntegrity,
					"chunk at offset %d collides with chunk %s at %d bytes", dict.SourceSize, hash, opts.HashLength)
			}
			dict.RebuildOrder = append(dict.RebuildOrder, idx)
			dict.SourceSize += uint64(len(c.source))
			return nil
		}

		if _, err := data.Write(c.stored); err != nil {
			return apperrors.Wrap(err, apperrors.TypeIO, "failed to stage chunk data", "Check free space in the temp directory.")
		}
		idx := uint32(len(dict.Chunks))
		dict.Chunks = append(dict.Chunks, ChunkDescriptor{
			Hash:          append(hashsum.HashSum(nil), hash...),
			SourceSize:    uint32(len(c.source)),
			Compression:   c.codec.Kind,
			Level:         c.codec.Level,
			ArchiveOffset: dataOffset,
			ArchiveSize:   uint32(len(c.stored)),
		})
		byHash[hash.Key()] = idx
		fullHashes[hash.Key()] = c.full
		dict.RebuildOrder = append(dict.RebuildOrder, idx)
		dict.SourceSize += uint64(len(c.source))
		dataOffset += uint64(len(c.stored))

		if log.Enabled(slog.LevelDebug) {
			log.Debug("Stored chunk", "hash", hash.Short(), "size", len(c.source), "stored", len(c.stored), "codec", c.codec.String())
		}
		return nil
	}

	if err := pipeline.Ordered(ctx, opts.Workers, next, work, sink); err != nil {
		return nil, err
	}
	if err := data.Flush(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeIO, "failed to stage chunk data", "Check free space in the temp directory.")
	}

	dict.SourceChecksum = source.Sum()
	dict.Created = time.Now().Unix()

	dictBytes, err := dict.MarshalBinary()
	if err != nil {
		return nil, err
	}
	header := Header{
		HashFunc:         opts.HashFunc,
		HashLength:       opts.HashLength,
		Chunker:          opts.Chunker,
		DictionaryLength: uint64(len(dictBytes)),
	}
	headerBytes, err := header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	sum := checksum(headerBytes, dictBytes)

	for _, part := range [][]byte{headerBytes, dictBytes, sum} {
		if _, err := w.Write(part); err != nil {
			return nil, apperrors.Wrap(err, apperrors.TypeIO, "failed to write archive", "")
		}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeIO, "failed to rewind chunk data", "")
	}
	if _, err := io.Copy(w, tmp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeIO, "failed to write archive chunk data", "")
	}

	stats := &BuildStats{
		SourceSize:    dict.SourceSize,
		Chunks:        len(dict.RebuildOrder),
		UniqueChunks:  len(dict.Chunks),
		ChunkDataSize: dataOffset,
		ArchiveSize:   header.DataOffset() + dataOffset,
		Duration:      time.Since(start),
		Codecs:        dict.CodecUsage(),
	}
	log.Info("Archive built",
		"source_size", stats.SourceSize,
		"chunks", stats.Chunks,
		"unique", stats.UniqueChunks,
		"archive_size", stats.ArchiveSize)
	return stats, nil
}

func checksum(header, dict []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(header)
	h.Write(dict)
	return h.Sum(nil)
}
