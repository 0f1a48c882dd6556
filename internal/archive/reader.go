package archive

import (
	"bytes"
	"context"
	"runtime"

	"github.com/lupppig/bita/internal/chunker"
	"github.com/lupppig/bita/internal/chunkindex"
	"github.com/lupppig/bita/internal/compress"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
	"github.com/lupppig/bita/internal/storage"
)

// Reader gives access to an opened archive. The header, dictionary and
// location map are immutable once Open returns, so a Reader is safe for
// concurrent use.
type Reader struct {
	backend   storage.ReaderBackend
	header    Header
	dict      *Dictionary
	locations *LocationMap
	size      int64
}

// Open reads and validates the header, dictionary and checksum. The backend
// stays owned by the caller.
func Open(ctx context.Context, b storage.ReaderBackend) (*Reader, error) {
	size, err := b.Size(ctx)
	if err != nil {
		return nil, err
	}
	if size < HeaderSize {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptArchive, apperrors.TypeFormat,
			"%s is %d bytes, too small for an archive header", storage.Scrub(b.Location()), size)
	}

	hb, err := b.ReadAt(ctx, 0, HeaderSize)
	if err != nil {
		return nil, err
	}
	header, err := ParseHeader(hb)
	if err != nil {
		return nil, err
	}

	dataOffset := header.DataOffset()
	if dataOffset > uint64(size) {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptArchive, apperrors.TypeFormat,
			"truncated dictionary: header declares %d bytes, archive has %d", header.DictionaryLength, size-HeaderSize)
	}

	rest, err := b.ReadAt(ctx, HeaderSize, header.DictionaryLength+ChecksumSize)
	if err != nil {
		return nil, err
	}
	dictBytes, sum := rest[:header.DictionaryLength], rest[header.DictionaryLength:]
	if !bytes.Equal(checksum(hb, dictBytes), sum) {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptArchive, apperrors.TypeFormat, "header checksum mismatch")
	}

	dict, err := UnmarshalDictionary(dictBytes)
	if err != nil {
		return nil, err
	}
	if err := dict.Validate(header.HashLength, size-int64(dataOffset)); err != nil {
		return nil, err
	}

	return &Reader{
		backend:   b,
		header:    header,
		dict:      dict,
		locations: NewLocationMap(dict, dataOffset),
		size:      size,
	}, nil
}

func (r *Reader) Header() Header                  { return r.header }
func (r *Reader) HashLength() int                 { return r.header.HashLength }
func (r *Reader) HashFunc() hashsum.Func          { return r.header.HashFunc }
func (r *Reader) ChunkerConfig() chunker.Config   { return r.header.Chunker }
func (r *Reader) SourceSize() uint64              { return r.dict.SourceSize }
func (r *Reader) SourceChecksum() hashsum.HashSum { return r.dict.SourceChecksum }
func (r *Reader) Dictionary() *Dictionary         { return r.dict }
func (r *Reader) Locations() *LocationMap         { return r.locations }
func (r *Reader) TotalChunks() int                { return len(r.dict.RebuildOrder) }
func (r *Reader) UniqueChunks() int               { return len(r.dict.Chunks) }
func (r *Reader) ChunkDataOffset() uint64         { return r.header.DataOffset() }
func (r *Reader) ArchiveSize() int64              { return r.size }
func (r *Reader) Location() string                { return r.backend.Location() }

// Digest hashes data the way this archive's chunk hashes were computed.
func (r *Reader) Digest(data []byte) hashsum.HashSum {
	return hashsum.Digest(r.header.HashFunc, data, r.header.HashLength)
}

// NewChunkIndex returns a fresh work list for one clone.
func (r *Reader) NewChunkIndex() (*chunkindex.Index, error) {
	return r.dict.NewChunkIndex()
}

func (r *Reader) lookup(hash hashsum.HashSum) (ChunkLocation, error) {
	loc, ok := r.locations.Lookup(hash)
	if !ok {
		return ChunkLocation{}, apperrors.Newf(apperrors.TypeMissingChunk, "chunk %s is not in the archive dictionary", hash)
	}
	return loc, nil
}

// FetchChunk reads, decompresses and verifies one chunk.
func (r *Reader) FetchChunk(ctx context.Context, hash hashsum.HashSum) ([]byte, error) {
	loc, err := r.lookup(hash)
	if err != nil {
		return nil, err
	}
	stored, err := r.backend.ReadAt(ctx, loc.Offset, uint64(loc.Size))
	if err != nil {
		return nil, err
	}
	return r.decode(hash, loc, stored)
}

func (r *Reader) decode(hash hashsum.HashSum, loc ChunkLocation, stored []byte) ([]byte, error) {
	data, err := compress.Decompress(stored, loc.Codec.Kind, int(loc.SourceSize))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.TypeFormat, "chunk %s at archive offset %d", hash.Short(), loc.Offset)
	}
	if got := r.Digest(data); !got.Equal(hash) {
		return nil, apperrors.Wrapf(apperrors.ErrIntegrityMismatch, apperrors.TypeFormat,
			"chunk %s at archive offset %d hashes to %s", hash.Short(), loc.Offset, got.Short())
	}
	return data, nil
}

type FetchOptions struct {
	// Workers bounds concurrent backend reads.
	Workers int
	// MaxGap is the largest hole between two chunk extents read in one request.
	MaxGap uint64
	// MaxBatch caps the size of one request.
	MaxBatch uint64
}

func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		Workers:  runtime.NumCPU(),
		MaxGap:   0,
		MaxBatch: 8 << 20,
	}
}

// FetchChunks fetches every hash, reading adjacent extents in one request.
// fn receives the index into hashes and the verified chunk data. It may be
// called concurrently and in any order.
func (r *Reader) FetchChunks(ctx context.Context, hashes []hashsum.HashSum, opts FetchOptions, fn func(i int, data []byte) error) error {
	if len(hashes) == 0 {
		return nil
	}
	locs := make([]ChunkLocation, len(hashes))
	ranges := make([]storage.Range, len(hashes))
	for i, h := range hashes {
		loc, err := r.lookup(h)
		if err != nil {
			return err
		}
		locs[i] = loc
		ranges[i] = loc.Range()
	}

	return storage.ReadRanges(ctx, r.backend, ranges, opts.MaxGap, opts.MaxBatch, opts.Workers, func(i int, stored []byte) error {
		data, err := r.decode(hashes[i], locs[i], stored)
		if err != nil {
			return err
		}
		return fn(i, data)
	})
}
