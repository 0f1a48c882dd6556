package archive

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lupppig/bita/internal/chunker"
	"github.com/lupppig/bita/internal/compress"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
	"github.com/lupppig/bita/internal/rolling"
	"github.com/lupppig/bita/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallOptions() BuildOptions {
	opts := DefaultBuildOptions()
	opts.Chunker = chunker.Config{
		Algorithm:  rolling.AlgoBuzHash,
		MinSize:    512,
		MaxSize:    8 * 1024,
		Mask:       chunker.MaskForAverage(1024),
		WindowSize: 32,
	}
	opts.Workers = 4
	return opts
}

// testData has repeated blocks so some chunks dedupe, and random blocks so
// some chunks do not compress.
func testData(seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	block := make([]byte, 64*1024)
	rng.Read(block)

	var buf bytes.Buffer
	buf.Write(block)
	buf.Write(bytes.Repeat([]byte("compressible text "), 2000))
	buf.Write(block)
	tail := make([]byte, 10*1024)
	rng.Read(tail)
	buf.Write(tail)
	return buf.Bytes()
}

func buildArchive(t *testing.T, data []byte, opts BuildOptions) (string, *BuildStats) {
	t.Helper()
	opts.TempDir = t.TempDir()
	b, err := NewBuilder(opts)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "test.bita")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	stats, err := b.Build(context.Background(), bytes.NewReader(data), f)
	require.NoError(t, err)
	return path, stats
}

func openArchive(t *testing.T, path string) *Reader {
	t.Helper()
	backend := storage.NewLocalBackend(path)
	t.Cleanup(func() { backend.Close() })
	r, err := Open(context.Background(), backend)
	require.NoError(t, err)
	return r
}

func rebuild(t *testing.T, r *Reader) []byte {
	t.Helper()
	out := make([]byte, r.SourceSize())
	for _, seg := range r.Dictionary().Layout() {
		data, err := r.FetchChunk(context.Background(), seg.Hash)
		require.NoError(t, err)
		copy(out[seg.Offset:], data)
	}
	return out
}

func TestBuildAndOpen_RoundTrip(t *testing.T) {
	data := testData(1)
	path, stats := buildArchive(t, data, smallOptions())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(info.Size()), stats.ArchiveSize)
	assert.Equal(t, uint64(len(data)), stats.SourceSize)
	assert.Less(t, stats.UniqueChunks, stats.Chunks, "repeated blocks should dedupe")

	r := openArchive(t, path)
	assert.Equal(t, hashsum.DefaultLength, r.HashLength())
	assert.Equal(t, hashsum.Blake2b, r.HashFunc())
	assert.Equal(t, smallOptions().Chunker, r.ChunkerConfig())
	assert.Equal(t, uint64(len(data)), r.SourceSize())
	assert.Equal(t, stats.Chunks, r.TotalChunks())
	assert.Equal(t, stats.UniqueChunks, r.UniqueChunks())
	h := hashsum.NewHasher(hashsum.Blake2b)
	h.Write(data)
	assert.Equal(t, h.Sum(), r.SourceChecksum())

	assert.Equal(t, data, rebuild(t, r))
}

func TestBuild_MixesCodecs(t *testing.T) {
	path, stats := buildArchive(t, testData(2), smallOptions())
	assert.Greater(t, stats.Codecs[compress.KindZstd], 0)
	assert.Greater(t, stats.Codecs[compress.KindNone], 0, "random chunks are stored uncompressed")

	r := openArchive(t, path)
	for _, c := range r.Dictionary().Chunks {
		if c.Compression == compress.KindNone {
			assert.Equal(t, c.SourceSize, c.ArchiveSize)
		} else {
			assert.Less(t, c.ArchiveSize, c.SourceSize)
		}
	}
}

func TestBuild_AllCodecsAndHashes(t *testing.T) {
	data := testData(3)
	for _, codec := range []string{"none", "lz4", "lz4:9", "zstd:19", "gzip", "snappy"} {
		for _, fn := range []hashsum.Func{hashsum.Blake2b, hashsum.Blake3} {
			t.Run(codec+"/"+fn.String(), func(t *testing.T) {
				opts := smallOptions()
				c, err := compress.ParseCodec(codec)
				require.NoError(t, err)
				opts.Codec = c
				opts.HashFunc = fn
				opts.HashLength = 8

				path, _ := buildArchive(t, data, opts)
				r := openArchive(t, path)
				assert.Equal(t, fn, r.HashFunc())
				assert.Equal(t, 8, r.HashLength())
				assert.Equal(t, data, rebuild(t, r))
			})
		}
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	path, stats := buildArchive(t, nil, smallOptions())
	assert.Equal(t, 0, stats.Chunks)

	r := openArchive(t, path)
	assert.Equal(t, uint64(0), r.SourceSize())
	idx, err := r.NewChunkIndex()
	require.NoError(t, err)
	assert.True(t, idx.IsEmpty())
}

func TestNewChunkIndex_MatchesLayout(t *testing.T) {
	path, _ := buildArchive(t, testData(4), smallOptions())
	r := openArchive(t, path)

	idx, err := r.NewChunkIndex()
	require.NoError(t, err)
	assert.Equal(t, r.UniqueChunks(), idx.Len())
	assert.Equal(t, r.SourceSize(), idx.TotalBytes())

	// Every call returns an independent index.
	other, err := r.NewChunkIndex()
	require.NoError(t, err)
	for _, h := range idx.Hashes() {
		_, ok := idx.Remove(h)
		require.True(t, ok)
	}
	assert.True(t, idx.IsEmpty())
	assert.Equal(t, r.UniqueChunks(), other.Len())
}

func TestFetchChunks(t *testing.T) {
	path, _ := buildArchive(t, testData(5), smallOptions())
	r := openArchive(t, path)

	var hashes []hashsum.HashSum
	for _, c := range r.Dictionary().Chunks {
		hashes = append(hashes, c.Hash)
	}

	for _, opts := range []FetchOptions{
		{Workers: 1, MaxBatch: 1},
		{Workers: 4, MaxGap: 0, MaxBatch: 8 << 20},
		{Workers: 2, MaxGap: 1 << 10, MaxBatch: 4 << 10},
	} {
		var mu sync.Mutex
		got := make(map[int][]byte)
		err := r.FetchChunks(context.Background(), hashes, opts, func(i int, data []byte) error {
			mu.Lock()
			defer mu.Unlock()
			got[i] = append([]byte(nil), data...)
			return nil
		})
		require.NoError(t, err)
		require.Len(t, got, len(hashes))
		for i, h := range hashes {
			assert.Equal(t, h, r.Digest(got[i]))
		}
	}

	t.Run("UnknownHash", func(t *testing.T) {
		err := r.FetchChunks(context.Background(), []hashsum.HashSum{make(hashsum.HashSum, r.HashLength())}, DefaultFetchOptions(),
			func(int, []byte) error { return nil })
		assert.True(t, apperrors.IsType(err, apperrors.TypeMissingChunk))

		_, err = r.FetchChunk(context.Background(), make(hashsum.HashSum, r.HashLength()))
		assert.True(t, apperrors.IsType(err, apperrors.TypeMissingChunk))
	})
}

func corrupt(t *testing.T, path string, fn func(b []byte) []byte) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "corrupt.bita")
	require.NoError(t, os.WriteFile(out, fn(b), 0644))
	return out
}

func TestOpen_RejectsCorruption(t *testing.T) {
	path, _ := buildArchive(t, testData(6), smallOptions())
	header, err := os.ReadFile(path)
	require.NoError(t, err)
	dictLen := int(mustParseHeader(t, header[:HeaderSize]).DictionaryLength)

	cases := []struct {
		name string
		fn   func(b []byte) []byte
	}{
		{"UnknownVersion", func(b []byte) []byte { b[4] = 99; return b }},
		{"BadMagic", func(b []byte) []byte { copy(b, "NOPE"); return b }},
		{"ReservedBytes", func(b []byte) []byte { b[50] = 1; return b }},
		{"UnknownHashFunc", func(b []byte) []byte { b[5] = 77; return b }},
		{"HugeDictionaryLength", func(b []byte) []byte { b[39] = 0xff; return b }},
		{"TruncatedDictionary", func(b []byte) []byte { return b[:HeaderSize+dictLen/2] }},
		{"TruncatedHeader", func(b []byte) []byte { return b[:HeaderSize-1] }},
		{"FlippedDictionaryByte", func(b []byte) []byte { b[HeaderSize+dictLen/2] ^= 0xff; return b }},
		{"FlippedChecksum", func(b []byte) []byte { b[HeaderSize+dictLen] ^= 0xff; return b }},
		{"TruncatedChunkData", func(b []byte) []byte { return b[:len(b)-10] }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := corrupt(t, path, tc.fn)
			backend := storage.NewLocalBackend(p)
			defer backend.Close()
			_, err := Open(context.Background(), backend)
			require.Error(t, err)
			assert.Equal(t, apperrors.TypeFormat, apperrors.TypeOf(err), "got %v", err)
		})
	}
}

func mustParseHeader(t *testing.T, b []byte) Header {
	t.Helper()
	h, err := ParseHeader(b)
	require.NoError(t, err)
	return h
}

func TestFetchChunk_DetectsCorruptData(t *testing.T) {
	opts := smallOptions()
	opts.Codec = compress.Codec{Kind: compress.KindNone}
	path, _ := buildArchive(t, testData(7), opts)
	r := openArchive(t, path)
	first := r.Dictionary().Chunks[0]

	p := corrupt(t, path, func(b []byte) []byte {
		b[r.ChunkDataOffset()+first.ArchiveOffset] ^= 0xff
		return b
	})
	bad := openArchive(t, p)
	_, err := bad.FetchChunk(context.Background(), first.Hash)
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeFormat, apperrors.TypeOf(err))
	assert.ErrorIs(t, err, apperrors.ErrIntegrityMismatch)
}

func TestHeader_RoundTrip(t *testing.T) {
	h := Header{
		HashFunc:         hashsum.Blake3,
		HashLength:       16,
		Chunker:          smallOptions().Chunker,
		DictionaryLength: 1234,
	}
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, HeaderSize)
	assert.Equal(t, Magic, string(b[:4]))

	got, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, uint64(HeaderSize+1234+ChecksumSize), got.DataOffset())

	_, err = Header{HashFunc: hashsum.Blake2b, HashLength: 2}.MarshalBinary()
	assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
}

func TestDictionary_Validate(t *testing.T) {
	h := func(b byte) hashsum.HashSum { return bytes.Repeat([]byte{b}, 4) }
	valid := func() *Dictionary {
		return &Dictionary{
			SourceSize: 30,
			Chunks: []ChunkDescriptor{
				{Hash: h(1), SourceSize: 10, ArchiveOffset: 0, ArchiveSize: 10},
				{Hash: h(2), SourceSize: 10, Compression: compress.KindZstd, ArchiveOffset: 10, ArchiveSize: 5},
			},
			RebuildOrder: []uint32{0, 1, 0},
		}
	}
	require.NoError(t, valid().Validate(4, 15))

	cases := map[string]func(d *Dictionary){
		"WrongHashLength":   func(d *Dictionary) { d.Chunks[0].Hash = h(1)[:3] },
		"DuplicateHash":     func(d *Dictionary) { d.Chunks[1].Hash = h(1) },
		"UnknownCodec":      func(d *Dictionary) { d.Chunks[1].Compression = 42 },
		"OutOfBounds":       func(d *Dictionary) { d.Chunks[1].ArchiveSize = 6 },
		"Overlap":           func(d *Dictionary) { d.Chunks[1].ArchiveOffset = 9 },
		"RebuildOutOfRange": func(d *Dictionary) { d.RebuildOrder = append(d.RebuildOrder, 7) },
		"SizeMismatch":      func(d *Dictionary) { d.SourceSize = 31 },
		"EmptyChunk":        func(d *Dictionary) { d.Chunks[0].SourceSize = 0 },
		"OffsetPastEnd":     func(d *Dictionary) { d.Chunks[1].ArchiveOffset = math.MaxUint64 - 10 },
		"ExtentWraps":       func(d *Dictionary) { d.Chunks[1].ArchiveOffset = math.MaxUint64 - 2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := valid()
			mutate(d)
			err := d.Validate(4, 15)
			assert.True(t, apperrors.IsType(err, apperrors.TypeFormat), "got %v", err)
		})
	}

	t.Run("ExtentWrapsWithoutDataSize", func(t *testing.T) {
		d := valid()
		d.Chunks[1].ArchiveOffset = math.MaxUint64 - 2
		err := d.Validate(4, -1)
		assert.True(t, apperrors.IsType(err, apperrors.TypeFormat), "got %v", err)
	})

	t.Run("Layout", func(t *testing.T) {
		segs := valid().Layout()
		require.Len(t, segs, 3)
		assert.Equal(t, Segment{Hash: h(1), Offset: 20, Size: 10}, segs[2])
	})
}

func TestDictionary_MarshalUnmarshal(t *testing.T) {
	d := &Dictionary{
		SourceSize:     25,
		SourceChecksum: bytes.Repeat([]byte{9}, 32),
		Chunks: []ChunkDescriptor{
			{Hash: bytes.Repeat([]byte{1}, 32), SourceSize: 10, ArchiveOffset: 0, ArchiveSize: 10},
			{Hash: bytes.Repeat([]byte{2}, 32), SourceSize: 5, Compression: compress.KindLZ4, Level: 1, ArchiveOffset: 10, ArchiveSize: 4},
		},
		RebuildOrder: []uint32{0, 1, 0},
		Created:      1700000000,
	}

	b, err := d.MarshalBinary()
	require.NoError(t, err)
	require.NotEmpty(t, b)

	got, err := UnmarshalDictionary(b)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	t.Run("Empty", func(t *testing.T) {
		b, err := (&Dictionary{}).MarshalBinary()
		require.NoError(t, err)
		got, err := UnmarshalDictionary(b)
		require.NoError(t, err)
		assert.Zero(t, got.SourceSize)
		assert.Empty(t, got.Chunks)
		assert.Empty(t, got.RebuildOrder)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := UnmarshalDictionary([]byte{0xff, 0x00, 0x13})
		assert.True(t, apperrors.IsType(err, apperrors.TypeFormat), "got %v", err)
	})
}
