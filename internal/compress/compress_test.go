package compress

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAlgorithm(t *testing.T) {
	tests := []struct {
		filename string
		expected Algorithm
	}{
		{"disk.img.gz", Gzip},
		{"rootfs.lz4", Lz4},
		{"data.zst", Zstd},
		{"raw.img", None},
		{"no_extension", None},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectAlgorithm(tt.filename))
		})
	}
}

func TestStreamRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("seed file contents "), 4096)

	for _, algo := range []Algorithm{None, Gzip, Lz4, Zstd} {
		t.Run(string(algo), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, algo)
			require.NoError(t, err)
			_, err = w.Write(data)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := NewReader(&buf, algo)
			require.NoError(t, err)
			defer r.Close()

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	algo, err := ParseAlgorithm("auto", "seed.img.zst")
	require.NoError(t, err)
	assert.Equal(t, Zstd, algo)

	algo, err = ParseAlgorithm("gz", "seed.img")
	require.NoError(t, err)
	assert.Equal(t, Gzip, algo)

	_, err = ParseAlgorithm("brotli", "seed.img")
	assert.Error(t, err)
}

func compressibleChunk() []byte {
	return bytes.Repeat([]byte("chunk payload that repeats itself. "), 500)
}

func randomChunk(n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(7)).Read(buf)
	return buf
}

var allKinds = []Kind{KindNone, KindLZ4, KindZstd, KindGzip, KindSnappy}

func TestChunkRoundTrip(t *testing.T) {
	data := compressibleChunk()

	for _, kind := range allKinds {
		for _, level := range []int{0, 1, 9} {
			if kind == KindGzip && level == 0 {
				level = -1
			}
			t.Run(Codec{Kind: kind, Level: level}.String(), func(t *testing.T) {
				stored, err := Compress(data, kind, level)
				require.NoError(t, err)
				if kind != KindNone {
					assert.Less(t, len(stored), len(data))
				}

				got, err := Decompress(stored, kind, len(data))
				require.NoError(t, err)
				assert.Equal(t, data, got)
			})
		}
	}
}

func TestCompressChunk_IncompressibleFallsBack(t *testing.T) {
	data := randomChunk(4096)

	for _, kind := range allKinds[1:] {
		t.Run(kind.String(), func(t *testing.T) {
			stored, codec, err := CompressChunk(data, Codec{Kind: kind})
			require.NoError(t, err)
			assert.Equal(t, KindNone, codec.Kind)
			assert.Equal(t, data, stored)
		})
	}
}

func TestCompress_AlwaysDecodable(t *testing.T) {
	// Compress returns a valid encoding even when it does not shrink the
	// input, including for inputs too short for any codec to win on.
	inputs := map[string][]byte{
		"Empty":   {},
		"OneByte": []byte("a"),
		"Short":   []byte("hello"),
		"Random":  randomChunk(4096),
	}

	for _, kind := range allKinds[1:] {
		for name, data := range inputs {
			t.Run(kind.String()+"/"+name, func(t *testing.T) {
				out, err := Compress(data, kind, 0)
				require.NoError(t, err)

				got, err := Decompress(out, kind, len(data))
				require.NoError(t, err)
				assert.Equal(t, len(data), len(got))
				assert.True(t, bytes.Equal(data, got))
			})
		}
	}
}

func TestDecompress_ZstdOutputCappedAtRawLen(t *testing.T) {
	bomb, err := Compress(make([]byte, 64<<20), KindZstd, 3)
	require.NoError(t, err)
	require.Less(t, len(bomb), 64<<10)

	_, err = Decompress(bomb, KindZstd, 4096)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeFormat), "got %v", err)
}

func TestDecompress_LengthMismatchIsFormatError(t *testing.T) {
	data := compressibleChunk()

	for _, kind := range allKinds {
		t.Run(kind.String(), func(t *testing.T) {
			stored, codec, err := CompressChunk(data, Codec{Kind: kind, Level: 0})
			require.NoError(t, err)

			_, err = Decompress(stored, codec.Kind, len(data)+1)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.TypeFormat), "got %v", err)
		})
	}
}

func TestDecompress_GarbageIsFormatError(t *testing.T) {
	garbage := []byte("definitely not a compressed frame")

	for _, kind := range []Kind{KindZstd, KindGzip, KindSnappy} {
		t.Run(kind.String(), func(t *testing.T) {
			_, err := Decompress(garbage, kind, 100)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.TypeFormat))
		})
	}

	_, err := Decompress(garbage, Kind(200), 10)
	assert.True(t, apperrors.IsType(err, apperrors.TypeFormat))
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in      string
		want    Codec
		wantErr bool
	}{
		{"zstd", DefaultCodec, false},
		{"zstd:19", Codec{Kind: KindZstd, Level: 19}, false},
		{"LZ4", Codec{Kind: KindLZ4}, false},
		{"lz4:9", Codec{Kind: KindLZ4, Level: 9}, false},
		{"none", Codec{Kind: KindNone}, false},
		{"snappy", Codec{Kind: KindSnappy}, false},
		{"gzip:6", Codec{Kind: KindGzip, Level: 6}, false},
		{"zstd:40", Codec{}, true},
		{"zstd:fast", Codec{}, true},
		{"brotli", Codec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCodec(tt.in)
			if tt.wantErr {
				assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
