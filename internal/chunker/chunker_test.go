package chunker

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"io"
	"math/rand"
	"testing"

	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/rolling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig(algo rolling.Algorithm) Config {
	return Config{
		Algorithm:  algo,
		MinSize:    256,
		MaxSize:    4096,
		Mask:       MaskForAverage(1024),
		WindowSize: 32,
	}
}

func randomData(seed int64, n int) []byte {
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	r.Read(buf)
	return buf
}

var algorithms = []rolling.Algorithm{rolling.AlgoBuzHash, rolling.AlgoRollSum, rolling.AlgoGear}

func TestChunker_Partition(t *testing.T) {
	data := randomData(1, 300*1024)

	for _, algo := range algorithms {
		t.Run(algo.String(), func(t *testing.T) {
			cfg := smallConfig(algo)
			chunks, err := Collect(bytes.NewReader(data), cfg)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			var next uint64
			for i, c := range chunks {
				assert.Equal(t, next, c.Offset, "chunk %d offset", i)
				assert.LessOrEqual(t, c.Len(), int(cfg.MaxSize))
				if i < len(chunks)-1 {
					assert.GreaterOrEqual(t, c.Len(), int(cfg.MinSize))
				}
				assert.Equal(t, data[c.Offset:c.End()], c.Data)
				next = c.End()
			}
			assert.Equal(t, uint64(len(data)), next)
		})
	}
}

func TestChunker_Deterministic(t *testing.T) {
	data := randomData(2, 200*1024)

	for _, algo := range algorithms {
		t.Run(algo.String(), func(t *testing.T) {
			first, err := Collect(bytes.NewReader(data), smallConfig(algo))
			require.NoError(t, err)
			second, err := Collect(bytes.NewReader(data), smallConfig(algo))
			require.NoError(t, err)

			require.Equal(t, len(first), len(second))
			for i := range first {
				assert.Equal(t, first[i].Offset, second[i].Offset)
				assert.Equal(t, sha256.Sum256(first[i].Data), sha256.Sum256(second[i].Data))
			}
		})
	}
}

func TestChunker_CDC_Deduplication(t *testing.T) {
	common := randomData(3, 512*1024)

	// Different header lengths shift every byte of the common part.
	stream1 := append([]byte("Header version 1.0 (2026-01-01)\n"), common...)
	stream2 := append([]byte("Header version 2.0.1 (2026-01-30 15:00:00)\n"), common...)

	for _, algo := range algorithms {
		t.Run(algo.String(), func(t *testing.T) {
			chunks1, err := Collect(bytes.NewReader(stream1), smallConfig(algo))
			require.NoError(t, err)
			chunks2, err := Collect(bytes.NewReader(stream2), smallConfig(algo))
			require.NoError(t, err)

			seen := make(map[[32]byte]bool)
			for _, c := range chunks1 {
				seen[sha256.Sum256(c.Data)] = true
			}
			matches := 0
			for _, c := range chunks2 {
				if seen[sha256.Sum256(c.Data)] {
					matches++
				}
			}

			t.Logf("stream 1 chunks: %d, stream 2 chunks: %d, matches: %d", len(chunks1), len(chunks2), matches)
			assert.Greater(t, float64(matches)/float64(len(chunks1)), 0.8, "most chunks should resynchronise")
		})
	}
}

func TestChunker_MaxSizeForced(t *testing.T) {
	// All-zero input keeps the window constant, so either every position
	// is a boundary candidate or none is. Both must respect min and max.
	data := make([]byte, 64*1024)
	cfg := smallConfig(rolling.AlgoBuzHash)

	chunks, err := Collect(bytes.NewReader(data), cfg)
	require.NoError(t, err)
	for _, c := range chunks[:len(chunks)-1] {
		assert.GreaterOrEqual(t, c.Len(), int(cfg.MinSize))
		assert.LessOrEqual(t, c.Len(), int(cfg.MaxSize))
	}

	// With a mask no hash can satisfy in practice every chunk is max sized.
	data = randomData(5, 64*1024)
	cfg.Mask = ^uint64(0)
	chunks, err = Collect(bytes.NewReader(data), cfg)
	require.NoError(t, err)
	require.Len(t, chunks, len(data)/int(cfg.MaxSize))
	for _, c := range chunks {
		assert.Equal(t, int(cfg.MaxSize), c.Len())
	}
}

func TestChunker_EmptyAndShortInput(t *testing.T) {
	cfg := smallConfig(rolling.AlgoRollSum)

	chunks, err := Collect(bytes.NewReader(nil), cfg)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = Collect(bytes.NewReader([]byte("tiny")), cfg)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte("tiny"), chunks[0].Data)
}

func TestChunker_EOFIsSticky(t *testing.T) {
	c, err := New(bytes.NewReader([]byte("abc")), smallConfig(rolling.AlgoGear))
	require.NoError(t, err)

	_, err = c.Next()
	require.NoError(t, err)
	_, err = c.Next()
	assert.Equal(t, io.EOF, err)
	_, err = c.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, uint64(3), c.Offset())
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestChunker_ReadErrorIsTerminal(t *testing.T) {
	boom := errors.New("disk on fire")
	c, err := New(&failingReader{data: randomData(4, 100), err: boom}, smallConfig(rolling.AlgoBuzHash))
	require.NoError(t, err)

	_, err = c.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, apperrors.IsType(err, apperrors.TypeChunking))

	_, again := c.Next()
	assert.Equal(t, err, again)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero min", func(c *Config) { c.MinSize = 0 }, true},
		{"max below min", func(c *Config) { c.MaxSize = c.MinSize - 1 }, true},
		{"zero window", func(c *Config) { c.WindowSize = 0 }, true},
		{"gear ignores window", func(c *Config) { c.Algorithm = rolling.AlgoGear; c.WindowSize = 0 }, false},
		{"unknown algorithm", func(c *Config) { c.Algorithm = 99 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaskForAverage(t *testing.T) {
	assert.Equal(t, uint64(0xffff), MaskForAverage(64*1024))
	assert.Equal(t, uint64(0xffff), MaskForAverage(100*1024-1))
	assert.Equal(t, uint64(0), MaskForAverage(1))
	assert.Equal(t, 16, DefaultConfig().FilterBits())
}
