// Package chunker splits a byte stream into content-defined chunks.
//
// A boundary is declared after the byte where the rolling hash of the
// trailing window satisfies hash&Mask == 0, but never before MinSize bytes
// and always at MaxSize bytes. The rolling hash restarts at every boundary,
// so the position of a boundary depends only on the bytes of its own chunk.
// This is what lets a seed file chunked on one machine line up with an
// archive built on another.
package chunker

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/bits"

	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/rolling"
)

const (
	DefaultMinSize    = 16 * 1024   // 16KB
	DefaultAvgSize    = 64 * 1024   // 64KB
	DefaultMaxSize    = 1024 * 1024 // 1MB
	DefaultWindowSize = 64

	readBufferSize = 256 * 1024
)

// Config holds the parameters that decide chunk boundaries. They are stored
// in the archive header so seeding can reproduce them exactly.
type Config struct {
	Algorithm  rolling.Algorithm
	MinSize    uint32
	MaxSize    uint32
	Mask       uint64
	WindowSize uint32
}

// DefaultConfig returns buzhash over a 64 byte window with a 64KB target.
func DefaultConfig() Config {
	return Config{
		Algorithm:  rolling.AlgoBuzHash,
		MinSize:    DefaultMinSize,
		MaxSize:    DefaultMaxSize,
		Mask:       MaskForAverage(DefaultAvgSize),
		WindowSize: DefaultWindowSize,
	}
}

// MaskForAverage returns a mask of floor(log2(avg)) low bits. With a
// uniformly distributed hash this gives a boundary roughly every avg bytes
// past MinSize.
func MaskForAverage(avg uint32) uint64 {
	if avg < 2 {
		return 0
	}
	n := bits.Len32(avg) - 1
	return (uint64(1) << n) - 1
}

// FilterBits is the number of bits set in the mask.
func (c Config) FilterBits() int {
	return bits.OnesCount64(c.Mask)
}

// AverageSize estimates the mean chunk size these parameters produce.
func (c Config) AverageSize() uint64 {
	avg := uint64(c.MinSize) + c.Mask + 1
	if avg > uint64(c.MaxSize) {
		return uint64(c.MaxSize)
	}
	return avg
}

func (c Config) window() int {
	if c.Algorithm == rolling.AlgoGear {
		return rolling.GearWindow
	}
	return int(c.WindowSize)
}

func (c Config) Validate() error {
	if c.MinSize == 0 {
		return apperrors.New(apperrors.TypeConfig, "minimum chunk size must be positive", "Set --min-chunk-size to at least 1.")
	}
	if c.MaxSize < c.MinSize {
		return apperrors.Newf(apperrors.TypeConfig, "maximum chunk size %d is below minimum %d", c.MaxSize, c.MinSize)
	}
	if c.MaxSize > math.MaxInt32 {
		return apperrors.Newf(apperrors.TypeConfig, "maximum chunk size %d is too large", c.MaxSize)
	}
	if c.Algorithm != rolling.AlgoGear && c.WindowSize == 0 {
		return apperrors.New(apperrors.TypeConfig, "rolling window size must be positive", "Set --window to a value such as 64.")
	}
	if _, err := rolling.New(c.Algorithm, c.window()); err != nil {
		return apperrors.Wrap(err, apperrors.TypeConfig, "invalid chunker algorithm", "Use buzhash, rollsum or gear.")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("%s(min=%d max=%d mask=%#x window=%d)", c.Algorithm, c.MinSize, c.MaxSize, c.Mask, c.window())
}

// Chunk is one piece of the input. Data is owned by the caller.
type Chunk struct {
	Offset uint64
	Data   []byte
}

func (c Chunk) Len() int { return len(c.Data) }

// End is the offset one past the last byte of the chunk.
func (c Chunk) End() uint64 { return c.Offset + uint64(len(c.Data)) }

// Chunker lazily produces chunks from a reader. It is forward-only: to chunk
// the same data again, create a new Chunker over a fresh reader.
type Chunker struct {
	r      *bufio.Reader
	cfg    Config
	hash   rolling.Hash
	offset uint64
	err    error
}

func New(r io.Reader, cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h, err := rolling.New(cfg.Algorithm, cfg.window())
	if err != nil {
		return nil, err
	}
	return &Chunker{
		r:    bufio.NewReaderSize(r, readBufferSize),
		cfg:  cfg,
		hash: h,
	}, nil
}

// Next returns the next chunk, or io.EOF once the input is exhausted. A read
// failure is returned as a TypeChunking error and every later call returns
// the same error.
func (c *Chunker) Next() (Chunk, error) {
	if c.err != nil {
		return Chunk{}, c.err
	}

	var (
		window = c.hash.Window()
		// Bytes before this point can't influence the hash at MinSize.
		hashFrom = 0
		buf      = make([]byte, 0, c.initialCap())
	)
	if int(c.cfg.MinSize) > window {
		hashFrom = int(c.cfg.MinSize) - window
	}
	c.hash.Reset()

	for len(buf) < int(c.cfg.MaxSize) {
		b, err := c.r.ReadByte()
		if err == io.EOF {
			if len(buf) == 0 {
				c.err = io.EOF
				return Chunk{}, io.EOF
			}
			break
		}
		if err != nil {
			c.err = apperrors.Wrapf(err, apperrors.TypeChunking, "reading input at offset %d", c.offset+uint64(len(buf)))
			return Chunk{}, c.err
		}
		buf = append(buf, b)

		if len(buf) <= hashFrom {
			continue
		}
		c.hash.Input(b)

		if len(buf) >= int(c.cfg.MinSize) && len(buf)-hashFrom >= window && c.hash.Sum()&c.cfg.Mask == 0 {
			break
		}
	}

	chunk := Chunk{Offset: c.offset, Data: buf}
	c.offset += uint64(len(buf))
	return chunk, nil
}

// Offset is the number of bytes consumed so far.
func (c *Chunker) Offset() uint64 { return c.offset }

func (c *Chunker) initialCap() int {
	avg := c.cfg.AverageSize()
	if avg > readBufferSize*4 {
		avg = readBufferSize * 4
	}
	return int(avg)
}

// Collect drains a chunker into a slice. Meant for small inputs and tests.
func Collect(r io.Reader, cfg Config) ([]Chunk, error) {
	c, err := New(r, cfg)
	if err != nil {
		return nil, err
	}
	var chunks []Chunk
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}
