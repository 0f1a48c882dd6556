// Package rolling implements sliding-window hashes used to find
// content-defined chunk boundaries.
//
// Every Hash depends only on the last Window() bytes fed to it once at least
// that many bytes have been seen. Values before the window fills are stable
// but must not be used for boundary decisions.
package rolling

import (
	"fmt"
	"strings"

	"github.com/chmduquesne/rollinghash"
	"github.com/chmduquesne/rollinghash/adler32"
	"github.com/chmduquesne/rollinghash/buzhash32"
)

// Hash is a rolling hash over a fixed window of bytes.
type Hash interface {
	// Input slides the window forward by one byte.
	Input(b byte)
	// Sum returns the hash of the current window.
	Sum() uint64
	// Window is the number of trailing bytes Sum depends on.
	Window() int
	// Reset returns the hash to its freshly constructed state.
	Reset()
}

// Algorithm identifies a rolling hash on disk. The values are part of the
// archive header and must never be renumbered.
type Algorithm uint8

const (
	AlgoBuzHash Algorithm = 1
	AlgoRollSum Algorithm = 2
	AlgoGear    Algorithm = 3
)

func (a Algorithm) String() string {
	switch a {
	case AlgoBuzHash:
		return "buzhash"
	case AlgoRollSum:
		return "rollsum"
	case AlgoGear:
		return "gear"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm is the inverse of Algorithm.String.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buzhash", "":
		return AlgoBuzHash, nil
	case "rollsum":
		return AlgoRollSum, nil
	case "gear":
		return AlgoGear, nil
	default:
		return 0, fmt.Errorf("unknown rolling hash %q (want buzhash, rollsum or gear)", s)
	}
}

// New constructs the hash for algo over a window of size bytes.
func New(algo Algorithm, window int) (Hash, error) {
	if window <= 0 && algo != AlgoGear {
		return nil, fmt.Errorf("rolling window must be positive, got %d", window)
	}
	switch algo {
	case AlgoBuzHash:
		return NewBuzHash(window), nil
	case AlgoRollSum:
		return NewRollSum(window), nil
	case AlgoGear:
		return NewGear(), nil
	default:
		return nil, fmt.Errorf("unsupported rolling hash %s", algo)
	}
}

// windowed adapts a rollinghash.Hash32 to Hash. The library hashes need
// a full window before Roll is valid, so the first Window() bytes after a
// Reset are collected and written in one go; Sum reports 0 until then.
type windowed struct {
	h    rollinghash.Hash32
	size int
	fill []byte
}

func newWindowed(h rollinghash.Hash32, size int) *windowed {
	return &windowed{h: h, size: size, fill: make([]byte, 0, size)}
}

func (w *windowed) Input(in byte) {
	if len(w.fill) < w.size {
		w.fill = append(w.fill, in)
		if len(w.fill) == w.size {
			w.h.Reset()
			w.h.Write(w.fill)
		}
		return
	}
	w.h.Roll(in)
}

func (w *windowed) Sum() uint64 {
	if len(w.fill) < w.size {
		return 0
	}
	return uint64(w.h.Sum32())
}

func (w *windowed) Window() int { return w.size }

func (w *windowed) Reset() {
	w.h.Reset()
	w.fill = w.fill[:0]
}

// NewBuzHash returns a cyclic polynomial hash keyed by buzTable.
func NewBuzHash(window int) Hash {
	return newWindowed(buzhash32.NewFromUint32Array(buzTable), window)
}

// NewRollSum returns the Adler-32 checksum pair rolled over window bytes.
func NewRollSum(window int) Hash {
	return newWindowed(adler32.New(), window)
}

// GearWindow is the implicit window of the gear hash: a byte's contribution
// is shifted out of the 64-bit state after 64 further inputs.
const GearWindow = 64

// Gear is the shift-and-add hash used by FastCDC. It keeps no window buffer.
type Gear struct {
	hash uint64
}

func NewGear() *Gear { return &Gear{} }

func (g *Gear) Input(in byte) { g.hash = (g.hash << 1) + gearTable[in] }

func (g *Gear) Sum() uint64 { return g.hash }

func (g *Gear) Window() int { return GearWindow }

func (g *Gear) Reset() { g.hash = 0 }

var buzTable = func() [256]uint32 {
	// splitmix64 from a fixed seed; the table is part of the archive format.
	var t [256]uint32
	state := uint64(0x62697461_62757a68)
	for i := range t {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		t[i] = uint32(z >> 32)
	}
	return t
}()
