// Package hashsum computes the content digests used as chunk identity.
//
// A digest is computed at the full width of the hash function and then
// truncated to the length recorded in the archive header. Two HashSums are
// only comparable when they were truncated to the same length.
package hashsum

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

const (
	MinLength     = 4
	MaxLength     = 64
	DefaultLength = 32
)

// HashSum is a possibly truncated digest. Equality and ordering are byte-wise.
type HashSum []byte

func (h HashSum) String() string { return hex.EncodeToString(h) }

// Short is the first 8 bytes in hex, for log lines.
func (h HashSum) Short() string {
	if len(h) > 8 {
		return hex.EncodeToString(h[:8])
	}
	return h.String()
}

// Key returns h as a string suitable for map keys.
func (h HashSum) Key() string { return string(h) }

func (h HashSum) Equal(other HashSum) bool { return bytes.Equal(h, other) }

func (h HashSum) Compare(other HashSum) int { return bytes.Compare(h, other) }

// Truncate returns the first n bytes of h. It never extends h.
func (h HashSum) Truncate(n int) HashSum {
	if n >= len(h) {
		return h
	}
	return h[:n]
}

// Parse decodes a hex digest.
func Parse(s string) (HashSum, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parsing hash %q: %w", s, err)
	}
	return HashSum(b), nil
}

// Func identifies a hash function on disk. Values must never be renumbered.
type Func uint8

const (
	Blake2b Func = 1
	Blake3  Func = 2
)

func (f Func) String() string {
	switch f {
	case Blake2b:
		return "blake2b"
	case Blake3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

func ParseFunc(s string) (Func, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blake2b", "blake2", "":
		return Blake2b, nil
	case "blake3":
		return Blake3, nil
	default:
		return 0, fmt.Errorf("unknown hash function %q (want blake2b or blake3)", s)
	}
}

func (f Func) Valid() bool { return f == Blake2b || f == Blake3 }

// ValidateLength checks n against the supported truncation range.
func ValidateLength(n int) error {
	if n < MinLength || n > MaxLength {
		return fmt.Errorf("hash length %d out of range [%d, %d]", n, MinLength, MaxLength)
	}
	return nil
}

// Digest hashes data with f and truncates the result to length bytes.
func Digest(f Func, data []byte, length int) HashSum {
	var full [64]byte
	switch f {
	case Blake3:
		full = blake3.Sum512(data)
	default:
		full = blake2b.Sum512(data)
	}
	if length <= 0 || length > len(full) {
		length = len(full)
	}
	out := make(HashSum, length)
	copy(out, full[:length])
	return out
}

// Hasher computes a full-width digest over a stream.
type Hasher struct {
	f  Func
	b2 hash.Hash
	b3 *blake3.Hasher
}

func NewHasher(f Func) *Hasher {
	if f == Blake3 {
		return &Hasher{f: f, b3: blake3.New()}
	}
	// New512 only fails for keys longer than 64 bytes.
	b2, _ := blake2b.New512(nil)
	return &Hasher{f: Blake2b, b2: b2}
}

func (h *Hasher) Write(p []byte) (int, error) {
	if h.b3 != nil {
		return h.b3.Write(p)
	}
	return h.b2.Write(p)
}

// Sum returns the 64 byte digest of everything written so far.
func (h *Hasher) Sum() HashSum {
	if h.b3 != nil {
		out := make(HashSum, MaxLength)
		_, _ = h.b3.Digest().Read(out)
		return out
	}
	return HashSum(h.b2.Sum(nil))
}
