// Package archive reads and writes bita archives.
//
// An archive is laid out as
//
//	[header 64 bytes][dictionary][checksum 32 bytes][chunk data]
//
// The header records the hash and chunking parameters the archive was built
// with so a seed can be chunked identically. The dictionary lists every
// unique chunk once, with its compression and its extent in the chunk data
// section, plus the order in which chunks rebuild the source. The checksum
// is blake2b-256 over the header and dictionary bytes.
package archive

import (
	"bytes"
	"encoding/binary"

	"github.com/lupppig/bita/internal/chunker"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
	"github.com/lupppig/bita/internal/rolling"
)

const (
	Magic        = "BITA"
	Version      = 1
	HeaderSize   = 64
	ChecksumSize = 32

	// MaxDictionarySize guards allocations against corrupt length fields.
	MaxDictionarySize = 1 << 31
)

// Header is the fixed-size prefix of an archive.
type Header struct {
	HashFunc         hashsum.Func
	HashLength       int
	Chunker          chunker.Config
	DictionaryLength uint64
}

func (h Header) MarshalBinary() ([]byte, error) {
	if err := hashsum.ValidateLength(h.HashLength); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig, "invalid hash length", "")
	}
	if !h.HashFunc.Valid() {
		return nil, apperrors.Newf(apperrors.TypeConfig, "invalid hash function %s", h.HashFunc)
	}

	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	buf[4] = Version
	buf[5] = byte(h.HashFunc)
	buf[6] = byte(h.HashLength)
	buf[7] = byte(h.Chunker.Algorithm)
	binary.LittleEndian.PutUint32(buf[8:12], h.Chunker.MinSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.Chunker.MaxSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.Chunker.Mask)
	binary.LittleEndian.PutUint32(buf[24:28], h.Chunker.WindowSize)
	binary.LittleEndian.PutUint64(buf[32:40], h.DictionaryLength)
	return buf, nil
}

// ParseHeader decodes and validates a header. Every failure is a Format
// error.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, apperrors.Wrapf(apperrors.ErrCorruptArchive, apperrors.TypeFormat, "truncated header: %d of %d bytes", len(b), HeaderSize)
	}
	if string(b[0:4]) != Magic {
		return h, apperrors.Wrapf(apperrors.ErrCorruptArchive, apperrors.TypeFormat, "bad magic %q, not a bita archive", b[0:4])
	}
	if b[4] != Version {
		return h, apperrors.Newf(apperrors.TypeFormat, "unsupported archive version %d (this build reads version %d)", b[4], Version)
	}
	if !bytes.Equal(b[28:32], make([]byte, 4)) || !bytes.Equal(b[40:HeaderSize], make([]byte, HeaderSize-40)) {
		return h, apperrors.Wrapf(apperrors.ErrCorruptArchive, apperrors.TypeFormat, "reserved header bytes are not zero")
	}

	h.HashFunc = hashsum.Func(b[5])
	h.HashLength = int(b[6])
	h.Chunker = chunker.Config{
		Algorithm:  rolling.Algorithm(b[7]),
		MinSize:    binary.LittleEndian.Uint32(b[8:12]),
		MaxSize:    binary.LittleEndian.Uint32(b[12:16]),
		Mask:       binary.LittleEndian.Uint64(b[16:24]),
		WindowSize: binary.LittleEndian.Uint32(b[24:28]),
	}
	h.DictionaryLength = binary.LittleEndian.Uint64(b[32:40])

	if !h.HashFunc.Valid() {
		return h, apperrors.Newf(apperrors.TypeFormat, "unknown hash function %d", b[5])
	}
	if err := hashsum.ValidateLength(h.HashLength); err != nil {
		return h, apperrors.Wrap(err, apperrors.TypeFormat, "invalid hash length in header", "")
	}
	if err := h.Chunker.Validate(); err != nil {
		return h, apperrors.Wrap(err, apperrors.TypeFormat, "invalid chunker parameters in header", "")
	}
	if h.DictionaryLength == 0 || h.DictionaryLength > MaxDictionarySize {
		return h, apperrors.Wrapf(apperrors.ErrCorruptArchive, apperrors.TypeFormat, "invalid dictionary length %d", h.DictionaryLength)
	}
	return h, nil
}

// DataOffset is where the chunk data section starts.
func (h Header) DataOffset() uint64 {
	return HeaderSize + h.DictionaryLength + ChecksumSize
}
