package archive

import (
	"math"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/lupppig/bita/internal/chunkindex"
	"github.com/lupppig/bita/internal/compress"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
)

// ChunkDescriptor describes one unique chunk. ArchiveOffset is relative to
// the start of the chunk data section.
type ChunkDescriptor struct {
	Hash          hashsum.HashSum `cbor:"1,keyasint"`
	SourceSize    uint32          `cbor:"2,keyasint"`
	Compression   compress.Kind   `cbor:"3,keyasint"`
	Level         int             `cbor:"4,keyasint,omitempty"`
	ArchiveOffset uint64          `cbor:"5,keyasint"`
	ArchiveSize   uint32          `cbor:"6,keyasint"`
}

func (d ChunkDescriptor) Codec() compress.Codec {
	return compress.Codec{Kind: d.Compression, Level: d.Level}
}

// Dictionary is the archive manifest. RebuildOrder lists indexes into
// Chunks in source order; a chunk appears once per occurrence.
type Dictionary struct {
	SourceSize     uint64            `cbor:"1,keyasint"`
	SourceChecksum hashsum.HashSum   `cbor:"2,keyasint"`
	Chunks         []ChunkDescriptor `cbor:"3,keyasint"`
	RebuildOrder   []uint32          `cbor:"4,keyasint"`
	Created        int64             `cbor:"5,keyasint,omitempty"`
}

// Segment is one placement of a chunk in the rebuilt source.
type Segment struct {
	Hash   hashsum.HashSum
	Offset uint64
	Size   uint32
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 27,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// plainDictionary has no methods, so the CBOR encoder does not call
// MarshalBinary on it again.
type plainDictionary Dictionary

func (d *Dictionary) MarshalBinary() ([]byte, error) {
	b, err := encMode.Marshal((*plainDictionary)(d))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeInternal, "failed to encode dictionary", "")
	}
	return b, nil
}

// UnmarshalDictionary decodes a dictionary. It does not validate it.
func UnmarshalDictionary(b []byte) (*Dictionary, error) {
	var d Dictionary
	if err := decMode.Unmarshal(b, &d); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeFormat, "failed to decode dictionary", "The archive dictionary is damaged.")
	}
	return &d, nil
}

// Validate checks the dictionary against the header it came with and the
// size of the chunk data section. dataSize < 0 skips the bounds check.
func (d *Dictionary) Validate(hashLength int, dataSize int64) error {
	seen := make(map[string]struct{}, len(d.Chunks))
	extents := make([]ChunkDescriptor, 0, len(d.Chunks))

	for i, c := range d.Chunks {
		if len(c.Hash) != hashLength {
			return apperrors.Newf(apperrors.TypeFormat, "chunk %d: hash is %d bytes, header declares %d", i, len(c.Hash), hashLength)
		}
		if _, dup := seen[c.Hash.Key()]; dup {
			return apperrors.Newf(apperrors.TypeFormat, "chunk %d: duplicate descriptor for %s", i, c.Hash)
		}
		seen[c.Hash.Key()] = struct{}{}

		if !c.Compression.Valid() {
			return apperrors.Newf(apperrors.TypeFormat, "chunk %d: unknown compression %d", i, uint8(c.Compression))
		}
		if c.SourceSize == 0 || c.ArchiveSize == 0 {
			return apperrors.Newf(apperrors.TypeFormat, "chunk %d: empty chunk", i)
		}
		if c.Compression == compress.KindNone && c.ArchiveSize != c.SourceSize {
			return apperrors.Newf(apperrors.TypeFormat, "chunk %d: stored uncompressed but sizes differ (%d != %d)", i, c.ArchiveSize, c.SourceSize)
		}
		if c.ArchiveOffset > math.MaxUint64-uint64(c.ArchiveSize) {
			return apperrors.Newf(apperrors.TypeFormat, "chunk %d: extent at offset %d overflows", i, c.ArchiveOffset)
		}
		if dataSize >= 0 && (c.ArchiveOffset > uint64(dataSize) || c.ArchiveOffset+uint64(c.ArchiveSize) > uint64(dataSize)) {
			return apperrors.Newf(apperrors.TypeFormat, "chunk %d: extent [%d, %d) is outside the chunk data section (%d bytes)",
				i, c.ArchiveOffset, c.ArchiveOffset+uint64(c.ArchiveSize), dataSize)
		}
		extents = append(extents, c)
	}

	sort.Slice(extents, func(i, j int) bool { return extents[i].ArchiveOffset < extents[j].ArchiveOffset })
	for i := 1; i < len(extents); i++ {
		prev := extents[i-1]
		if prev.ArchiveOffset+uint64(prev.ArchiveSize) > extents[i].ArchiveOffset {
			return apperrors.Newf(apperrors.TypeFormat, "chunk extents overlap at offset %d", extents[i].ArchiveOffset)
		}
	}

	var total uint64
	for i, idx := range d.RebuildOrder {
		if int(idx) >= len(d.Chunks) {
			return apperrors.Newf(apperrors.TypeFormat, "rebuild entry %d references chunk %d of %d", i, idx, len(d.Chunks))
		}
		total += uint64(d.Chunks[idx].SourceSize)
	}
	if total != d.SourceSize {
		return apperrors.Newf(apperrors.TypeFormat, "rebuild order covers %d bytes, dictionary declares %d", total, d.SourceSize)
	}
	return nil
}

// Layout expands RebuildOrder into output segments.
func (d *Dictionary) Layout() []Segment {
	out := make([]Segment, 0, len(d.RebuildOrder))
	var offset uint64
	for _, idx := range d.RebuildOrder {
		c := d.Chunks[idx]
		out = append(out, Segment{Hash: c.Hash, Offset: offset, Size: c.SourceSize})
		offset += uint64(c.SourceSize)
	}
	return out
}

// NewChunkIndex builds the work list of a clone. Each call returns a fresh
// index since cloning consumes it.
func (d *Dictionary) NewChunkIndex() (*chunkindex.Index, error) {
	idx := chunkindex.New()
	for _, s := range d.Layout() {
		if err := idx.Insert(s.Hash, s.Size, s.Offset); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// ChunkDataSize is the number of stored bytes in the chunk data section.
func (d *Dictionary) ChunkDataSize() uint64 {
	var total uint64
	for _, c := range d.Chunks {
		total += uint64(c.ArchiveSize)
	}
	return total
}

// CodecUsage counts unique chunks per compression kind.
func (d *Dictionary) CodecUsage() map[compress.Kind]int {
	out := make(map[compress.Kind]int)
	for _, c := range d.Chunks {
		out[c.Compression]++
	}
	return out
}
