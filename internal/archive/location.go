package archive

import (
	"github.com/lupppig/bita/internal/compress"
	"github.com/lupppig/bita/internal/hashsum"
	"github.com/lupppig/bita/internal/storage"
)

// ChunkLocation is where a unique chunk is stored. Offset is absolute in
// the archive.
type ChunkLocation struct {
	Offset     uint64
	Size       uint32
	SourceSize uint32
	Codec      compress.Codec
}

func (l ChunkLocation) Range() storage.Range {
	return storage.Range{Offset: l.Offset, Length: uint64(l.Size)}
}

// LocationMap is built once when an archive is opened and never modified,
// so lookups need no locking.
type LocationMap struct {
	m map[string]ChunkLocation
}

func NewLocationMap(d *Dictionary, dataOffset uint64) *LocationMap {
	m := make(map[string]ChunkLocation, len(d.Chunks))
	for _, c := range d.Chunks {
		m[c.Hash.Key()] = ChunkLocation{
			Offset:     dataOffset + c.ArchiveOffset,
			Size:       c.ArchiveSize,
			SourceSize: c.SourceSize,
			Codec:      c.Codec(),
		}
	}
	return &LocationMap{m: m}
}

func (lm *LocationMap) Lookup(hash hashsum.HashSum) (ChunkLocation, bool) {
	loc, ok := lm.m[hash.Key()]
	return loc, ok
}

func (lm *LocationMap) Len() int { return len(lm.m) }
