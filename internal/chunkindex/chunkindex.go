// Package chunkindex tracks where each unique chunk must be written in a
// reconstructed file.
//
// An Index is the work list of a clone: every hash maps to the output
// offsets still waiting for its bytes. Remove and Claim hand those offsets to
// exactly one caller and forget the hash, so a chunk is never fetched or
// written twice even when seeding and fetching run concurrently.
package chunkindex

import (
	"bytes"
	"sort"
	"sync"

	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
)

// Entry is one unique chunk and the output offsets it fills, in ascending
// order.
type Entry struct {
	Hash    hashsum.HashSum
	Size    uint32
	Offsets []uint64
}

// Bytes is the number of output bytes this entry accounts for.
func (e Entry) Bytes() uint64 { return uint64(e.Size) * uint64(len(e.Offsets)) }

type Index struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func New() *Index {
	return &Index{entries: make(map[string]*Entry)}
}

// Insert records that the chunk hash of the given size belongs at offset.
// Inserting a known hash with a different size means two distinct chunks
// share a truncated hash; the existing entry is left untouched and an
// Integrity error wrapping ErrHashCollision is returned.
func (idx *Index) Insert(hash hashsum.HashSum, size uint32, offset uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.entries[hash.Key()]
	if !ok {
		idx.entries[hash.Key()] = &Entry{
			Hash:    append(hashsum.HashSum(nil), hash...),
			Size:    size,
			Offsets: []uint64{offset},
		}
		return nil
	}
	if e.Size != size {
		return apperrors.Wrapf(apperrors.ErrHashCollision, apperrors.TypeIntegrity,
			"chunk %s at offset %d has size %d, already indexed with size %d", hash, offset, size, e.Size)
	}

	// Layout order is ascending, so this is almost always an append.
	i := sort.Search(len(e.Offsets), func(i int) bool { return e.Offsets[i] >= offset })
	if i < len(e.Offsets) && e.Offsets[i] == offset {
		return nil
	}
	e.Offsets = append(e.Offsets, 0)
	copy(e.Offsets[i+1:], e.Offsets[i:])
	e.Offsets[i] = offset
	return nil
}

func (idx *Index) Contains(hash hashsum.HashSum) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.entries[hash.Key()]
	return ok
}

// Get returns a copy of the pending entry for hash without claiming it.
func (idx *Index) Get(hash hashsum.HashSum) (Entry, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[hash.Key()]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Remove atomically deletes hash and returns its pending entry. Only the
// first caller for a given hash gets ok == true.
func (idx *Index) Remove(hash hashsum.HashSum) (Entry, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[hash.Key()]
	if !ok {
		return Entry{}, false
	}
	delete(idx.entries, hash.Key())
	return *e, true
}

// Claim is Remove restricted to entries of the given size. A seed chunk
// whose truncated hash matches but whose size differs is a collision and
// leaves the entry for the fetch stage.
func (idx *Index) Claim(hash hashsum.HashSum, size uint32) (Entry, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[hash.Key()]
	if !ok || e.Size != size {
		return Entry{}, false
	}
	delete(idx.entries, hash.Key())
	return *e, true
}

func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.entries)
}

func (idx *Index) IsEmpty() bool { return idx.Len() == 0 }

// TotalBytes is the number of output bytes still pending.
func (idx *Index) TotalBytes() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var total uint64
	for _, e := range idx.entries {
		total += e.Bytes()
	}
	return total
}

// Hashes returns the pending hashes in byte order.
func (idx *Index) Hashes() []hashsum.HashSum {
	idx.mu.Lock()
	out := make([]hashsum.HashSum, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e.Hash)
	}
	idx.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

// Drain removes every pending entry and returns them ordered by their first
// output offset.
func (idx *Index) Drain() []Entry {
	idx.mu.Lock()
	out := make([]Entry, 0, len(idx.entries))
	for k, e := range idx.entries {
		out = append(out, *e)
		delete(idx.entries, k)
	}
	idx.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Offsets[0] < out[j].Offsets[0] })
	return out
}

func (e *Entry) clone() Entry {
	return Entry{
		Hash:    e.Hash,
		Size:    e.Size,
		Offsets: append([]uint64(nil), e.Offsets...),
	}
}
