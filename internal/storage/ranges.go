package storage

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Range is a half-open byte range [Offset, Offset+Length).
type Range struct {
	Offset uint64
	Length uint64
}

func (r Range) End() uint64 { return r.Offset + r.Length }

// Batch is one backend read covering several requested ranges.
type Batch struct {
	Range
	Parts []Range
}

// Split cuts the bytes read for the batch back into its parts.
func (b Batch) Split(data []byte) [][]byte {
	out := make([][]byte, len(b.Parts))
	for i, p := range b.Parts {
		start := p.Offset - b.Offset
		out[i] = data[start : start+p.Length]
	}
	return out
}

// Coalesce sorts ranges by offset and merges neighbours into batches. Two
// ranges share a batch when the gap between them is at most maxGap and the
// batch stays within maxBatch bytes. A single range larger than maxBatch
// still gets its own batch.
func Coalesce(ranges []Range, maxGap, maxBatch uint64) []Batch {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var batches []Batch
	cur := Batch{Range: sorted[0], Parts: []Range{sorted[0]}}
	for _, r := range sorted[1:] {
		end := max(cur.End(), r.End())
		if r.Offset <= cur.End()+maxGap && end-cur.Offset <= maxBatch {
			cur.Length = end - cur.Offset
			cur.Parts = append(cur.Parts, r)
			continue
		}
		batches = append(batches, cur)
		cur = Batch{Range: r, Parts: []Range{r}}
	}
	return append(batches, cur)
}

// ReadRanges fetches ranges from b using coalesced batches, at most workers
// reads in flight. fn is called once per requested range, possibly from
// several goroutines at once, with the range's index in ranges and its bytes.
// The first error cancels outstanding reads.
func ReadRanges(ctx context.Context, b ReaderBackend, ranges []Range, maxGap, maxBatch uint64, workers int, fn func(i int, data []byte) error) error {
	index := make(map[Range][]int, len(ranges))
	unique := make([]Range, 0, len(ranges))
	for i, r := range ranges {
		if _, seen := index[r]; !seen {
			unique = append(unique, r)
		}
		index[r] = append(index[r], i)
	}

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, batch := range Coalesce(unique, maxGap, maxBatch) {
		g.Go(func() error {
			data, err := b.ReadAt(ctx, batch.Offset, batch.Length)
			if err != nil {
				return err
			}
			for i, part := range batch.Split(data) {
				for _, idx := range index[batch.Parts[i]] {
					if err := fn(idx, part); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}
