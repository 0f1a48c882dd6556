// Package progress draws the build and clone progress bars.
package progress

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Reader tracks bytes read and updates an mpb.Bar. A nil bar only counts.
type Reader struct {
	r   io.Reader
	bar *mpb.Bar
	n   int64
}

func NewReader(r io.Reader, bar *mpb.Bar) *Reader {
	return &Reader{r: r, bar: bar}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.n += int64(n)
		Incr(pr.bar, n)
	}
	return n, err
}

// Count is the number of bytes read so far.
func (pr *Reader) Count() int64 { return pr.n }

// Incr advances bar by n. It is safe to call from several goroutines and
// with a nil bar.
func Incr(bar *mpb.Bar, n int) {
	if bar != nil && n > 0 {
		bar.IncrBy(n)
	}
}

// Incr64 is Incr for uint64 counts.
func Incr64(bar *mpb.Bar, n uint64) {
	if bar != nil && n > 0 {
		bar.IncrInt64(int64(n))
	}
}

// NewContainer returns nil when quiet, and every helper here accepts nil.
func NewContainer(w io.Writer, quiet bool) *mpb.Progress {
	if quiet {
		return nil
	}
	return mpb.New(mpb.WithWidth(64), mpb.WithOutput(w))
}

// Wait flushes the container. Bars that never completed are aborted first
// so Wait cannot block on them.
func Wait(p *mpb.Progress, bars ...*mpb.Bar) {
	if p == nil {
		return
	}
	for _, b := range bars {
		if b != nil && !b.Completed() {
			b.Abort(false)
		}
	}
	p.Wait()
}

// AddBuildBar tracks source bytes chunked. total <= 0 means the input size
// is unknown, as with stdin.
func AddBuildBar(p *mpb.Progress, name string, total int64) *mpb.Bar {
	if p == nil {
		return nil
	}
	if total <= 0 {
		return p.AddBar(0,
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 1}),
				decor.CurrentKibiByte("% .2f"),
			),
			mpb.AppendDecorators(
				decor.Name(" chunked"),
				decor.OnComplete(decor.Name(""), " [DONE]"),
			),
		)
	}
	return p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1}),
			decor.Percentage(),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.CountersKibiByte("% .2f / % .2f"),
				"DONE",
			),
		),
	)
}

// AddSeedBar tracks bytes read from one seed. Seeds may stop early, so the
// bar has no total.
func AddSeedBar(p *mpb.Progress, name string) *mpb.Bar {
	if p == nil {
		return nil
	}
	return p.AddBar(0,
		mpb.PrependDecorators(
			decor.Name("seed "+name, decor.WC{W: len(name) + 6}),
			decor.CurrentKibiByte("% .2f"),
		),
		mpb.AppendDecorators(
			decor.Name(" scanned"),
		),
		mpb.BarRemoveOnComplete(),
	)
}

// AddCloneBar tracks output bytes written, from seeds and fetches alike.
func AddCloneBar(p *mpb.Progress, name string, total int64) *mpb.Bar {
	if p == nil {
		return nil
	}
	return p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1}),
			decor.Percentage(),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.CountersKibiByte("% .2f / % .2f"),
				"DONE",
			),
		),
	)
}

// Finish marks an open-ended bar complete.
func Finish(bar *mpb.Bar) {
	if bar != nil {
		bar.SetTotal(-1, true)
	}
}
