package segments

import (
	"iter"
	"sort"

	"github.com/anacrolix/missinggo/v2/panicif"
)

// Consecutive segments laid end to end, like the files in a torrent.
type Index struct {
	segments []Extent
}

func NewIndex(lengths iter.Seq[Length]) (ret Index) {
	var start Length
	for l := range lengths {
		panicif.LessThan(l, 0)
		ret.segments = append(ret.segments, Extent{start, l})
		start += l
	}
	return
}

// The segments must be ordered and contiguous.
func NewIndexFromSegments(segments []Extent) Index {
	for i := 1; i < len(segments); i++ {
		panicif.NotEq(segments[i].Start, segments[i-1].End())
	}
	return Index{segments}
}

func (me Index) Len() int {
	return len(me.segments)
}

func (me Index) Index(i int) Extent {
	return me.segments[i]
}

func (me Index) End() Int {
	if len(me.segments) == 0 {
		return 0
	}
	return me.segments[len(me.segments)-1].End()
}

// Yields each segment intersecting e, with the intersection given in the segment's own
// coordinates. Zero-length intersections are skipped, so an extent beyond the end of the index
// yields nothing.
func (me Index) Locate(e Extent) iter.Seq2[int, Extent] {
	return func(yield func(int, Extent) bool) {
		if e.Length <= 0 {
			return
		}
		first := sort.Search(len(me.segments), func(i int) bool {
			return me.segments[i].End() > e.Start
		})
		for i := first; i < len(me.segments); i++ {
			seg := me.segments[i]
			if seg.Start >= e.End() {
				return
			}
			is := seg.Intersect(e)
			if is.Length == 0 {
				continue
			}
			if !yield(i, is.RelativeTo(seg.Start)) {
				return
			}
		}
	}
}
