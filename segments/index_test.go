package segments

import (
	"slices"
	"testing"

	"github.com/go-quicktest/qt"
)

type located struct {
	Index int
	Extent
}

func collect(idx Index, e Extent) (ret []located) {
	for i, e := range idx.Locate(e) {
		ret = append(ret, located{i, e})
	}
	return
}

func TestLocateSkipsEmptySegments(t *testing.T) {
	idx := NewIndex(slices.Values([]Length{1, 0, 2, 0, 3}))
	qt.Check(t, qt.DeepEquals(collect(idx, Extent{2, 2}), []located{
		{2, Extent{1, 1}},
		{4, Extent{0, 1}},
	}))
	qt.Check(t, qt.IsNil(collect(idx, Extent{6, 2})))
	qt.Check(t, qt.Equals(idx.End(), 6))
}

func TestLocateWithinOneSegment(t *testing.T) {
	idx := NewIndex(slices.Values([]Length{100, 200, 300}))
	qt.Check(t, qt.DeepEquals(collect(idx, Extent{150, 10}), []located{
		{1, Extent{50, 10}},
	}))
}

func TestLocateSpanningSegments(t *testing.T) {
	idx := NewIndex(slices.Values([]Length{100, 200, 300}))
	qt.Check(t, qt.DeepEquals(collect(idx, Extent{90, 250}), []located{
		{0, Extent{90, 10}},
		{1, Extent{0, 200}},
		{2, Extent{0, 40}},
	}))
}

func TestLocateZeroLength(t *testing.T) {
	idx := NewIndex(slices.Values([]Length{100}))
	qt.Check(t, qt.IsNil(collect(idx, Extent{10, 0})))
}

func TestLocateStopsEarly(t *testing.T) {
	idx := NewIndex(slices.Values([]Length{1, 1, 1}))
	n := 0
	for range idx.Locate(Extent{0, 3}) {
		n++
		break
	}
	qt.Check(t, qt.Equals(n, 1))
}

func TestIntersect(t *testing.T) {
	qt.Check(t, qt.Equals(Extent{0, 10}.Intersect(Extent{5, 10}), Extent{5, 5}))
	qt.Check(t, qt.Equals(Extent{0, 10}.Intersect(Extent{20, 10}).Length, 0))
}
