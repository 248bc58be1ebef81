package segments

type Int = int64

type Length = Int

// A half-open run of bytes [Start, Start+Length).
type Extent struct {
	Start, Length Int
}

func (e Extent) End() Int {
	return e.Start + e.Length
}

// Returns the overlap of two extents. The result has zero length if they don't intersect.
func (e Extent) Intersect(o Extent) (ret Extent) {
	ret.Start = max(e.Start, o.Start)
	ret.Length = max(min(e.End(), o.End())-ret.Start, 0)
	return
}

// Returns the extent translated so that origin becomes offset zero.
func (e Extent) RelativeTo(origin Int) Extent {
	return Extent{e.Start - origin, e.Length}
}
