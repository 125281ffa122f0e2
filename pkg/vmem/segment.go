package vmem

import (
	"cmp"
	"fmt"
	"slices"
)

// PageSize is the granularity used when aligning captured ranges.
const PageSize = 4096

// Segment is a half-open virtual address range [Start, End).
type Segment struct {
	Start uint64
	End   uint64
}

func (s Segment) Len() uint64 {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

func (s Segment) Empty() bool {
	return s.End <= s.Start
}

// Contains reports whether addr lies inside the segment.
func (s Segment) Contains(addr uint64) bool {
	return addr >= s.Start && addr < s.End
}

// Covers reports whether o lies entirely inside the segment.
func (s Segment) Covers(o Segment) bool {
	return o.Start >= s.Start && o.End <= s.End
}

// Overlaps reports whether the two segments share at least one byte.
func (s Segment) Overlaps(o Segment) bool {
	return s.Start < o.End && o.Start < s.End
}

// Intersect returns the common part of both segments, or an empty segment.
func (s Segment) Intersect(o Segment) Segment {
	r := Segment{Start: max(s.Start, o.Start), End: min(s.End, o.End)}
	if r.End < r.Start {
		return Segment{}
	}
	return r
}

// PageAligned widens the segment outward to page boundaries.
func (s Segment) PageAligned() Segment {
	return Segment{Start: PageDown(s.Start), End: PageUp(s.End)}
}

func (s Segment) String() string {
	return fmt.Sprintf("%#x-%#x", s.Start, s.End)
}

func PageDown(addr uint64) uint64 {
	return addr &^ (PageSize - 1)
}

func PageUp(addr uint64) uint64 {
	if addr > ^uint64(0)-(PageSize-1) {
		return PageDown(addr)
	}
	return (addr + PageSize - 1) &^ (PageSize - 1)
}

// Merge page-aligns every segment, sorts them by start address and
// coalesces any segment that starts inside or directly after the previous
// one. The result is sorted and non-overlapping, and every non-empty input
// is covered by exactly one output segment.
func Merge(segs []Segment) []Segment {
	aligned := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if s.Empty() {
			continue
		}
		aligned = append(aligned, s.PageAligned())
	}
	if len(aligned) == 0 {
		return nil
	}

	slices.SortFunc(aligned, func(a, b Segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	out := aligned[:1]
	for _, s := range aligned[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End {
			last.End = max(last.End, s.End)
			continue
		}
		out = append(out, s)
	}
	return out
}

// Subtract returns the parts of s that no segment in holes covers, in
// address order.
func Subtract(s Segment, holes []Segment) []Segment {
	if s.Empty() {
		return nil
	}
	rest := []Segment{s}
	for _, h := range holes {
		var next []Segment
		for _, r := range rest {
			if !r.Overlaps(h) {
				next = append(next, r)
				continue
			}
			if r.Start < h.Start {
				next = append(next, Segment{Start: r.Start, End: h.Start})
			}
			if h.End < r.End {
				next = append(next, Segment{Start: h.End, End: r.End})
			}
		}
		rest = next
	}
	slices.SortFunc(rest, func(a, b Segment) int { return cmp.Compare(a.Start, b.Start) })
	return rest
}

// Set accumulates segments and keeps them merged.
type Set struct {
	segs []Segment
}

// Add queues a range and re-merges the set.
func (s *Set) Add(seg ...Segment) {
	s.segs = Merge(append(s.segs, seg...))
}

func (s *Set) Segments() []Segment {
	return slices.Clone(s.segs)
}

func (s *Set) Len() int {
	return len(s.segs)
}

func (s *Set) Reset() {
	s.segs = nil
}

// Any reports whether some segment in the set covers seg.
func (s *Set) Any(seg Segment) bool {
	for _, x := range s.segs {
		if x.Covers(seg) {
			return true
		}
	}
	return false
}
