package coredump

import (
	"cmp"
	"slices"

	"github.com/coretrace/coretrace/pkg/vmem"
)

// blob is captured memory to be placed in the image. When blobs overlap
// the later one wins.
type blob struct {
	Start uint64
	Data  []byte
}

func (b blob) segment() vmem.Segment {
	return vmem.Segment{Start: b.Start, End: b.Start + uint64(len(b.Data))}
}

// load is one PT_LOAD. Data, when present, backs a prefix of the range
// starting at its first byte.
type load struct {
	vmem.Segment
	Perm vmem.Perm
	Data []byte
}

// buildLoads merges the blobs into the mappings and splits every mapping
// so that each resulting load carries at most one contiguous blob that
// starts at the load's start address. Blob bytes outside every mapping
// get page-aligned read-write mappings of their own.
func buildLoads(mappings []vmem.Mapping, blobs []blob) []load {
	maps := make([]vmem.Mapping, 0, len(mappings))
	for _, m := range mappings {
		if !m.Empty() {
			maps = append(maps, m)
		}
	}
	slices.SortFunc(maps, func(a, b vmem.Mapping) int { return cmp.Compare(a.Start, b.Start) })

	var orphans []vmem.Segment
	for _, b := range blobs {
		orphans = append(orphans, uncovered(b.segment(), maps)...)
	}
	for _, seg := range vmem.Merge(orphans) {
		maps = append(maps, vmem.Mapping{Segment: seg, Perm: vmem.Read | vmem.Write})
	}
	slices.SortFunc(maps, func(a, b vmem.Mapping) int { return cmp.Compare(a.Start, b.Start) })

	var loads []load
	for _, m := range maps {
		runs := overlay(m.Segment, blobs)
		if len(runs) == 0 {
			loads = append(loads, load{Segment: m.Segment, Perm: m.Perm})
			continue
		}
		if runs[0].Start > m.Start {
			loads = append(loads, load{Segment: vmem.Segment{Start: m.Start, End: runs[0].Start}, Perm: m.Perm})
		}
		for i, r := range runs {
			end := m.End
			if i+1 < len(runs) {
				end = runs[i+1].Start
			}
			loads = append(loads, load{Segment: vmem.Segment{Start: r.Start, End: end}, Perm: m.Perm, Data: r.Data})
		}
	}
	return loads
}

// uncovered returns the parts of s outside every mapping. maps must be
// sorted and non-overlapping.
func uncovered(s vmem.Segment, maps []vmem.Mapping) []vmem.Segment {
	if s.Empty() {
		return nil
	}
	var out []vmem.Segment
	cur := s.Start
	for _, m := range maps {
		if m.End <= cur {
			continue
		}
		if m.Start >= s.End {
			break
		}
		if m.Start > cur {
			out = append(out, vmem.Segment{Start: cur, End: m.Start})
		}
		cur = m.End
		if cur >= s.End {
			return out
		}
	}
	return append(out, vmem.Segment{Start: cur, End: s.End})
}

// overlay clips the blobs to seg and joins them into contiguous runs.
func overlay(seg vmem.Segment, blobs []blob) []blob {
	var spans []vmem.Segment
	for _, b := range blobs {
		if in := seg.Intersect(b.segment()); !in.Empty() {
			spans = append(spans, in)
		}
	}
	if len(spans) == 0 {
		return nil
	}
	slices.SortFunc(spans, func(a, b vmem.Segment) int { return cmp.Compare(a.Start, b.Start) })

	joined := spans[:1]
	for _, s := range spans[1:] {
		last := &joined[len(joined)-1]
		if s.Start <= last.End {
			last.End = max(last.End, s.End)
			continue
		}
		joined = append(joined, s)
	}

	runs := make([]blob, len(joined))
	for i, j := range joined {
		runs[i] = blob{Start: j.Start, Data: make([]byte, j.Len())}
	}
	for _, b := range blobs {
		in := seg.Intersect(b.segment())
		if in.Empty() {
			continue
		}
		for i := range runs {
			rs := runs[i].segment()
			if !rs.Covers(in) {
				continue
			}
			copy(runs[i].Data[in.Start-rs.Start:], b.Data[in.Start-b.Start:in.End-b.Start])
			break
		}
	}
	return runs
}
