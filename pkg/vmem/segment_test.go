package vmem

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []Segment
		want []Segment
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "single unaligned",
			in:   []Segment{{Start: 0x1010, End: 0x1020}},
			want: []Segment{{Start: 0x1000, End: 0x2000}},
		},
		{
			name: "adjacent pages coalesce",
			in:   []Segment{{Start: 0x2000, End: 0x3000}, {Start: 0x1000, End: 0x2000}},
			want: []Segment{{Start: 0x1000, End: 0x3000}},
		},
		{
			name: "disjoint stay apart",
			in:   []Segment{{Start: 0x5000, End: 0x5001}, {Start: 0x1000, End: 0x1001}},
			want: []Segment{{Start: 0x1000, End: 0x2000}, {Start: 0x5000, End: 0x6000}},
		},
		{
			name: "contained segment absorbed",
			in:   []Segment{{Start: 0x1000, End: 0x8000}, {Start: 0x3000, End: 0x3100}},
			want: []Segment{{Start: 0x1000, End: 0x8000}},
		},
		{
			name: "empty inputs dropped",
			in:   []Segment{{Start: 0x3000, End: 0x3000}, {Start: 0x9000, End: 0x1000}},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.in))
		})
	}
}

func TestMergeInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for iter := 0; iter < 500; iter++ {
		in := make([]Segment, r.IntN(20))
		for i := range in {
			start := r.Uint64N(1 << 24)
			in[i] = Segment{Start: start, End: start + 1 + r.Uint64N(3*PageSize)}
		}

		out := Merge(in)
		for i := 1; i < len(out); i++ {
			require.Less(t, out[i-1].End, out[i].Start, "output must be sorted with gaps")
		}
		for _, s := range in {
			n := 0
			for _, o := range out {
				if o.Covers(s) {
					n++
				}
			}
			require.Equal(t, 1, n, "segment %s covered %d times", s, n)
		}
	}
}

func TestSet(t *testing.T) {
	var s Set
	s.Add(Segment{Start: 0x1000, End: 0x1010})
	s.Add(Segment{Start: 0x1800, End: 0x2100})
	require.Equal(t, 1, s.Len())
	assert.Equal(t, []Segment{{Start: 0x1000, End: 0x3000}}, s.Segments())
	assert.True(t, s.Any(Segment{Start: 0x2000, End: 0x2010}))
	assert.False(t, s.Any(Segment{Start: 0x2000, End: 0x4000}))

	s.Reset()
	assert.Zero(t, s.Len())
}

func TestPerm(t *testing.T) {
	tests := []struct {
		in   string
		want Perm
	}{
		{"r-xp", Read | Exec},
		{"rw-s", Read | Write | Shared},
		{"---p", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p := ParsePerm(tt.in)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.in, p.String())
		})
	}
}

func TestFind(t *testing.T) {
	maps := []Mapping{
		{Segment: Segment{Start: 0x1000, End: 0x2000}},
		{Segment: Segment{Start: 0x4000, End: 0x6000}},
	}
	assert.Equal(t, 0, Find(maps, 0x1fff))
	assert.Equal(t, -1, Find(maps, 0x2000))
	assert.Equal(t, 1, Find(maps, 0x4000))
	assert.Equal(t, -1, Find(maps, 0x7000))
}

func TestSubtract(t *testing.T) {
	tests := []struct {
		name  string
		seg   Segment
		holes []Segment
		want  []Segment
	}{
		{
			name: "no holes",
			seg:  Segment{Start: 0x100, End: 0x200},
			want: []Segment{{Start: 0x100, End: 0x200}},
		},
		{
			name:  "disjoint hole",
			seg:   Segment{Start: 0x100, End: 0x200},
			holes: []Segment{{Start: 0x300, End: 0x400}},
			want:  []Segment{{Start: 0x100, End: 0x200}},
		},
		{
			name:  "fully covered",
			seg:   Segment{Start: 0x100, End: 0x200},
			holes: []Segment{{Start: 0x0, End: 0x1000}},
			want:  nil,
		},
		{
			name:  "tail uncovered",
			seg:   Segment{Start: 0x100, End: 0x200},
			holes: []Segment{{Start: 0x0, End: 0x180}},
			want:  []Segment{{Start: 0x180, End: 0x200}},
		},
		{
			name:  "hole in the middle",
			seg:   Segment{Start: 0x100, End: 0x400},
			holes: []Segment{{Start: 0x200, End: 0x300}},
			want:  []Segment{{Start: 0x100, End: 0x200}, {Start: 0x300, End: 0x400}},
		},
		{
			name:  "two holes",
			seg:   Segment{Start: 0x100, End: 0x500},
			holes: []Segment{{Start: 0x400, End: 0x480}, {Start: 0x0, End: 0x200}},
			want:  []Segment{{Start: 0x200, End: 0x400}, {Start: 0x480, End: 0x500}},
		},
		{
			name: "empty segment",
			seg:  Segment{Start: 0x100, End: 0x100},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subtract(tt.seg, tt.holes))
		})
	}
}
