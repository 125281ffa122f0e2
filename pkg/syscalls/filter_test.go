package syscalls

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tbl := MustTable("amd64")

	tests := []struct {
		name    string
		expr    string
		in      []int
		out     []int
		wantErr error
	}{
		{name: "all", expr: "all", in: []int{0, 1, 59, 511}},
		{name: "none", expr: "none", out: []int{0, 1, 59, 511}},
		{name: "names", expr: "read, write", in: []int{0, 1}, out: []int{2, 3}},
		{name: "numbers", expr: "2,3", in: []int{2, 3}, out: []int{0}},
		{name: "leading negation starts from all", expr: "!read", in: []int{1, 2, 400}, out: []int{0}},
		{name: "add after remove", expr: "!%file,open", in: []int{0, 2}, out: []int{4, 257}},
		{name: "class", expr: "%network", in: []int{41, 42, 288}, out: []int{0}},
		{name: "remove later", expr: "%desc,!close", in: []int{0, 1}, out: []int{3}},
		{name: "foreign name ignored", expr: "mmap2,read", in: []int{0}, out: []int{192}},
		{name: "all then remove", expr: "all,!read", in: []int{1, 2, 59}, out: []int{0}},
		{name: "none then add", expr: "none,openat", in: []int{257}, out: []int{0, 2}},
		{name: "negated sentinels", expr: "!none,!all,write", in: []int{1}, out: []int{0, 59}},
		{name: "sentinel resets earlier items", expr: "read,none", out: []int{0, 1}},
		{name: "empty", expr: "  ", wantErr: ErrEmptyFilter},
		{name: "unknown name", expr: "read,frobnicate", wantErr: ErrUnknownSyscall},
		{name: "unknown class", expr: "%gpu", wantErr: ErrUnknownClass},
		{name: "out of range", expr: "9000", wantErr: ErrUnknownSyscall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseFilter(tbl, tt.expr)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, nr := range tt.in {
				assert.True(t, set.Contains(nr), "%d should match", nr)
			}
			for _, nr := range tt.out {
				assert.False(t, set.Contains(nr), "%d should not match", nr)
			}
		})
	}
}

// evalFilter answers membership straight from the grammar: the last item
// naming nr decides, "all" names every number, "none" is "!all", and a
// leading negation means the default is "in".
func evalFilter(t *Table, expr string, nr int) bool {
	items := strings.Split(strings.TrimSpace(expr), ",")
	in := strings.HasPrefix(strings.TrimSpace(items[0]), "!")
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		negate := strings.HasPrefix(item, "!")
		item = strings.TrimPrefix(item, "!")

		named := false
		switch {
		case item == "all":
			named = true
		case item == "none":
			named, negate = true, !negate
		case strings.HasPrefix(item, "%"):
			d := t.Lookup(nr)
			named = d != nil && d.Class&classNames[item[1:]] != 0
		default:
			if n, err := strconv.Atoi(item); err == nil {
				named = n == nr
			} else {
				n, ok := t.Number(item)
				named = ok && n == nr
			}
		}
		if named {
			in = !negate
		}
	}
	return in
}

func TestParseFilterMatchesGrammar(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	vocab := []string{"read", "write", "open", "openat", "mmap", "brk", "clone", "execve",
		"%file", "%desc", "%network", "%memory", "%process", "%signal", "0", "3", "60", "231", "500",
		"all", "none"}

	for _, archName := range []string{"amd64", "arm64", "386", "arm"} {
		tbl := MustTable(archName)
		for iter := 0; iter < 300; iter++ {
			var items []string
			for n := 1 + r.IntN(5); n > 0; n-- {
				item := vocab[r.IntN(len(vocab))]
				if r.IntN(3) == 0 {
					item = "!" + item
				}
				items = append(items, item)
			}
			expr := strings.Join(items, ",")
			if r.IntN(20) == 0 {
				expr = []string{"all", "none"}[r.IntN(2)]
			}

			set, err := ParseFilter(tbl, expr)
			require.NoError(t, err, expr)
			for nr := 0; nr < Max; nr++ {
				require.Equal(t, evalFilter(tbl, expr, nr), set.Contains(nr), "%s: %s nr=%d", archName, expr, nr)
			}
		}
	}
}

func TestNumberSet(t *testing.T) {
	s := NewNumberSet()
	assert.False(t, s.Contains(5))
	s.Add(5)
	s.Add(300)
	assert.True(t, s.Contains(5))
	assert.True(t, s.Contains(300))
	s.Remove(5)
	assert.False(t, s.Contains(5))
	assert.Equal(t, []int{300}, s.Members(Max))

	inv := AllSet()
	assert.True(t, inv.Contains(1000))
	inv.Remove(1000)
	assert.False(t, inv.Contains(1000))

	clone := inv.Clone()
	inv.Add(1000)
	assert.False(t, clone.Contains(1000))

	bm := s.Bitmap(Max)
	require.Len(t, bm, Max/8)
	assert.Equal(t, byte(1<<(300%8)), bm[300/8])

	var nilSet *NumberSet
	assert.False(t, nilSet.Contains(1))
}
