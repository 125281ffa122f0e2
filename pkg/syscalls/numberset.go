package syscalls

import "slices"

// NumberSet is a growable bitset of syscall numbers with an inversion
// flag. A number is a member when its bit differs from the flag, so an
// empty inverted set matches everything.
type NumberSet struct {
	bits     []uint64
	inverted bool
}

func NewNumberSet() *NumberSet {
	return &NumberSet{}
}

// AllSet returns a set matching every number.
func AllSet() *NumberSet {
	return &NumberSet{inverted: true}
}

func (s *NumberSet) bit(nr int) bool {
	w := nr / 64
	if w >= len(s.bits) {
		return false
	}
	return s.bits[w]&(1<<(nr%64)) != 0
}

func (s *NumberSet) setBit(nr int, v bool) {
	w := nr / 64
	if w >= len(s.bits) {
		if !v {
			return
		}
		s.bits = append(s.bits, make([]uint64, w+1-len(s.bits))...)
	}
	if v {
		s.bits[w] |= 1 << (nr % 64)
	} else {
		s.bits[w] &^= 1 << (nr % 64)
	}
}

// Contains reports membership of nr.
func (s *NumberSet) Contains(nr int) bool {
	if s == nil || nr < 0 {
		return false
	}
	return s.bit(nr) != s.inverted
}

// Add makes nr a member.
func (s *NumberSet) Add(nr int) {
	if nr < 0 {
		return
	}
	s.setBit(nr, !s.inverted)
}

// Remove makes nr a non-member.
func (s *NumberSet) Remove(nr int) {
	if nr < 0 {
		return
	}
	s.setBit(nr, s.inverted)
}

// Reset clears every bit and sets the inversion flag.
func (s *NumberSet) Reset(inverted bool) {
	s.bits = s.bits[:0]
	s.inverted = inverted
}

func (s *NumberSet) Inverted() bool {
	return s.inverted
}

func (s *NumberSet) Clone() *NumberSet {
	return &NumberSet{bits: slices.Clone(s.bits), inverted: s.inverted}
}

// Members lists member numbers below limit.
func (s *NumberSet) Members(limit int) []int {
	var out []int
	for nr := range limit {
		if s.Contains(nr) {
			out = append(out, nr)
		}
	}
	return out
}

// Bitmap returns the resolved membership of numbers below limit, one bit
// per number, least significant bit first.
func (s *NumberSet) Bitmap(limit int) []byte {
	out := make([]byte, (limit+7)/8)
	for nr := range limit {
		if s.Contains(nr) {
			out[nr/8] |= 1 << (nr % 8)
		}
	}
	return out
}
