package syscalls

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyFilter    = errors.New("empty syscall filter")
	ErrUnknownSyscall = errors.New("unknown syscall")
	ErrUnknownClass   = errors.New("unknown syscall class")
)

// sentinels are the filter items that replace the whole set: "all" and
// "!none" select every syscall, "none" and "!all" select nothing.
var sentinels = map[string]bool{"all": true, "none": false}

// ParseFilter builds a NumberSet from a filter expression.
//
// The expression is a comma separated list of syscall names, numbers,
// %class qualifiers and the "all"/"none" sentinels, each optionally
// prefixed with "!" to remove it. Items apply left to right, so
// "all,!read" is everything but read. A list whose first item is negated
// starts from "all".
func ParseFilter(t *Table, expr string) (*NumberSet, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmptyFilter
	}

	set := NewNumberSet()
	for i, raw := range strings.Split(expr, ",") {
		item := strings.TrimSpace(raw)
		negate := strings.HasPrefix(item, "!")
		if negate {
			item = strings.TrimSpace(item[1:])
		}
		if i == 0 && negate {
			set.Reset(true)
		}
		if all, ok := sentinels[item]; ok {
			set.Reset(all != negate)
			continue
		}

		nrs, err := t.Resolve(item)
		if err != nil {
			return nil, err
		}
		for _, nr := range nrs {
			if negate {
				set.Remove(nr)
			} else {
				set.Add(nr)
			}
		}
	}
	return set, nil
}

// Resolve expands one filter item into the numbers it names. Names that
// exist only on other architectures resolve to nothing.
func (t *Table) Resolve(item string) ([]int, error) {
	if item == "" {
		return nil, fmt.Errorf("%w: empty item", ErrUnknownSyscall)
	}

	if cls, ok := strings.CutPrefix(item, "%"); ok {
		c, found := classNames[cls]
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownClass, cls)
		}
		return t.ByClass(c), nil
	}

	if nr, err := strconv.Atoi(item); err == nil {
		if nr < 0 || nr >= Max {
			return nil, fmt.Errorf("%w: %d out of range", ErrUnknownSyscall, nr)
		}
		return []int{nr}, nil
	}

	if nr, ok := t.numbers[item]; ok {
		return []int{nr}, nil
	}
	if Known(item) {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSyscall, item)
}
