package synq

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStoreLoadDelete(t *testing.T) {
	m := NewMap[int, string]()
	m.Store(100, "app")
	v, ok := m.Load(100)
	require.True(t, ok)
	assert.Equal(t, "app", v)
	assert.Equal(t, 1, m.Len())

	m.Delete(100)
	_, ok = m.Load(100)
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestMapLoadOrInsert(t *testing.T) {
	m := NewMap[int, string]()
	v, loaded := m.LoadOrInsert(7, "first")
	assert.False(t, loaded)
	assert.Equal(t, "first", v)

	v, loaded = m.LoadOrInsert(7, "second")
	assert.True(t, loaded)
	assert.Equal(t, "first", v)
}

func TestMapKeysSorted(t *testing.T) {
	m := NewMap[int, bool]()
	for _, pid := range []int{300, 100, 200} {
		m.Store(pid, true)
	}
	assert.Equal(t, []int{100, 200, 300}, m.Keys())
}

func TestMapIter(t *testing.T) {
	m := NewMap[int, int]()
	for i := 1; i <= 5; i++ {
		m.Store(i, i*10)
	}

	t.Run("ordered", func(t *testing.T) {
		var seen []int
		m.Iter(func(k, v int) bool {
			assert.Equal(t, k*10, v)
			seen = append(seen, k)
			return true
		})
		assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	})

	t.Run("early stop", func(t *testing.T) {
		var n int
		m.Iter(func(k, v int) bool {
			n++
			return k < 2
		})
		assert.Equal(t, 2, n)
	})

	t.Run("delete during iteration", func(t *testing.T) {
		var seen []int
		m.Iter(func(k, v int) bool {
			seen = append(seen, k)
			m.Delete(k + 1)
			return true
		})
		assert.Equal(t, []int{1, 3, 5}, seen)
	})
}

func TestMapCopyIsDetached(t *testing.T) {
	m := NewMap[string, int]()
	m.Store("a", 1)
	c := m.Copy()
	c["b"] = 2
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, c)
}

func TestMapConcurrency(t *testing.T) {
	m := NewMap[int, int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Store(i, i*2)
		}()
		go func() {
			defer wg.Done()
			if v, ok := m.Load(i); ok {
				assert.Equal(t, i*2, v)
			}
			m.Iter(func(int, int) bool { return true })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}
