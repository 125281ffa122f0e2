// Package synq holds small concurrency primitives shared by the tracer and
// its observers.
package synq

import (
	"cmp"
	"maps"
	"slices"
	"sync"
)

// Map is a map safe for concurrent use. The tracer goroutine is its only
// writer; status and control goroutines read it.
type Map[K cmp.Ordered, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewMap[K cmp.Ordered, V any]() *Map[K, V] {
	return &Map[K, V]{
		m: make(map[K]V),
	}
}

func (cm *Map[K, V]) Load(key K) (value V, ok bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	value, ok = cm.m[key]
	return
}

func (cm *Map[K, V]) Store(key K, value V) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.m[key] = value
}

// LoadOrInsert returns the existing value for key, or stores and returns
// value when there is none.
func (cm *Map[K, V]) LoadOrInsert(key K, value V) (actual V, loaded bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if v, ok := cm.m[key]; ok {
		return v, true
	}
	cm.m[key] = value
	return value, false
}

func (cm *Map[K, V]) Delete(key K) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.m, key)
}

func (cm *Map[K, V]) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.m)
}

// Copy returns a shallow copy of the contents.
func (cm *Map[K, V]) Copy() map[K]V {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return maps.Clone(cm.m)
}

// Keys returns the keys in ascending order.
func (cm *Map[K, V]) Keys() []K {
	cm.mu.RLock()
	keys := slices.Collect(maps.Keys(cm.m))
	cm.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Iter calls f for each key present when Iter was called, in ascending key
// order, until f returns false. Keys deleted meanwhile are skipped. f may
// modify the map.
func (cm *Map[K, V]) Iter(f func(key K, value V) bool) {
	for _, k := range cm.Keys() {
		cm.mu.RLock()
		v, ok := cm.m[k]
		cm.mu.RUnlock()
		if !ok {
			continue
		}
		if !f(k, v) {
			break
		}
	}
}
