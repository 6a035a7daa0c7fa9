package cache

import "sync"

// MapCache is a typed sync.Map. Safe for concurrent readers; callers decide who writes.
type MapCache[K comparable, V any] struct{ m sync.Map }

func NewMapCache[K comparable, V any]() *MapCache[K, V] {
	return &MapCache[K, V]{}
}
func (c *MapCache[K, V]) Set(k K, v V) {
	c.m.Store(k, v)
}
func (c *MapCache[K, V]) Get(k K) (V, bool) {
	v, ok := c.m.Load(k)
	if !ok {
		var z V
		return z, false
	}
	return v.(V), true
}
// CompareAndDelete removes k only while it still maps to old.
func (c *MapCache[K, V]) CompareAndDelete(k K, old V) bool { return c.m.CompareAndDelete(k, old) }

func (c *MapCache[K, V]) Range(f func(k K, v V) bool) {
	c.m.Range(func(k, v any) bool { return f(k.(K), v.(V)) })
}

func (c *MapCache[K, V]) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool { n++; return true })
	return n
}
func (c *MapCache[K, V]) Clear() { c.m.Range(func(k, _ any) bool { c.m.Delete(k); return true }) }
