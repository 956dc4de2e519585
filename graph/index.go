package graph

import (
	"cmp"
	"slices"
)

// Index 是构建期一次性生成的只读 ID → 稠密下标映射。
type Index[K cmp.Ordered] struct {
	keys []K
	pos  map[K]int
}

// newIndex 对 keys 去重排序后建立映射。
func newIndex[K cmp.Ordered](keys []K) *Index[K] {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	pos := make(map[K]int, len(sorted))
	for i, k := range sorted {
		pos[k] = i
	}
	return &Index[K]{keys: sorted, pos: pos}
}

// Lookup 返回 key 的下标。
func (ix *Index[K]) Lookup(k K) (int, bool) {
	i, ok := ix.pos[k]
	return i, ok
}

// Key 返回下标 i 对应的 key。
func (ix *Index[K]) Key(i int) K { return ix.keys[i] }

// Len 节点数。
func (ix *Index[K]) Len() int { return len(ix.keys) }

// Keys 返回按下标排列的 key 副本。
func (ix *Index[K]) Keys() []K { return slices.Clone(ix.keys) }
