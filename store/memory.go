package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/saveeat/core"
)

// MemoryStore 是进程内的 KeyValueStore，适合单机 CLI 与测试。
// 过期 key 在读取时惰性剔除，并由后台 ticker 周期清理。
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]entry
	zsets   map[string]map[string]float64
	ticker  *time.Ticker
	done    chan struct{}
	closeMu sync.Once
}

type entry struct {
	value  []byte
	expire time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expire.IsZero() && now.After(e.expire)
}

var _ core.KeyValueStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		data:   make(map[string]entry),
		zsets:  make(map[string]map[string]float64),
		ticker: time.NewTicker(time.Minute),
		done:   make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return nil, core.ErrStoreNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = entry{value: append([]byte(nil), value...), expire: expireAt(ttl)}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.zsets, key)
	return nil
}

func (m *MemoryStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if e, ok := m.data[k]; ok && !e.expired(now) {
			out[k] = append([]byte(nil), e.value...)
		}
	}
	return out, nil
}

func (m *MemoryStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := expireAt(ttl)
	for k, v := range kvs {
		m.data[k] = entry{value: append([]byte(nil), v...), expire: exp}
	}
	return nil
}

func (m *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zset(key)[member] = score
	return nil
}

func (m *MemoryStore) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.zset(key)
	z[member] += delta
	return z[member], nil
}

func (m *MemoryStore) ZRange(ctx context.Context, key string, start, stop int64) ([]core.ScoredMember, error) {
	m.mu.RLock()
	z := m.zsets[key]
	members := make([]core.ScoredMember, 0, len(z))
	for k, v := range z {
		members = append(members, core.ScoredMember{Member: k, Score: v})
	}
	m.mu.RUnlock()

	// 与 Redis ZREVRANGE 一致：分数降序，同分按成员字典序降序
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member > members[j].Member
	})

	n := int64(len(members))
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start < 0 {
		start = 0
	}
	if start > stop {
		return nil, nil
	}
	return members[start : stop+1], nil
}

func (m *MemoryStore) ZScore(ctx context.Context, key string, member string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.zsets[key][member]
	if !ok {
		return 0, core.ErrStoreNotFound
	}
	return v, nil
}

func (m *MemoryStore) Close() error {
	m.closeMu.Do(func() {
		m.ticker.Stop()
		close(m.done)
	})
	return nil
}

func (m *MemoryStore) zset(key string) map[string]float64 {
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.zsets[key] = z
	}
	return z
}

func (m *MemoryStore) sweep() {
	for {
		select {
		case <-m.done:
			return
		case now := <-m.ticker.C:
			m.mu.Lock()
			for k, e := range m.data {
				if e.expired(now) {
					delete(m.data, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

func expireAt(ttl []int) time.Time {
	if len(ttl) > 0 && ttl[0] > 0 {
		return time.Now().Add(time.Duration(ttl[0]) * time.Second)
	}
	return time.Time{}
}
