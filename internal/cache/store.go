package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// entry 将缓存值与写入时间绑定，过期判定在读取时进行。
type entry[V any] struct {
	value    V
	cachedAt time.Time
}

// Store 是带 TTL 的并发安全键值缓存。条目只在读取时惰性过期：
// Get 发现 now-cachedAt >= TTL 即删除并按未命中处理，不存在后台清扫。
// 写入无条件覆盖，同一个 key 始终只保留最后一次写入的值。
type Store[K comparable, V any] struct {
	ttl     time.Duration
	entries *xsync.Map[K, entry[V]]

	// now 可在测试中替换，以便模拟时间流逝。
	now func() time.Time
}

// NewStore 创建一个 TTL 固定的缓存实例。
func NewStore[K comparable, V any](ttl time.Duration) *Store[K, V] {
	return &Store[K, V]{
		ttl:     ttl,
		entries: xsync.NewMap[K, entry[V]](),
		now:     time.Now,
	}
}

// Get 返回未过期的缓存值；过期条目被删除并按未命中处理。
func (s *Store[K, V]) Get(key K) (V, bool) {
	var zero V
	e, ok := s.entries.Load(key)
	if !ok {
		return zero, false
	}
	if s.now().Sub(e.cachedAt) >= s.ttl {
		s.entries.Delete(key)
		return zero, false
	}
	return e.value, true
}

// Remaining 返回条目剩余有效期，供日志展示；条目缺失或已过期返回 false。
func (s *Store[K, V]) Remaining(key K) (time.Duration, bool) {
	e, ok := s.entries.Load(key)
	if !ok {
		return 0, false
	}
	left := s.ttl - s.now().Sub(e.cachedAt)
	if left <= 0 {
		return 0, false
	}
	return left, true
}

// Put 写入或覆盖缓存值，时间戳取当前时刻。
func (s *Store[K, V]) Put(key K, value V) {
	s.entries.Store(key, entry[V]{value: value, cachedAt: s.now()})
}

// Delete 删除指定条目，不存在时为空操作。
func (s *Store[K, V]) Delete(key K) {
	s.entries.Delete(key)
}

// Clear 清空全部条目，登录、登出与管理端清缓存都会调用。
func (s *Store[K, V]) Clear() {
	s.entries.Clear()
}

// Len 返回当前条目数（含尚未被惰性删除的过期条目），供状态接口展示。
func (s *Store[K, V]) Len() int {
	return s.entries.Size()
}

// SetClock 替换时间源，仅测试使用。
func (s *Store[K, V]) SetClock(now func() time.Time) {
	s.now = now
}
