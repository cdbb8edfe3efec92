package sample

import (
	"fmt"
	"sync"
)

// DefaultCapacity 默认保留的采样数（100Hz 下约 30 秒）
const DefaultCapacity = 3000

// Buffer 按数量淘汰的滑动窗口。
//
// 底层是固定容量的环形数组：Append 为 O(1)，满时覆盖最旧的一条。
// 写入与快照由同一把 RWMutex 保护，快照不会观察到淘汰到一半的状态。
type Buffer struct {
	mu   sync.RWMutex
	ring []Sample
	head int // 最旧元素的下标
	size int
}

// NewBuffer 创建容量为 capacity 的缓冲区
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer capacity must be positive, got %d", capacity)
	}
	return &Buffer{ring: make([]Sample, capacity)}, nil
}

// Append 追加到尾部，超过容量时从头部淘汰
func (b *Buffer) Append(s Sample) {
	s = s.clone()

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.head+b.size)%capacity] = s
		b.size++
		return
	}
	b.ring[b.head] = s
	b.head = (b.head + 1) % capacity
}

// Snapshot 返回当前内容的时间点副本（最旧 → 最新）。
//
// 返回的切片由调用方独占；缓冲区内的 Values 在追加后不再被修改，
// 因此后续 Append 不会影响已返回的快照。
func (b *Buffer) Snapshot() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Sample, b.size)
	capacity := len(b.ring)
	for i := 0; i < b.size; i++ {
		out[i] = b.ring[(b.head+i)%capacity]
	}
	return out
}

// Len 返回当前保留的采样数
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap 返回容量
func (b *Buffer) Cap() int {
	return len(b.ring)
}
