package vitals

import "sync"

const DefaultCapacity = 100

// Buffer keeps the most recent samples of a stream, oldest first. Appending to
// a full buffer evicts from the front.
type Buffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
}

func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

func (b *Buffer[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.capacity {
		b.items = b.items[1:]
	}
	b.items = append(b.items, item)
}

func (b *Buffer[T]) AppendAll(items []T) {
	if len(items) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	merged := append(b.items, items...)
	if over := len(merged) - b.capacity; over > 0 {
		trimmed := make([]T, b.capacity, b.capacity)
		copy(trimmed, merged[over:])
		merged = trimmed
	}
	b.items = merged
}

// Latest returns a copy of the buffered samples.
func (b *Buffer[T]) Latest() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, len(b.items))
	copy(result, b.items)
	return result
}

func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

func (b *Buffer[T]) Cap() int {
	return b.capacity
}
