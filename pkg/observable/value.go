package observable

import "sync"

// Value holds the latest value of T and notifies subscribers on every change.
// Subscribers always see the most recent value; intermediate values may be
// skipped for a slow reader.
type Value[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   map[int]chan T
	nextID int
}

// NewValue creates a Value with the given initial value
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		value: initial,
		subs:  make(map[int]chan T),
	}
}

// Get returns the current value
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set stores a new value and notifies all subscribers
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	v.broadcast(value)
}

// Update applies fn to the current value atomically and returns the result
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = fn(v.value)
	v.broadcast(v.value)
	return v.value
}

// Subscribe returns a channel that receives the current value immediately and
// every later value. The returned function unsubscribes and closes the channel.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, 1)
	ch <- v.value

	id := v.nextID
	v.nextID++
	v.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// broadcast must be called with v.mu held
func (v *Value[T]) broadcast(value T) {
	for _, ch := range v.subs {
		// Drop a stale pending value so the reader gets the latest one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- value:
		default:
		}
	}
}
