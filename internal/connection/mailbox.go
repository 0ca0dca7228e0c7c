package connection

import "sync"

// mailbox is an unbounded FIFO feeding the manager's event goroutine.
// post never blocks, so transport goroutines, timers and listeners running
// on the event goroutine itself can all enqueue safely.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{} // capacity 1, signalled when items become non-empty
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{notify: make(chan struct{}, 1)}
}

// post appends item and wakes the consumer.
func (m *mailbox[T]) post(item T) {
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// drain removes and returns everything queued, oldest first.
func (m *mailbox[T]) drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items
	m.items = nil
	return items
}
