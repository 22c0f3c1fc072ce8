package mirror

import (
	gosync "sync"

	"github.com/yuki-matsu783/electron-bolt/vfs"
)

// Change notifies UI subscribers that one mirror entry changed.
type Change struct {
	Kind vfs.EventKind `json:"kind"`
	Path string        `json:"path"`
}

// Bus broadcasts mirror changes to all subscribers. Delivery is best-effort;
// slow subscribers are skipped rather than blocking the write path.
type Bus struct {
	mu      gosync.RWMutex
	clients map[chan Change]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{clients: make(map[chan Change]struct{})}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe() chan Change {
	ch := make(chan Change, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Change) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// Publish sends a change to all subscribers without blocking.
func (b *Bus) Publish(change Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- change:
		default:
			// slow subscriber, drop
		}
	}
}
