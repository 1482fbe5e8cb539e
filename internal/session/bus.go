package session

import "sync"

// Bus broadcasts the payload-less "session invalidated" signal to every
// registered listener. Each listener receives the signal at most once.
type Bus struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan struct{}
	revoked bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan struct{})}
}

// Subscribe registers a listener. The returned channel is closed when the
// session is invalidated; the returned func unregisters and is safe to call twice.
// Subscribing after invalidation yields an already-closed channel.
func (b *Bus) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{})
	if b.revoked {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Invalidate signals every listener and returns how many were notified.
func (b *Bus) Invalidate() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.subs)
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.revoked = true
	return n
}

// Reset re-arms the bus after a new session is established.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked = false
}

func (b *Bus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
