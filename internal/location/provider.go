package location

import (
	"context"
	"sync"
	"time"
)

// Provider is a named source of location updates (satellite, network-assisted, ...).
// The returned channel is closed once ctx is done or the source has no more fixes.
type Provider interface {
	Name() string
	Updates(ctx context.Context) (<-chan Fix, error)
}

// FeedProvider is a push-based Provider: fixes handed to Push are fanned out to
// every active subscriber. Slow subscribers lose fixes rather than blocking the feed.
type FeedProvider struct {
	name string
	mu   sync.Mutex
	subs map[chan Fix]struct{}
}

func NewFeedProvider(name string) *FeedProvider {
	return &FeedProvider{name: name, subs: make(map[chan Fix]struct{})}
}

func (p *FeedProvider) Name() string { return p.name }

func (p *FeedProvider) Updates(ctx context.Context) (<-chan Fix, error) {
	ch := make(chan Fix, 16)

	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subs, ch)
		close(ch)
		p.mu.Unlock()
	}()

	return ch, nil
}

// Push delivers fix to the current subscribers and returns how many received it.
// Provider and Time are stamped when the caller left them empty.
func (p *FeedProvider) Push(fix Fix) int {
	if fix.Provider == "" {
		fix.Provider = p.name
	}
	if fix.Time.IsZero() {
		fix.Time = time.Now().UTC()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delivered := 0
	for ch := range p.subs {
		select {
		case ch <- fix:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of active subscriptions.
func (p *FeedProvider) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}
