package location

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ssherwood/venueservice/internal/config"
)

// UpdatePolicy limits how often a single provider may move the retained fix.
type UpdatePolicy struct {
	MinTime     time.Duration
	MinDistance float64 // meters
}

// Tracker subscribes to providers and retains the single best fix seen so far.
type Tracker struct {
	policy UpdatePolicy

	mu      sync.Mutex
	current *Fix
	last    map[string]Fix // last fix accepted per provider, for throttling
	changed chan struct{}  // closed and replaced whenever current improves
	subs    map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewTracker(policy UpdatePolicy) *Tracker {
	return &Tracker{
		policy:  policy,
		last:    make(map[string]Fix),
		changed: make(chan struct{}),
		subs:    make(map[string]context.CancelFunc),
	}
}

// Observe starts receiving fixes from p until Stop is called or ctx is done.
// An unavailable provider is logged and skipped; other providers keep working.
func (t *Tracker) Observe(ctx context.Context, p Provider) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subs[p.Name()]; ok {
		return
	}

	subCtx, cancel := context.WithCancel(ctx)
	updates, err := p.Updates(subCtx)
	if err != nil {
		cancel()
		slog.Warn("Location provider unavailable", slog.String("provider", p.Name()), config.ErrAttr(err))
		return
	}

	t.subs[p.Name()] = cancel
	t.wg.Add(1)
	go t.consume(subCtx, p.Name(), updates)
}

func (t *Tracker) consume(ctx context.Context, provider string, updates <-chan Fix) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-updates:
			if !ok {
				slog.Debug("Location provider closed", slog.String("provider", provider))
				t.mu.Lock()
				delete(t.subs, provider)
				t.mu.Unlock()
				return
			}
			if fix.Provider == "" {
				fix.Provider = provider
			}
			t.Offer(fix)
		}
	}
}

// Stop unsubscribes from every provider and waits for their goroutines to exit.
// The retained fix survives so a later Observe continues from it.
func (t *Tracker) Stop() {
	t.mu.Lock()
	for name, cancel := range t.subs {
		cancel()
		delete(t.subs, name)
	}
	t.mu.Unlock()

	t.wg.Wait()
}

// Observing lists the providers with an active subscription.
func (t *Tracker) Observing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.subs))
	for name := range t.subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Offer applies the update policy and the selection rule to fix and reports
// whether it became the current fix.
func (t *Tracker) Offer(fix Fix) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.last[fix.Provider]; ok && t.throttled(prev, fix) {
		return false
	}
	t.last[fix.Provider] = fix

	if !fix.Supersedes(t.current) {
		return false
	}

	accepted := fix
	t.current = &accepted
	close(t.changed)
	t.changed = make(chan struct{})
	return true
}

// throttled reports whether fix arrived too soon or too close after prev. A
// timestamp that goes backwards is never throttled by time.
func (t *Tracker) throttled(prev, fix Fix) bool {
	if elapsed := fix.Time.Sub(prev.Time); t.policy.MinTime > 0 && elapsed >= 0 && elapsed < t.policy.MinTime {
		return true
	}
	return t.policy.MinDistance > 0 && prev.DistanceTo(fix) < t.policy.MinDistance
}

func (t *Tracker) CurrentFix() (Fix, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return Fix{}, false
	}
	return *t.current, true
}

// WaitForFix returns the current fix, blocking until one arrives or ctx is done.
func (t *Tracker) WaitForFix(ctx context.Context) (Fix, error) {
	for {
		t.mu.Lock()
		current, changed := t.current, t.changed
		t.mu.Unlock()

		if current != nil {
			return *current, nil
		}

		select {
		case <-ctx.Done():
			return Fix{}, ctx.Err()
		case <-changed:
		}
	}
}
