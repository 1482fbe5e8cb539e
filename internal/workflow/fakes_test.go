package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ssherwood/venueservice/internal/location"
)

type recordingPresenter struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPresenter) add(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, fmt.Sprintf(format, args...))
}

func (p *recordingPresenter) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *recordingPresenter) FieldChanged(name, text string) { p.add("field:%s=%s", name, text) }
func (p *recordingPresenter) SubmitEnabled(enabled bool)    { p.add("enabled:%t", enabled) }
func (p *recordingPresenter) Busy(busy bool)                { p.add("busy:%t", busy) }
func (p *recordingPresenter) StateChanged(state State)      { p.add("state:%s", state) }
func (p *recordingPresenter) Notice(err error)              { p.add("notice:%v", err) }
func (p *recordingPresenter) Navigate(recordID string)      { p.add("navigate:%s", recordID) }
func (p *recordingPresenter) ShowFailure(err error)         { p.add("failure:%v", err) }

type fakeTracker struct {
	observed atomic.Int32
	stopped  atomic.Int32
}

func (t *fakeTracker) Observe(context.Context, location.Provider) { t.observed.Add(1) }
func (t *fakeTracker) Stop()                                      { t.stopped.Add(1) }

// gatedResolver returns res/err once release is closed, ignoring cancellation
// to mimic a network call whose result arrives after teardown.
type gatedResolver struct {
	release chan struct{}
	calls   atomic.Int32
	res     Resolution
	err     error
}

func newGatedResolver(res Resolution, err error) *gatedResolver {
	return &gatedResolver{release: make(chan struct{}), res: res, err: err}
}

func (r *gatedResolver) Resolve(context.Context) (Resolution, error) {
	r.calls.Add(1)
	<-r.release
	return r.res, r.err
}

type gatedCreator struct {
	release chan struct{}
	calls   atomic.Int32
	mu      sync.Mutex
	records []Record
	id      string
	err     error
}

func newGatedCreator(id string, err error) *gatedCreator {
	return &gatedCreator{release: make(chan struct{}), id: id, err: err}
}

func (c *gatedCreator) CreateRecord(_ context.Context, record Record) (string, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.records = append(c.records, record)
	c.mu.Unlock()
	<-c.release
	if c.err != nil {
		return "", c.err
	}
	return c.id, nil
}

func (c *gatedCreator) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

type fakeSession struct {
	ch           chan struct{}
	unsubscribed atomic.Bool
}

func (s *fakeSession) Subscribe() (<-chan struct{}, func()) {
	return s.ch, func() { s.unsubscribed.Store(true) }
}

func str(s string) *string { return &s }

func fullAddress() *Address {
	return &Address{
		Street:     str("1 Main St"),
		Locality:   str("Springfield"),
		AdminArea:  str("IL"),
		PostalCode: str("62701"),
		Phone:      str("217-555-0100"),
	}
}

func fixWithAccuracy(accuracy float64) *location.Fix {
	return &location.Fix{Latitude: 39.7817, Longitude: -89.6501, Accuracy: accuracy, Provider: location.ProviderGPS}
}
