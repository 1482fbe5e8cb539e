package api

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ssherwood/venueservice/internal/workflow"
)

const maxEvents = 50

// Event is one UI update a workflow pushed to its presenter.
type Event struct {
	Time  time.Time `json:"time"`
	Kind  string    `json:"kind"`
	Field string    `json:"field,omitempty"`
	Value any       `json:"value,omitempty"`
}

// EventPresenter keeps the most recent UI updates of a workflow so HTTP
// clients can replay what a screen would have shown.
type EventPresenter struct {
	workflowID string

	mu       sync.Mutex
	events   []Event
	navigate string
}

func NewEventPresenter(workflowID string) *EventPresenter {
	return &EventPresenter{workflowID: workflowID}
}

func (p *EventPresenter) record(kind, field string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, Event{Time: time.Now().UTC(), Kind: kind, Field: field, Value: value})
	if len(p.events) > maxEvents {
		p.events = append([]Event(nil), p.events[len(p.events)-maxEvents:]...)
	}
}

func (p *EventPresenter) FieldChanged(name, text string) { p.record("field", name, text) }
func (p *EventPresenter) SubmitEnabled(enabled bool)    { p.record("submitEnabled", "", enabled) }
func (p *EventPresenter) Busy(busy bool)                { p.record("busy", "", busy) }
func (p *EventPresenter) StateChanged(state workflow.State) {
	p.record("state", "", state.String())
}

func (p *EventPresenter) Notice(err error) {
	p.record("notice", "", err.Error())
}

func (p *EventPresenter) Navigate(recordID string) {
	slog.Info("Venue added", slog.String("workflow.id", p.workflowID), slog.String("venue.id", recordID))
	p.mu.Lock()
	p.navigate = "/venues/" + recordID
	p.mu.Unlock()
	p.record("navigate", "", recordID)
}

func (p *EventPresenter) ShowFailure(err error) {
	p.record("failure", "", err.Error())
}

// Events returns the retained updates, oldest first.
func (p *EventPresenter) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Destination is where the client should go after a successful submission.
func (p *EventPresenter) Destination() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navigate
}
