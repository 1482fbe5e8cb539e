package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssherwood/venueservice/internal/config"
	"github.com/ssherwood/venueservice/internal/location"
	"github.com/ssherwood/venueservice/internal/session"
	"github.com/ssherwood/venueservice/internal/workflow"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// Dependencies are the collaborators shared by every hosted workflow.
type Dependencies struct {
	Regions       workflow.RegionLookup
	Geocoder      workflow.ReverseGeocoder
	Creator       workflow.RecordCreator
	Providers     []location.Provider
	Session       *session.Bus
	DefaultRegion *workflow.Region
	Policy        location.UpdatePolicy
	FixWait       time.Duration
	Accuracy      float64
}

// Workflow is one hosted workflow instance and the presenter it reports to.
type Workflow struct {
	Controller *workflow.Controller
	Presenter  *EventPresenter
}

// Registry hosts the running add-venue workflows. Each workflow gets its own
// location tracker; providers and the session bus are shared.
type Registry struct {
	ctx  context.Context
	deps Dependencies

	mu        sync.Mutex
	workflows map[string]*Workflow
	wg        sync.WaitGroup
}

// NewRegistry hosts workflows for the lifetime of ctx.
func NewRegistry(ctx context.Context, deps Dependencies) *Registry {
	if deps.FixWait <= 0 {
		deps.FixWait = config.LocationFixWait
	}
	return &Registry{ctx: ctx, deps: deps, workflows: make(map[string]*Workflow)}
}

// Start launches a new workflow, or a replacement for a detached one when
// retained is set.
func (r *Registry) Start(id string, retained *workflow.FormState, foreground bool) (*Workflow, error) {
	if id == "" {
		id = uuid.NewString()
	}

	tracker := location.NewTracker(r.deps.Policy)
	resolver := workflow.NewResolver(tracker, r.deps.Regions, r.deps.Geocoder, r.deps.FixWait)
	presenter := NewEventPresenter(id)

	opts := workflow.Options{
		ID:                id,
		AccuracyThreshold: r.deps.Accuracy,
		DefaultRegion:     r.deps.DefaultRegion,
		Providers:         r.deps.Providers,
		Retained:          retained,
	}
	if r.deps.Session != nil {
		opts.Session = r.deps.Session
	}

	ctrl := workflow.New(tracker, resolver, r.deps.Creator, presenter, opts)
	if err := ctrl.Start(r.ctx); err != nil {
		return nil, err
	}
	if foreground {
		if err := ctrl.Foreground(); err != nil {
			return nil, err
		}
	}

	h := &Workflow{Controller: ctrl, Presenter: presenter}
	r.mu.Lock()
	r.workflows[id] = h
	r.mu.Unlock()

	r.wg.Add(1)
	go r.forget(id, h)

	slog.Info("Workflow started", slog.String("workflow.id", id), slog.Bool("retained", retained != nil))
	return h, nil
}

// forget drops a workflow from the registry once it is torn down, unless it
// was already replaced.
func (r *Registry) forget(id string, h *Workflow) {
	defer r.wg.Done()
	<-h.Controller.Done()
	h.Controller.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workflows[id] == h {
		delete(r.workflows, id)
	}
}

func (r *Registry) Get(id string) (*Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return h, nil
}

// Recreate replaces a workflow instance the way a host context is recreated:
// the old instance hands its FormState to a new one under the same id. A
// workflow that is submitting or has succeeded is left in place.
func (r *Registry) Recreate(id string) (*Workflow, error) {
	old, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	retained, foreground, err := old.Controller.Detach()
	if err != nil {
		return nil, err
	}
	return r.Start(id, retained, foreground)
}

func (r *Registry) Teardown(id string) error {
	h, err := r.Get(id)
	if err != nil {
		return err
	}
	h.Controller.Teardown()
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workflows)
}

// Shutdown tears every workflow down and waits for their background work,
// bounded by ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	running := make([]*Workflow, 0, len(r.workflows))
	for _, h := range r.workflows {
		running = append(running, h)
	}
	r.mu.Unlock()

	for _, h := range running {
		h.Controller.Teardown()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
