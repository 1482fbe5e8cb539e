package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ssherwood/venueservice/internal/config"
	"github.com/ssherwood/venueservice/internal/location"
)

type State int

const (
	Initializing State = iota
	Resolving
	Ready
	Submitting
	Succeeded
	Failed
	TornDown
)

var stateNames = [...]string{"initializing", "resolving", "ready", "submitting", "succeeded", "failed", "torn_down"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown workflow state %q", text)
}

// Presenter is the UI side of a workflow. Every method is invoked from the
// controller's loop goroutine and must not call back into the Controller.
type Presenter interface {
	FieldChanged(name, text string)
	SubmitEnabled(enabled bool)
	Busy(busy bool)
	StateChanged(state State)
	Notice(err error)
	Navigate(recordID string)
	ShowFailure(err error)
}

// SessionSignal delivers a single "session invalidated" notification by
// closing the subscribed channel.
type SessionSignal interface {
	Subscribe() (<-chan struct{}, func())
}

type AddressResolver interface {
	Resolve(ctx context.Context) (Resolution, error)
}

// Tracker is the part of location.Tracker the controller drives.
type Tracker interface {
	Observe(ctx context.Context, p location.Provider)
	Stop()
}

type Options struct {
	ID                string
	Fields            []string
	Required          []string
	AccuracyThreshold float64
	DefaultRegion     *Region
	Providers         []location.Provider
	Session           SessionSignal

	// Retained is a FormState handed over from a previous instance. When set,
	// the workflow starts Ready and skips resolution.
	Retained *FormState
}

// View is a point-in-time copy of what the workflow shows.
type View struct {
	ID            string            `json:"id"`
	State         State             `json:"state"`
	Fields        map[string]string `json:"fields"`
	SubmitEnabled bool              `json:"submitEnabled"`
	Busy          bool              `json:"busy"`
	Foreground    bool              `json:"foreground"`
	Fix           *location.Fix     `json:"fix,omitempty"`
	Region        *Region           `json:"region,omitempty"`
	Address       *Address          `json:"address,omitempty"`
	Notice        string            `json:"notice,omitempty"`
	Failure       string            `json:"failure,omitempty"`
	RecordID      string            `json:"recordId,omitempty"`
}

// Controller runs one add-venue workflow. A single loop goroutine owns the
// FormState and every state transition; resolution and submission run on their
// own goroutines and hand their results back to the loop.
type Controller struct {
	opts      Options
	tracker   Tracker
	resolver  AddressResolver
	submitter *Submitter
	presenter Presenter

	started atomic.Bool
	events  chan func()
	done    chan struct{}
	wg      sync.WaitGroup

	ctx         context.Context
	cancel      context.CancelFunc
	sessionCh   <-chan struct{}
	unsubscribe func()

	// owned by the loop goroutine
	state         State
	form          *FormState
	foreground    bool
	busyCount     int
	submitEnabled bool
	notice        error
	failure       error
	recordID      string
	reason        error
}

func New(tracker Tracker, resolver AddressResolver, creator RecordCreator, presenter Presenter, opts Options) *Controller {
	if len(opts.Fields) == 0 {
		opts.Fields = DefaultFields
	}
	if opts.Required == nil {
		opts.Required = RequiredFields
	}
	if opts.AccuracyThreshold <= 0 {
		opts.AccuracyThreshold = config.AddressAccuracyMeters
	}
	if presenter == nil {
		presenter = NopPresenter{}
	}

	c := &Controller{
		opts:      opts,
		tracker:   tracker,
		resolver:  resolver,
		presenter: presenter,
		events:    make(chan func()),
		done:      make(chan struct{}),
		state:     Initializing,
	}
	c.submitter = NewSubmitter(creator, func(busy bool) {
		c.post(func() { c.adjustBusy(busy) })
	})
	return c
}

// Start launches the workflow. It resolves the address in the background, or
// goes straight to Ready when a retained FormState was supplied.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	if c.opts.Session != nil {
		c.sessionCh, c.unsubscribe = c.opts.Session.Subscribe()
	}

	go c.loop()
	return c.call(c.begin)
}

// Foreground subscribes the tracker to the configured providers.
func (c *Controller) Foreground() error {
	return c.call(func() {
		if c.foreground {
			return
		}
		for _, p := range c.opts.Providers {
			c.tracker.Observe(c.ctx, p)
		}
		c.foreground = true
	})
}

// Background releases the location subscriptions.
func (c *Controller) Background() error {
	return c.call(func() {
		if !c.foreground {
			return
		}
		c.tracker.Stop()
		c.foreground = false
	})
}

// Edit applies user-entered text to a field.
func (c *Controller) Edit(name, text string) error {
	var err error
	if callErr := c.call(func() { err = c.edit(name, text) }); callErr != nil {
		return callErr
	}
	return err
}

// Submit starts the submission when the form is Ready and valid. Submitting
// again while a submission is outstanding is a no-op.
func (c *Controller) Submit() error {
	var err error
	if callErr := c.call(func() { err = c.submit() }); callErr != nil {
		return callErr
	}
	return err
}

func (c *Controller) Snapshot() (View, error) {
	var view View
	err := c.call(func() { view = c.view() })
	return view, err
}

// Detach tears the workflow down and hands its FormState to the caller, which
// passes it to the replacement instance through Options.Retained. The returned
// flag reports whether the workflow was in the foreground. A workflow that is
// submitting or has succeeded cannot be detached.
func (c *Controller) Detach() (*FormState, bool, error) {
	var (
		retained   *FormState
		foreground bool
		err        error
	)
	callErr := c.call(func() {
		switch c.state {
		case Submitting, Succeeded:
			err = fmt.Errorf("%w: cannot detach while %s", ErrWrongState, c.state)
			return
		}
		retained, foreground = c.form, c.foreground
		c.teardown(nil)
	})
	if callErr != nil {
		return nil, false, callErr
	}
	if err != nil {
		return nil, false, err
	}
	return retained, foreground, nil
}

// Teardown irreversibly stops the workflow and discards its state.
func (c *Controller) Teardown() {
	_ = c.call(func() { c.teardown(nil) })
}

// Done is closed once the workflow is torn down.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns why the workflow was torn down; nil for a plain teardown. Only
// meaningful after Done is closed.
func (c *Controller) Err() error {
	select {
	case <-c.done:
		return c.reason
	default:
		return nil
	}
}

// Wait blocks until background resolution and submission goroutines exit.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) loop() {
	defer close(c.done)

	for c.state != TornDown {
		select {
		case fn := <-c.events:
			fn()
		case <-c.sessionCh:
			slog.Info("Session invalidated, discarding workflow", slog.String("workflow.id", c.opts.ID))
			c.teardown(ErrSessionInvalidated)
		case <-c.ctx.Done():
			c.teardown(context.Cause(c.ctx))
		}
	}
}

// call runs fn on the loop goroutine and waits for it.
func (c *Controller) call(fn func()) error {
	if !c.started.Load() {
		return fmt.Errorf("%w: not started", ErrWrongState)
	}

	reply := make(chan struct{})
	select {
	case c.events <- func() { fn(); close(reply) }:
	case <-c.done:
		return ErrTornDown
	}
	<-reply
	return nil
}

// post queues fn for the loop; it is dropped once the workflow is torn down.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

func (c *Controller) begin() {
	if retained := c.opts.Retained; retained != nil {
		c.opts.Retained = nil
		c.form = retained
		c.render()
		c.transition(Ready)
		c.refreshSubmitEnabled()
		return
	}

	c.form = NewFormState(c.opts.Fields)
	c.transition(Resolving)
	c.adjustBusy(true)

	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.resolver.Resolve(ctx)
		c.post(func() { c.resolved(res, err) })
	}()
}

func (c *Controller) resolved(res Resolution, err error) {
	if c.state != Resolving || c.ctx.Err() != nil {
		return
	}
	c.adjustBusy(false)

	for _, name := range c.form.ApplyResolution(res, c.opts.AccuracyThreshold) {
		c.presenter.FieldChanged(name, c.form.Fields[name])
	}
	if err != nil {
		slog.Warn("Address resolution failed, continuing with manual entry",
			slog.String("workflow.id", c.opts.ID), config.ErrAttr(err))
		c.notice = err
		c.presenter.Notice(err)
	}

	c.transition(Ready)
	c.refreshSubmitEnabled()
}

func (c *Controller) edit(name, text string) error {
	if c.state == Succeeded {
		return fmt.Errorf("%w: %s", ErrWrongState, c.state)
	}
	if err := c.form.Edit(name, text); err != nil {
		return err
	}
	c.refreshSubmitEnabled()
	return nil
}

func (c *Controller) submit() error {
	switch c.state {
	case Submitting:
		return nil
	case Ready:
	default:
		return fmt.Errorf("%w: %s", ErrWrongState, c.state)
	}
	if !IsReady(c.form.Fields, c.opts.Required) {
		return ErrNotReady
	}

	record := c.form.Record(c.opts.DefaultRegion)
	c.failure = nil
	c.transition(Submitting)
	c.refreshSubmitEnabled()

	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		id, err := c.submitter.Submit(ctx, record)
		c.post(func() { c.submitted(id, err) })
	}()
	return nil
}

func (c *Controller) submitted(id string, err error) {
	if c.state != Submitting || c.ctx.Err() != nil || errors.Is(err, ErrAlreadyInFlight) {
		return
	}

	if err != nil {
		slog.Warn("Venue submission failed", slog.String("workflow.id", c.opts.ID), config.ErrAttr(err))
		c.failure = err
		c.transition(Failed)
		c.presenter.ShowFailure(err)
		c.transition(Ready)
		c.refreshSubmitEnabled()
		return
	}

	c.recordID = id
	c.transition(Succeeded)
	c.presenter.Navigate(id)
}

func (c *Controller) teardown(reason error) {
	if c.state == TornDown {
		return
	}

	c.cancel()
	c.tracker.Stop()
	c.foreground = false
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.form = nil
	c.reason = reason

	c.transition(TornDown)
	if reason != nil {
		slog.Info("Workflow torn down", slog.String("workflow.id", c.opts.ID), config.ErrAttr(reason))
	} else {
		slog.Info("Workflow torn down", slog.String("workflow.id", c.opts.ID))
	}
}

func (c *Controller) transition(next State) {
	if c.state == next {
		return
	}
	slog.Debug("Workflow state changed", slog.String("workflow.id", c.opts.ID),
		slog.String("from", c.state.String()), slog.String("to", next.String()))
	c.state = next
	c.presenter.StateChanged(next)
}

func (c *Controller) refreshSubmitEnabled() {
	enabled := c.state == Ready && IsReady(c.form.Fields, c.opts.Required)
	if enabled != c.submitEnabled {
		c.submitEnabled = enabled
		c.presenter.SubmitEnabled(enabled)
	}
}

func (c *Controller) adjustBusy(busy bool) {
	was := c.busyCount > 0
	if busy {
		c.busyCount++
	} else if c.busyCount > 0 {
		c.busyCount--
	}
	if now := c.busyCount > 0; now != was {
		c.presenter.Busy(now)
	}
}

func (c *Controller) render() {
	names := make([]string, 0, len(c.form.Fields))
	for name := range c.form.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.presenter.FieldChanged(name, c.form.Fields[name])
	}
}

func (c *Controller) view() View {
	view := View{
		ID:            c.opts.ID,
		State:         c.state,
		SubmitEnabled: c.submitEnabled,
		Busy:          c.busyCount > 0,
		Foreground:    c.foreground,
		RecordID:      c.recordID,
	}
	if c.form != nil {
		snapshot := c.form.Clone()
		view.Fields = snapshot.Fields
		view.Fix = snapshot.Fix
		view.Region = snapshot.Region
		view.Address = snapshot.Address
	}
	if c.notice != nil {
		view.Notice = c.notice.Error()
	}
	if c.failure != nil {
		view.Failure = c.failure.Error()
	}
	return view
}

// NopPresenter ignores every update.
type NopPresenter struct{}

func (NopPresenter) FieldChanged(string, string) {}
func (NopPresenter) SubmitEnabled(bool)          {}
func (NopPresenter) Busy(bool)                   {}
func (NopPresenter) StateChanged(State)          {}
func (NopPresenter) Notice(error)                {}
func (NopPresenter) Navigate(string)             {}
func (NopPresenter) ShowFailure(error)           {}
