package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ssherwood/venueservice/internal/config"
	"github.com/ssherwood/venueservice/internal/location"
	"github.com/ssherwood/venueservice/internal/session"
	"github.com/ssherwood/venueservice/internal/workflow"
)

type Handler struct {
	registry  *Registry
	providers map[string]*location.FeedProvider
	session   *session.Bus
}

func NewHandler(r *mux.Router, registry *Registry, providers []*location.FeedProvider, bus *session.Bus) *Handler {
	handler := &Handler{
		registry:  registry,
		providers: make(map[string]*location.FeedProvider, len(providers)),
		session:   bus,
	}
	for _, p := range providers {
		handler.providers[p.Name()] = p
	}

	r.HandleFunc("/workflows", handler.StartWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}", handler.GetWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}", handler.TeardownWorkflow).Methods(http.MethodDelete)
	r.HandleFunc("/workflows/{id}/foreground", handler.Foreground).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/background", handler.Background).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/fields/{name}", handler.EditField).Methods(http.MethodPut)
	r.HandleFunc("/workflows/{id}/submit", handler.Submit).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/recreate", handler.Recreate).Methods(http.MethodPost)
	r.HandleFunc("/fixes/{provider}", handler.PushFix).Methods(http.MethodPost)
	r.HandleFunc("/sessions", handler.NewSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/invalidate", handler.InvalidateSession).Methods(http.MethodPost)
	return handler
}

type workflowResponse struct {
	workflow.View
	Destination string  `json:"destination,omitempty"`
	Events      []Event `json:"events"`
}

type startRequest struct {
	Background bool `json:"background"`
}

type fieldRequest struct {
	Text string `json:"text"`
}

type fixRequest struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Accuracy  float64    `json:"accuracy"`
	Time      *time.Time `json:"time,omitempty"`
}

func (h *Handler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	wf, err := h.registry.Start("", nil, !req.Background)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, wf)
}

func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, wf)
}

func (h *Handler) TeardownWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Teardown(mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Foreground(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, http.StatusOK, func(c *workflow.Controller) error { return c.Foreground() })
}

func (h *Handler) Background(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, http.StatusOK, func(c *workflow.Controller) error { return c.Background() })
}

func (h *Handler) EditField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := mux.Vars(r)["name"]
	h.apply(w, r, http.StatusOK, func(c *workflow.Controller) error { return c.Edit(name, req.Text) })
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, http.StatusAccepted, func(c *workflow.Controller) error { return c.Submit() })
}

func (h *Handler) Recreate(w http.ResponseWriter, r *http.Request) {
	wf, err := h.registry.Recreate(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, wf)
}

func (h *Handler) PushFix(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[mux.Vars(r)["provider"]]
	if !ok {
		http.Error(w, "Unknown location provider", http.StatusNotFound)
		return
	}

	var req fixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		http.Error(w, "Coordinate out of range", http.StatusBadRequest)
		return
	}

	fix := location.Fix{Latitude: req.Latitude, Longitude: req.Longitude, Accuracy: req.Accuracy}
	if req.Time != nil {
		fix.Time = *req.Time
	}
	delivered := provider.Push(fix)

	writeJSON(w, http.StatusAccepted, map[string]int{"delivered": delivered})
}

func (h *Handler) NewSession(w http.ResponseWriter, _ *http.Request) {
	h.session.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) InvalidateSession(w http.ResponseWriter, _ *http.Request) {
	n := h.session.Invalidate()
	slog.Info("Session invalidated", slog.Int("workflows", n))
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*Workflow, bool) {
	id := mux.Vars(r)["id"]
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("workflow.id", id))

	wf, err := h.registry.Get(id)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return wf, true
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, status int, fn func(*workflow.Controller) error) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := fn(wf.Controller); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, status, wf)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, wf *Workflow) {
	view, err := wf.Controller.Snapshot()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, workflowResponse{
		View:        view,
		Destination: wf.Presenter.Destination(),
		Events:      wf.Presenter.Events(),
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Workflow request failed", slog.String("path", r.URL.Path), config.ErrAttr(err))
	}

	currentSpan := trace.SpanFromContext(r.Context())
	currentSpan.RecordError(err)
	currentSpan.SetStatus(codes.Error, err.Error())

	http.Error(w, err.Error(), status)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrWorkflowNotFound), errors.Is(err, workflow.ErrUnknownField):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrTornDown):
		return http.StatusGone
	case errors.Is(err, workflow.ErrWrongState):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrNotReady):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
