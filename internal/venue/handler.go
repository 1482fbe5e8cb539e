package venue

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/yugabyte/pgx/v5"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ssherwood/venueservice/internal/workflow"
)

type Handler struct {
	service *Service
}

func NewHandler(r *mux.Router, service *Service) *Handler {
	handler := &Handler{service: service}
	r.HandleFunc("/venues", handler.CreateVenue).Methods(http.MethodPost)
	r.HandleFunc("/venues/{id}", handler.GetVenue).Methods(http.MethodGet)
	return handler
}

func (h *Handler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	currentSpan := trace.SpanFromContext(r.Context())

	var record workflow.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateRecord(r.Context(), record)
	if err != nil {
		if errors.Is(err, ErrInvalidVenue) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		currentSpan.RecordError(err)
		currentSpan.SetStatus(codes.Error, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", "/venues/"+id)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (h *Handler) GetVenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	currentSpan := trace.SpanFromContext(ctx)
	currentSpan.AddEvent("GetVenue")

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid venue ID", http.StatusBadRequest)
		currentSpan.RecordError(err)
		currentSpan.SetStatus(codes.Error, err.Error())
		return
	}

	venue, err := h.service.GetVenueByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "Venue not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		currentSpan.RecordError(err)
		currentSpan.SetStatus(codes.Error, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(venue)
}
