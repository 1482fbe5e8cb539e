package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/ssherwood/venueservice/internal/location"
	"github.com/ssherwood/venueservice/internal/session"
	"github.com/ssherwood/venueservice/internal/workflow"
)

type stubRegions struct{}

func (stubRegions) LookupRegion(context.Context, float64, float64) (*workflow.Region, error) {
	return &workflow.Region{ID: "c-1", Name: "Springfield"}, nil
}

type stubGeocoder struct{}

func (stubGeocoder) ReverseGeocode(context.Context, float64, float64) (*workflow.Address, error) {
	return &workflow.Address{
		Street:     workflow.Text("1 Main St"),
		Locality:   workflow.Text("Springfield"),
		AdminArea:  workflow.Text("IL"),
		PostalCode: workflow.Text("62701"),
	}, nil
}

type memoryCreator struct {
	mu      sync.Mutex
	records []workflow.Record
	err     error
	gate    chan struct{}
}

func (c *memoryCreator) CreateRecord(_ context.Context, record workflow.Record) (string, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.records = append(c.records, record)
	return fmt.Sprintf("venue-%d", len(c.records)), nil
}

type testServer struct {
	router   *mux.Router
	registry *Registry
	gps      *location.FeedProvider
	bus      *session.Bus
	creator  *memoryCreator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	gps := location.NewFeedProvider(location.ProviderGPS)
	network := location.NewFeedProvider(location.ProviderNetwork)
	bus := session.NewBus()
	creator := &memoryCreator{}

	registry := NewRegistry(context.Background(), Dependencies{
		Regions:   stubRegions{},
		Geocoder:  stubGeocoder{},
		Creator:   creator,
		Providers: []location.Provider{gps, network},
		Session:   bus,
		FixWait:   5 * time.Second,
		Accuracy:  100,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, registry.Shutdown(ctx))
	})

	router := mux.NewRouter()
	NewHandler(router, registry, []*location.FeedProvider{gps, network}, bus)
	return &testServer{router: router, registry: registry, gps: gps, bus: bus, creator: creator}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) workflowResponse {
	t.Helper()
	var resp workflowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *testServer) waitFor(t *testing.T, id string, state workflow.State) workflowResponse {
	t.Helper()
	var resp workflowResponse
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/workflows/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		resp = decode(t, rec)
		return resp.State == state
	}, 3*time.Second, 5*time.Millisecond)
	return resp
}

func (s *testServer) startResolved(t *testing.T) string {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/workflows", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	started := decode(t, rec)
	require.Equal(t, workflow.Resolving, started.State)
	require.True(t, started.Foreground)

	rec = s.do(t, http.MethodPost, "/fixes/gps", `{"latitude":39.7817,"longitude":-89.6501,"accuracy":20}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"delivered":1}`, rec.Body.String())

	s.waitFor(t, started.ID, workflow.Ready)
	return started.ID
}

func TestWorkflowHappyPath(t *testing.T) {
	s := newTestServer(t)
	id := s.startResolved(t)

	ready := s.waitFor(t, id, workflow.Ready)
	require.Equal(t, "1 Main St", ready.Fields[workflow.FieldAddress])
	require.Equal(t, "c-1", ready.Region.ID)
	require.False(t, ready.SubmitEnabled)

	rec := s.do(t, http.MethodPost, "/workflows/"+id+"/submit", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPut, "/workflows/"+id+"/fields/name", `{"text":"Joe's Diner"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode(t, rec).SubmitEnabled)

	rec = s.do(t, http.MethodPost, "/workflows/"+id+"/submit", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	done := s.waitFor(t, id, workflow.Succeeded)
	require.Equal(t, "venue-1", done.RecordID)
	require.Equal(t, "/venues/venue-1", done.Destination)
	require.Equal(t, "c-1", s.creator.records[0].RegionID)

	rec = s.do(t, http.MethodPut, "/workflows/"+id+"/fields/name", `{"text":"late"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestWorkflowRecreateKeepsState(t *testing.T) {
	s := newTestServer(t)
	id := s.startResolved(t)

	rec := s.do(t, http.MethodPut, "/workflows/"+id+"/fields/phone", `{"text":"555-0100"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/workflows/"+id+"/recreate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	recreated := decode(t, rec)
	require.Equal(t, id, recreated.ID)
	require.Equal(t, workflow.Ready, recreated.State)
	require.Equal(t, "555-0100", recreated.Fields[workflow.FieldPhone])
	require.Equal(t, "1 Main St", recreated.Fields[workflow.FieldAddress])
	require.True(t, recreated.Foreground)

	require.Eventually(t, func() bool { return s.registry.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorkflowRecreateRefusedOnceSubmitted(t *testing.T) {
	s := newTestServer(t)
	s.creator.gate = make(chan struct{})
	id := s.startResolved(t)

	rec := s.do(t, http.MethodPut, "/workflows/"+id+"/fields/name", `{"text":"Joe's Diner"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/workflows/"+id+"/submit", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.waitFor(t, id, workflow.Submitting)

	rec = s.do(t, http.MethodPost, "/workflows/"+id+"/recreate", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	close(s.creator.gate)
	done := s.waitFor(t, id, workflow.Succeeded)
	require.Equal(t, "venue-1", done.RecordID)

	rec = s.do(t, http.MethodPost, "/workflows/"+id+"/recreate", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodPost, "/workflows/"+id+"/submit", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	after := s.waitFor(t, id, workflow.Succeeded)
	require.Equal(t, "venue-1", after.RecordID)
	s.creator.mu.Lock()
	defer s.creator.mu.Unlock()
	require.Len(t, s.creator.records, 1)
}

func TestStartWorkflowAcceptsEmptyChunkedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows", io.NopCloser(strings.NewReader("")))
	require.Equal(t, int64(-1), req.ContentLength)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, decode(t, rec).Foreground)
}

func TestSessionInvalidationDiscardsWorkflows(t *testing.T) {
	s := newTestServer(t)
	id := s.startResolved(t)

	rec := s.do(t, http.MethodPost, "/sessions/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"invalidated":1}`, rec.Body.String())

	require.Eventually(t, func() bool {
		return s.do(t, http.MethodGet, "/workflows/"+id, "").Code == http.StatusNotFound
	}, time.Second, 5*time.Millisecond)

	// a workflow started before a new session is established is discarded at once
	rec = s.do(t, http.MethodPost, "/workflows", `{"background":true}`)
	require.Contains(t, []int{http.StatusCreated, http.StatusGone}, rec.Code)

	rec = s.do(t, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodPost, "/workflows", `{"background":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.False(t, decode(t, rec).Foreground)
}

func TestWorkflowTeardownAndErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/workflows", `{"background":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec).ID

	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/workflows/"+id+"/fields/website", `{"text":"x"}`).Code)
	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/workflows/"+id+"/fields/name", `{`).Code)
	require.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/workflows/"+id+"/submit", "").Code)
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/workflows/missing", "").Code)
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/fixes/satellite", `{}`).Code)
	require.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/fixes/gps", `{"latitude":91}`).Code)

	rec = s.do(t, http.MethodPost, "/workflows/"+id+"/foreground", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode(t, rec).Foreground)
	rec = s.do(t, http.MethodPost, "/workflows/"+id+"/background", "")
	require.False(t, decode(t, rec).Foreground)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/workflows/"+id, "").Code)
	require.Eventually(t, func() bool {
		return s.do(t, http.MethodGet, "/workflows/"+id, "").Code == http.StatusNotFound
	}, time.Second, 5*time.Millisecond)
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, http.StatusGone, statusOf(workflow.ErrTornDown))
	require.Equal(t, http.StatusConflict, statusOf(fmt.Errorf("%w: resolving", workflow.ErrWrongState)))
	require.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
}

func TestEventPresenterKeepsRecentEvents(t *testing.T) {
	p := NewEventPresenter("wf")
	for i := 0; i < maxEvents+10; i++ {
		p.Busy(i%2 == 0)
	}
	p.Navigate("venue-9")

	events := p.Events()
	require.Len(t, events, maxEvents)
	require.Equal(t, "navigate", events[len(events)-1].Kind)
	require.Equal(t, "/venues/venue-9", p.Destination())
}
