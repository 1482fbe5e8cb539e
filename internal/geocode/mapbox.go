package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ssherwood/venueservice/internal/config"
	"github.com/ssherwood/venueservice/internal/workflow"
)

var ErrMissingToken = errors.New("mapbox access token is not configured")

// StatusError is returned when Mapbox answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mapbox status %d", e.StatusCode)
}

// Mapbox reverse geocodes coordinates with the Mapbox Search v6 API.
type Mapbox struct {
	client  *http.Client
	baseURL string
	token   string
	tracer  trace.Tracer
}

func NewMapbox(client *http.Client, baseURL, token string) *Mapbox {
	if client == nil {
		client = &http.Client{Timeout: config.GeocoderTimeout}
	}
	return &Mapbox{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		tracer:  otel.Tracer("geocode.mapbox"),
	}
}

type reverseResponse struct {
	Features []struct {
		Properties struct {
			FeatureType string         `json:"feature_type"`
			Name        string         `json:"name"`
			Context     reverseContext `json:"context"`
		} `json:"properties"`
	} `json:"features"`
}

type reverseContext struct {
	Address *struct {
		Name          string `json:"name"`
		AddressNumber string `json:"address_number"`
		StreetName    string `json:"street_name"`
	} `json:"address"`
	Street   *contextEntry `json:"street"`
	Postcode *contextEntry `json:"postcode"`
	Place    *contextEntry `json:"place"`
	Locality *contextEntry `json:"locality"`
	Region   *struct {
		Name           string `json:"name"`
		RegionCode     string `json:"region_code"`
		RegionCodeFull string `json:"region_code_full"`
	} `json:"region"`
}

type contextEntry struct {
	Name string `json:"name"`
}

// ReverseGeocode returns the closest address for the coordinate, or nil when
// Mapbox knows of none. Mapbox carries no phone numbers, so Phone is always nil.
func (m *Mapbox) ReverseGeocode(ctx context.Context, latitude, longitude float64) (*workflow.Address, error) {
	if m.token == "" {
		return nil, ErrMissingToken
	}

	ctx, span := m.tracer.Start(ctx, "mapbox.reverse", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	query := url.Values{}
	query.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	query.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	query.Set("types", "address")
	query.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/search/geocode/v6/reverse?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("http.request.method", req.Method), attribute.String("url.path", req.URL.Path))

	// the token stays out of the span attributes above
	qp := req.URL.Query()
	qp.Set("access_token", m.token)
	req.URL.RawQuery = qp.Encode()

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("mapbox reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	slog.Debug("Mapbox reverse geocode", slog.Int("status", resp.StatusCode), slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= 300 {
		err := &StatusError{StatusCode: resp.StatusCode}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var decoded reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("mapbox reverse geocode: decoding response: %w", err)
	}
	if len(decoded.Features) == 0 {
		return nil, nil
	}

	return toAddress(decoded.Features[0].Properties.Name, decoded.Features[0].Properties.Context), nil
}

func toAddress(name string, c reverseContext) *workflow.Address {
	address := &workflow.Address{}

	switch {
	case c.Address != nil && c.Address.Name != "":
		address.Street = workflow.Text(c.Address.Name)
	case c.Address != nil && c.Address.StreetName != "":
		address.Street = workflow.Text(c.Address.AddressNumber + " " + c.Address.StreetName)
	case c.Street != nil:
		address.Street = workflow.Text(c.Street.Name)
	default:
		address.Street = workflow.Text(name)
	}

	switch {
	case c.Place != nil:
		address.Locality = workflow.Text(c.Place.Name)
	case c.Locality != nil:
		address.Locality = workflow.Text(c.Locality.Name)
	}
	if c.Region != nil {
		if c.Region.RegionCode != "" {
			address.AdminArea = workflow.Text(c.Region.RegionCode)
		} else {
			address.AdminArea = workflow.Text(c.Region.Name)
		}
	}
	if c.Postcode != nil {
		address.PostalCode = workflow.Text(c.Postcode.Name)
	}
	return address
}
