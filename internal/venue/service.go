package venue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ssherwood/venueservice/internal/config"
	"github.com/ssherwood/venueservice/internal/workflow"
)

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	CreateVenue(ctx context.Context, record workflow.Record, regionID *uuid.UUID) (uuid.UUID, error)
	NearestRegion(ctx context.Context, latitude, longitude, radiusKm float64) (*workflow.Region, error)
	GetVenueByID(ctx context.Context, id uuid.UUID) (*Venue, error)
}

// Service is the record creation and region lookup backend of the add-venue
// workflow.
type Service struct {
	store    Store
	radiusKm float64
}

func NewService(store Store) *Service {
	return &Service{store: store, radiusKm: config.DBRegionSearchRadiusKm}
}

// CreateRecord validates and stores a finished form, returning the venue id.
func (s *Service) CreateRecord(ctx context.Context, record workflow.Record) (string, error) {
	regionID, err := validate(record)
	if err != nil {
		return "", err
	}

	id, err := s.store.CreateVenue(ctx, record, regionID)
	if err != nil {
		return "", fmt.Errorf("creating venue: %w", err)
	}
	slog.Info("Venue created", slog.String("venue.id", id.String()), slog.String("venue.name", record.Name))
	return id.String(), nil
}

func (s *Service) LookupRegion(ctx context.Context, latitude, longitude float64) (*workflow.Region, error) {
	return s.store.NearestRegion(ctx, latitude, longitude, s.radiusKm)
}

func (s *Service) GetVenueByID(ctx context.Context, id uuid.UUID) (*Venue, error) {
	return s.store.GetVenueByID(ctx, id)
}

func validate(record workflow.Record) (*uuid.UUID, error) {
	var problems []string
	required := []struct{ field, value string }{
		{workflow.FieldName, record.Name},
		{workflow.FieldAddress, record.Address},
		{workflow.FieldLocality, record.Locality},
		{workflow.FieldAdminArea, record.AdminArea},
		{workflow.FieldPostalCode, record.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, r.field+" is required")
		}
	}

	var regionID *uuid.UUID
	if record.RegionID != "" {
		id, err := uuid.Parse(record.RegionID)
		if err != nil {
			problems = append(problems, "regionId is not a valid id")
		} else {
			regionID = &id
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return regionID, nil
}
