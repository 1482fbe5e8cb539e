package venue

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/yugabyte/pgx/v5"
	"github.com/yugabyte/pgx/v5/pgxpool"

	"github.com/ssherwood/venueservice/internal/config"
	"github.com/ssherwood/venueservice/internal/workflow"
)

//go:embed schema.sql
var schema string

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ApplySchema creates the venue tables when they do not exist yet.
func (r *Repository) ApplySchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

// CreateVenue inserts the address and the venue in one transaction and returns
// the new venue id.
func (r *Repository) CreateVenue(ctx context.Context, record workflow.Record, regionID *uuid.UUID) (uuid.UUID, error) {
	var venueID uuid.UUID
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var addressID uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO address (street, cross_street, city, state_cd, postal_cd)
                  VALUES ($1, NULLIF($2, ''), $3, $4, $5)
               RETURNING id`,
			record.Address, record.CrossStreet, record.Locality, record.AdminArea, record.PostalCode).
			Scan(&addressID)
		if err != nil {
			return err
		}

		return tx.QueryRow(ctx,
			`INSERT INTO venue (name, address_id, region_id, phone)
                  VALUES ($1, $2, $3, NULLIF($4, ''))
               RETURNING id`,
			record.Name, addressID, regionID, record.Phone).
			Scan(&venueID)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return venueID, nil
}

// NearestRegion returns the closest region whose center lies within radiusKm of
// the coordinate, or nil when there is none.
func (r *Repository) NearestRegion(ctx context.Context, latitude, longitude, radiusKm float64) (*workflow.Region, error) {
	var region workflow.Region
	err := r.db.QueryRow(ctx,
		`SELECT id::text, name
           FROM (SELECT id, name,
                        6371 * 2 * asin(sqrt(power(sin(radians(latitude - $1) / 2), 2) +
                                             cos(radians($1)) * cos(radians(latitude)) *
                                             power(sin(radians(longitude - $2) / 2), 2))) AS distance_km
                   FROM region) candidates
          WHERE distance_km <= $3
       ORDER BY distance_km
          LIMIT 1`, latitude, longitude, radiusKm).
		Scan(&region.ID, &region.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// GetVenueByID reads a venue with follower reads enabled, trading a little
// staleness for a local read.
func (r *Repository) GetVenueByID(ctx context.Context, id uuid.UUID) (*Venue, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DBReadTimeout)
	defer cancel()

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	// must be set before BEGIN; reset before the connection goes back to the pool
	_, _ = conn.Exec(ctx, "set yb_read_from_followers = true")
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "set yb_read_from_followers = false")
	}()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}

	var value string
	_ = tx.QueryRow(ctx, "select current_setting('yb_read_from_followers')").Scan(&value)
	slog.Debug("Running in Tx", slog.String("yb_read_from_followers", value))

	var v Venue
	err = tx.QueryRow(ctx,
		`select ven.id, ven.name, coalesce(ven.region_id::text, ''), coalesce(ven.phone, ''),
                adr.id, adr.street, coalesce(adr.cross_street, ''), adr.city, adr.state_cd, adr.postal_cd
           from venue ven
           join address adr
             on ven.address_id = adr.id
          where ven.id = $1
            and ven.active = true`, id).
		Scan(&v.ID, &v.Name, &v.RegionID, &v.Phone,
			&v.AddressID, &v.Street, &v.CrossStreet, &v.Locality, &v.AdminArea, &v.PostalCode)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	_ = tx.Commit(ctx)
	return &v, nil
}
