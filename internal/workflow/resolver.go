package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ssherwood/venueservice/internal/config"
	"github.com/ssherwood/venueservice/internal/location"
)

// FixSource hands out the best known fix, waiting for one if necessary.
type FixSource interface {
	WaitForFix(ctx context.Context) (location.Fix, error)
}

type RegionLookup interface {
	LookupRegion(ctx context.Context, latitude, longitude float64) (*Region, error)
}

type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, latitude, longitude float64) (*Address, error)
}

// Resolution is what an address resolution produced. Fix is nil when no fix
// arrived in time; Region and Address are nil when their lookup failed.
type Resolution struct {
	Fix        *location.Fix
	Region     *Region
	Address    *Address
	RegionErr  error
	AddressErr error
}

// Resolver turns a location fix into region and address metadata.
type Resolver struct {
	fixes    FixSource
	regions  RegionLookup
	geocoder ReverseGeocoder
	fixWait  time.Duration
}

func NewResolver(fixes FixSource, regions RegionLookup, geocoder ReverseGeocoder, fixWait time.Duration) *Resolver {
	return &Resolver{fixes: fixes, regions: regions, geocoder: geocoder, fixWait: fixWait}
}

// Resolve waits for a fix, then runs both lookups concurrently. A failing
// lookup never cancels the other. The error is ErrNoLocationAvailable when no
// fix arrived, a *ResolutionError when both lookups failed, or the context error
// when ctx was cancelled; partial failures are reported on the Resolution only.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	ctx, span := tracer.Start(ctx, "workflow.Resolve")
	defer span.End()

	var res Resolution

	fix, err := r.awaitFix(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		count(ctx, resolutionCounter, attribute.String("outcome", "no_location"))
		return res, err
	}
	res.Fix = &fix
	span.SetAttributes(
		attribute.String("fix.provider", fix.Provider),
		attribute.Float64("fix.accuracy", fix.Accuracy),
	)

	var g errgroup.Group
	g.Go(func() error {
		res.Region, res.RegionErr = r.lookupRegion(ctx, fix)
		return nil
	})
	g.Go(func() error {
		res.Address, res.AddressErr = r.reverseGeocode(ctx, fix)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if res.RegionErr != nil && res.AddressErr != nil {
		err := &ResolutionError{Region: res.RegionErr, Address: res.AddressErr}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		count(ctx, resolutionCounter, attribute.String("outcome", "failed"))
		return res, err
	}

	outcome := "resolved"
	if res.RegionErr != nil || res.AddressErr != nil {
		outcome = "partial"
	}
	count(ctx, resolutionCounter, attribute.String("outcome", outcome))
	return res, nil
}

func (r *Resolver) awaitFix(ctx context.Context) (location.Fix, error) {
	waitCtx := ctx
	if r.fixWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.fixWait)
		defer cancel()
	}

	fix, err := r.fixes.WaitForFix(waitCtx)
	if err != nil {
		if ctx.Err() != nil {
			return fix, ctx.Err()
		}
		return fix, fmt.Errorf("%w within %s: %w", ErrNoLocationAvailable, r.fixWait, err)
	}
	return fix, nil
}

func (r *Resolver) lookupRegion(ctx context.Context, fix location.Fix) (*Region, error) {
	region, err := r.regions.LookupRegion(ctx, fix.Latitude, fix.Longitude)
	if err == nil && region == nil {
		err = ErrEmptyResult
	}
	if err = r.lookupOutcome(ctx, LookupRegion, err); err != nil {
		return nil, err
	}
	return region, nil
}

func (r *Resolver) reverseGeocode(ctx context.Context, fix location.Fix) (*Address, error) {
	address, err := r.geocoder.ReverseGeocode(ctx, fix.Latitude, fix.Longitude)
	if err == nil && address == nil {
		err = ErrEmptyResult
	}
	if err = r.lookupOutcome(ctx, LookupAddress, err); err != nil {
		return nil, err
	}
	return address, nil
}

func (r *Resolver) lookupOutcome(ctx context.Context, which Lookup, err error) error {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrEmptyResult):
		outcome = "empty"
	default:
		outcome = "error"
	}
	count(ctx, lookupCounter, attribute.String("lookup", string(which)), attribute.String("outcome", outcome))

	if err == nil {
		return nil
	}
	slog.Info("Resolution lookup failed", slog.String("lookup", string(which)), config.ErrAttr(err))
	return &LookupError{Which: which, Err: err}
}
