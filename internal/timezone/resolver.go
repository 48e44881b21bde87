package timezone

import (
	"fmt"
	"math"
	"time"
)

// Finder answers which fine-grained zone contains a point.
// An empty result means the point is in no known zone.
// The finder returned by tzf.NewDefaultFinder satisfies it.
type Finder interface {
	GetTimezoneName(lng, lat float64) string
}

// Resolver turns coordinates into coarse zone identifiers.
type Resolver struct {
	finder Finder
	table  *Table
	now    func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock replaces the wall clock used for the Troll fallback.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver backed by finder and table.
func NewResolver(finder Finder, table *Table, opts ...ResolverOption) *Resolver {
	r := &Resolver{finder: finder, table: table, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the coarse zone at (lat, lon). The clock is read once.
func (r *Resolver) Resolve(lat, lon float64) (string, error) {
	return r.ResolveAt(lat, lon, r.now())
}

// ResolveAt is Resolve with the evaluation instant supplied by the caller.
func (r *Resolver) ResolveAt(lat, lon float64, now time.Time) (string, error) {
	if err := ValidateCoordinate(lat, lon); err != nil {
		return "", err
	}

	fine := r.finder.GetTimezoneName(lon, lat)
	if fine == "" {
		return "", fmt.Errorf("%w: no zone at (%g, %g)", ErrUnmappedZone, lat, lon)
	}
	return r.table.Coarse(fine, now)
}

// ValidateCoordinate checks latitude in [-90, 90] and longitude in [-180, 180].
func ValidateCoordinate(lat, lon float64) error {
	if lat < -90 || lat > 90 || math.IsNaN(lat) {
		return fmt.Errorf("%w: latitude %g", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 || math.IsNaN(lon) {
		return fmt.Errorf("%w: longitude %g", ErrInvalidCoordinate, lon)
	}
	return nil
}
