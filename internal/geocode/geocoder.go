package geocode

import (
	"context"
	"errors"

	"bbqapp-core/internal/geo"
)

// ErrEmptyQuery signals a forward lookup with no query text.
var ErrEmptyQuery = errors.New("geocode query is empty")

// Geocoder abstracts the platform geocoding backend. Both calls are
// blocking and may fail on malformed input or I/O errors.
type Geocoder interface {
	// FromQuery resolves free text to at most max address candidates.
	FromQuery(ctx context.Context, query string, max int) ([]geo.Address, error)

	// FromPoint resolves a coordinate to at most max addresses.
	FromPoint(ctx context.Context, pt geo.Point, max int) ([]geo.Address, error)
}
