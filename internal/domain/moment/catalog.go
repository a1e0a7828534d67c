// internal/domain/moment/catalog.go

package moment

import (
	"context"
	"errors"

	"momentmap/internal/domain/geo"
)

// ErrNotFound is returned when a moment does not exist
var ErrNotFound = errors.New("moment not found")

// Reaction identifies a popularity counter on a moment
type Reaction string

const (
	ReactionInterest Reaction = "interest"
	ReactionLike     Reaction = "like"
	ReactionComment  Reaction = "comment"
	ReactionCheckin  Reaction = "checkin"
)

// Catalog defines the backend collaborator the engine reads moments from.
// The engine only consumes ListMoments and GetMoment; the remaining methods
// back the HTTP surface.
type Catalog interface {
	// ListMoments returns the full moment set
	ListMoments(ctx context.Context) ([]Moment, error)

	// GetMoment returns a moment by ID, or ErrNotFound
	GetMoment(ctx context.Context, id string) (*Moment, error)

	// SaveMoment inserts or updates a moment
	SaveMoment(ctx context.Context, m Moment) error

	// FindNearbyMoments returns moments within radiusKm of a location
	FindNearbyMoments(ctx context.Context, location geo.Location, radiusKm float64) ([]Moment, error)

	// IncrementCounter bumps one of a moment's popularity counters
	IncrementCounter(ctx context.Context, id string, reaction Reaction) error
}
