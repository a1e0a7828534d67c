package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/moment"
)

func f64(v float64) *float64 { return &v }

func at(id string, lat, lng float64) moment.Moment {
	return moment.Moment{ID: id, Latitude: f64(lat), Longitude: f64(lng)}
}

func TestVisibleNilBoundsIsIdentity(t *testing.T) {
	moments := []moment.Moment{at("a", 1, 1), at("b", 50, 50)}

	out := Visible(moments, nil)

	require.Len(t, out, 2)
	assert.True(t, &moments[0] == &out[0], "nil bounds returns the input unchanged")
}

func TestVisibleFiltersByContainment(t *testing.T) {
	bounds := &geo.Bounds{
		NorthEast: geo.Location{Latitude: 10, Longitude: 10},
		SouthWest: geo.Location{Latitude: 0, Longitude: 0},
	}

	moments := []moment.Moment{
		at("inside", 5, 5),
		at("outside", 20, 5),
		at("edge", 10, 10),
	}

	out := Visible(moments, bounds)

	require.Len(t, out, 2)
	assert.Equal(t, "inside", out[0].ID)
	assert.Equal(t, "edge", out[1].ID)
}

func TestVisibleExcludesMomentsWithoutCoordinates(t *testing.T) {
	bounds := &geo.Bounds{
		NorthEast: geo.Location{Latitude: 10, Longitude: 10},
		SouthWest: geo.Location{Latitude: 0, Longitude: 0},
	}

	moments := []moment.Moment{
		{ID: "nowhere"},
		at("inside", 5, 5),
	}

	out := Visible(moments, bounds)

	require.Len(t, out, 1)
	assert.Equal(t, "inside", out[0].ID)
}

func TestVisibleUsesEmbeddedPoint(t *testing.T) {
	bounds := &geo.Bounds{
		NorthEast: geo.Location{Latitude: 10, Longitude: 10},
		SouthWest: geo.Location{Latitude: 0, Longitude: 0},
	}

	moments := []moment.Moment{
		{ID: "point", Point: &geo.Location{Latitude: 3, Longitude: 3}},
	}

	out := Visible(moments, bounds)
	assert.Len(t, out, 1)
}
