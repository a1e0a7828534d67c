// internal/service/viewport/viewport.go

package viewport

import (
	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/moment"
)

// Visible returns the subset of moments whose coordinates fall inside the
// last-known camera bounds. Before the map has reported any bounds there is
// nothing to filter against, so a nil bounds returns the input unchanged.
// Moments without extractable coordinates are excluded.
func Visible(moments []moment.Moment, bounds *geo.Bounds) []moment.Moment {
	if bounds == nil {
		return moments
	}

	result := make([]moment.Moment, 0, len(moments))
	for _, m := range moments {
		loc, ok := m.Coordinates()
		if !ok {
			continue
		}
		if bounds.Contains(loc.Latitude, loc.Longitude) {
			result = append(result, m)
		}
	}
	return result
}
