// internal/service/rank/rank.go

package rank

import (
	"math"
	"sort"
	"time"

	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/moment"
)

// Triage score weights. The composite ranking blends liveness, proximity,
// popularity and content completeness.
const (
	timeWeight       = 0.35
	distanceWeight   = 0.25
	popularityWeight = 0.25
	qualityWeight    = 0.15
)

// Sorter orders candidate moment lists
type Sorter struct {
	now func() time.Time
}

// NewSorter creates a sorter using the given clock. A nil clock falls back
// to time.Now.
func NewSorter(now func() time.Time) *Sorter {
	if now == nil {
		now = time.Now
	}
	return &Sorter{now: now}
}

// Sort returns a new slice ordered by the given mode. Equal keys keep their
// input order. Distance sorting without a user location cannot be performed:
// the input slice itself is returned and the second return is false, so
// callers that need sorted output must check it. This mirrors the mobile
// client's behavior and is deliberate; it is not an error.
func (s *Sorter) Sort(moments []moment.Moment, mode moment.SortMode, userLoc *geo.Location, order moment.SortOrder) ([]moment.Moment, bool) {
	if mode == moment.SortDistance && userLoc == nil {
		return moments, false
	}

	out := make([]moment.Moment, len(moments))
	copy(out, moments)

	switch mode {
	case moment.SortDate:
		sortByTime(out, order, func(m moment.Moment) time.Time { return timeOrEpoch(m.StartTime) })

	case moment.SortEndDate:
		sortByTime(out, order, func(m moment.Moment) time.Time { return timeOrEpoch(m.EndTime) })

	case moment.SortCreated:
		sortByTime(out, order, func(m moment.Moment) time.Time { return timeOrEpoch(m.CreatedTime) })

	case moment.SortDistance:
		s.sortByDistance(out, *userLoc, order)

	case moment.SortPopularity:
		asc := order == moment.OrderAsc
		sort.SliceStable(out, func(i, j int) bool {
			if asc {
				return out[i].Interests < out[j].Interests
			}
			return out[i].Interests > out[j].Interests
		})

	default: // triage
		s.sortByTriage(out, userLoc, order)
	}

	return out, true
}

func sortByTime(moments []moment.Moment, order moment.SortOrder, key func(moment.Moment) time.Time) {
	desc := order == moment.OrderDesc
	sort.SliceStable(moments, func(i, j int) bool {
		a, b := key(moments[i]), key(moments[j])
		if desc {
			return a.After(b)
		}
		return a.Before(b)
	})
}

// timeOrEpoch normalizes unparsable timestamps to epoch 0 so they group at
// the early end of the ordering
func timeOrEpoch(parse func() (time.Time, bool)) time.Time {
	if t, ok := parse(); ok {
		return t
	}
	return time.Unix(0, 0)
}

func (s *Sorter) sortByDistance(moments []moment.Moment, from geo.Location, order moment.SortOrder) {
	desc := order == moment.OrderDesc
	sort.SliceStable(moments, func(i, j int) bool {
		a, aok := moments[i].Coordinates()
		b, bok := moments[j].Coordinates()
		// Moments without extractable coordinates sort last, keeping their
		// relative order among themselves
		if !aok || !bok {
			return aok && !bok
		}
		da := geo.Distance(from, a)
		db := geo.Distance(from, b)
		if desc {
			return da > db
		}
		return da < db
	})
}

func (s *Sorter) sortByTriage(moments []moment.Moment, userLoc *geo.Location, order moment.SortOrder) {
	now := s.now()
	asc := order == moment.OrderAsc
	scores := make([]float64, len(moments))
	for i, m := range moments {
		scores[i] = Score(m, now, userLoc)
	}
	ids := make([]int, len(moments))
	for i := range ids {
		ids[i] = i
	}
	sort.SliceStable(ids, func(i, j int) bool {
		if asc {
			return scores[ids[i]] < scores[ids[j]]
		}
		return scores[ids[i]] > scores[ids[j]]
	})
	ordered := make([]moment.Moment, len(moments))
	for i, id := range ids {
		ordered[i] = moments[id]
	}
	copy(moments, ordered)
}

// Score computes the composite triage score for a moment. The weights and
// sub-formulas are pinned by tests; behavior parity with the mobile client
// depends on them.
func Score(m moment.Moment, now time.Time, userLoc *geo.Location) float64 {
	return timeWeight*timeScore(m, now) +
		distanceWeight*distanceScore(m, userLoc) +
		popularityWeight*popularityScore(m) +
		qualityWeight*qualityScore(m)
}

// timeScore rewards live moments most, then near-future ones; past moments
// decay from a lower base. Unparsable start times get a flat default.
func timeScore(m moment.Moment, now time.Time) float64 {
	start, ok := m.StartTime()
	if !ok {
		return 0.2
	}
	end, endOK := m.EndTime()
	if !endOK {
		end = start
	}

	if !now.Before(start) && !now.After(end) {
		return 1.2
	}
	if now.Before(start) {
		hoursUntil := start.Sub(now).Hours()
		return 1 / (1 + hoursUntil/24)
	}
	hoursSince := now.Sub(end).Hours()
	return 0.3 / (1 + hoursSince/24)
}

func distanceScore(m moment.Moment, userLoc *geo.Location) float64 {
	if userLoc == nil {
		return 0.5
	}
	loc, ok := m.Coordinates()
	if !ok {
		return 0.5
	}
	return 1 / (1 + geo.Distance(*userLoc, loc))
}

func popularityScore(m moment.Moment) float64 {
	engagement := float64(m.Interests) +
		0.7*float64(m.Likes) +
		0.5*float64(m.Comments) +
		0.8*float64(m.Checkins)
	return math.Log(1 + engagement)
}

func qualityScore(m moment.Moment) float64 {
	score := 0.0
	if m.CoverImage != "" {
		score += 0.5
	}
	if m.VenueName != "" {
		score += 0.3
	}
	if len(m.Description) > 40 {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
