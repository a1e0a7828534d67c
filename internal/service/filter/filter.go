// internal/service/filter/filter.go

package filter

import (
	"time"

	"momentmap/internal/domain/moment"
)

// Engine reduces a full moment set to a candidate set. The predicate chain is
// pure and order-preserving: output is always a subsequence of the input.
type Engine struct {
	now func() time.Time
}

// NewEngine creates a filter engine using the given clock. A nil clock falls
// back to time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Apply returns the moments passing every active predicate, in input order.
// A non-empty restriction set short-circuits eligibility to its members.
func (e *Engine) Apply(moments []moment.Moment, f moment.Filter, restriction moment.FocusRestriction) []moment.Moment {
	f = f.Normalize()
	now := e.now()

	result := make([]moment.Moment, 0, len(moments))
	for _, m := range moments {
		if e.passes(m, f, restriction, now) {
			result = append(result, m)
		}
	}
	return result
}

func (e *Engine) passes(m moment.Moment, f moment.Filter, restriction moment.FocusRestriction, now time.Time) bool {
	if len(restriction) > 0 && !restriction.Contains(m.ID) {
		return false
	}

	if !f.IncludePast && !endsAtOrAfter(m, now) {
		return false
	}

	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.Visibility != "" && m.Visibility != f.Visibility {
		return false
	}
	if f.Tag != "" && !m.HasTag(f.Tag) {
		return false
	}

	if f.Time != "" && !inTimeBucket(m, f.Time, now) {
		return false
	}

	if f.FreeOnly && !m.IsFree {
		return false
	}
	if f.PaidOnly && m.IsFree {
		return false
	}

	if f.Popularity != "" && m.Interests < f.Popularity.InterestThreshold() {
		return false
	}

	return true
}

// endsAtOrAfter reports whether the moment's end (start when no end is set)
// is at or after now. Unparseable timestamps fail the predicate.
func endsAtOrAfter(m moment.Moment, now time.Time) bool {
	end, ok := m.EndTime()
	if !ok {
		return false
	}
	return !end.Before(now)
}

func inTimeBucket(m moment.Moment, bucket moment.TimeBucket, now time.Time) bool {
	switch bucket {
	case moment.BucketWeekend:
		start, ok := m.StartTime()
		if !ok {
			return false
		}
		wd := start.Weekday()
		return wd == time.Saturday || wd == time.Sunday

	case moment.BucketLive:
		start, ok := m.StartTime()
		if !ok {
			return false
		}
		end, ok := m.EndTime()
		if !ok {
			return false
		}
		return !now.Before(start) && !now.After(end)

	default:
		return false
	}
}
