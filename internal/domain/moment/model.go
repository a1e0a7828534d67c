// internal/domain/moment/model.go

package moment

import (
	"time"

	"momentmap/internal/domain/geo"
)

// Visibility controls who can discover a moment
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// SortMode identifies how a moment list is ordered
type SortMode string

const (
	SortDate       SortMode = "date"
	SortEndDate    SortMode = "endDate"
	SortCreated    SortMode = "created"
	SortDistance   SortMode = "distance"
	SortPopularity SortMode = "popularity"
	SortTriage     SortMode = "triage"
)

// SortOrder identifies the direction of a sort
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// TimeBucket identifies a temporal filter bucket
type TimeBucket string

const (
	BucketWeekend TimeBucket = "weekend"
	BucketLive    TimeBucket = "live"
)

// PopularityBucket identifies a minimum-interest filter bucket
type PopularityBucket string

const (
	BucketTrending PopularityBucket = "trending"
	BucketPopular  PopularityBucket = "popular"
	BucketTop      PopularityBucket = "top"
)

// Interest thresholds for the popularity buckets
const (
	TrendingThreshold = 10
	PopularThreshold  = 30
	TopThreshold      = 50
)

// Moment represents an event fetched from the backend. Moments are immutable
// snapshots; the engine never mutates one, only wraps it in derived records.
type Moment struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// Coordinates arrive either as a flat pair or as an embedded point,
	// depending on which backend table produced the row. Use Coordinates
	// to read them.
	Latitude  *float64      `json:"latitude,omitempty"`
	Longitude *float64      `json:"longitude,omitempty"`
	Point     *geo.Location `json:"point,omitempty"`

	// Timestamps are kept in wire form (RFC 3339) and parsed lazily so that
	// malformed values degrade per predicate instead of failing the row.
	StartsAt  string `json:"starts_at"`
	EndsAt    string `json:"ends_at,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`

	Category   string     `json:"category,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`
	IsFree     bool       `json:"is_free"`
	Tags       []string   `json:"tags,omitempty"`

	Interests int `json:"interests"`
	Likes     int `json:"likes"`
	Comments  int `json:"comments"`
	Checkins  int `json:"checkins"`

	CoverImage string   `json:"cover_image,omitempty"`
	MediaURLs  []string `json:"media_urls,omitempty"`

	VenueName string `json:"venue_name,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
}

// Coordinates returns the moment's position, preferring the flat pair over
// the embedded point. The second return is false when neither form is set.
func (m Moment) Coordinates() (geo.Location, bool) {
	if m.Latitude != nil && m.Longitude != nil {
		return geo.Location{Latitude: *m.Latitude, Longitude: *m.Longitude}, true
	}
	if m.Point != nil {
		return *m.Point, true
	}
	return geo.Location{}, false
}

// StartTime parses the start timestamp. The second return is false when the
// timestamp is absent or malformed.
func (m Moment) StartTime() (time.Time, bool) {
	return parseTimestamp(m.StartsAt)
}

// EndTime parses the end timestamp. Moments without an end are instant: the
// start time stands in for the end, so a moment "ends" when it starts.
func (m Moment) EndTime() (time.Time, bool) {
	if m.EndsAt != "" {
		if t, ok := parseTimestamp(m.EndsAt); ok {
			return t, true
		}
		return time.Time{}, false
	}
	return m.StartTime()
}

// CreatedTime parses the creation timestamp
func (m Moment) CreatedTime() (time.Time, bool) {
	return parseTimestamp(m.CreatedAt)
}

// HasTag reports whether the moment carries the given tag
func (m Moment) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	// Some backend rows carry fractional seconds without a zone
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Filter defines criteria for reducing the full moment set to candidates
type Filter struct {
	Category    string           `json:"category,omitempty"`
	Time        TimeBucket       `json:"time,omitempty"`
	FreeOnly    bool             `json:"free_only,omitempty"`
	PaidOnly    bool             `json:"paid_only,omitempty"`
	Visibility  Visibility       `json:"visibility,omitempty"`
	Popularity  PopularityBucket `json:"popularity,omitempty"`
	IncludePast bool             `json:"include_past,omitempty"`
	Tag         string           `json:"tag,omitempty"`
	Sort        SortMode         `json:"sort,omitempty"`
	Order       SortOrder        `json:"order,omitempty"`
}

// Normalize resolves the free/paid invariant and fills sort defaults.
// FreeOnly wins when both price toggles are set; timestamp and distance
// sorts default ascending, popularity and triage descending.
func (f Filter) Normalize() Filter {
	if f.FreeOnly && f.PaidOnly {
		f.PaidOnly = false
	}
	if f.Sort == "" {
		f.Sort = SortTriage
	}
	if f.Order == "" {
		switch f.Sort {
		case SortDate, SortEndDate, SortCreated, SortDistance:
			f.Order = OrderAsc
		default:
			f.Order = OrderDesc
		}
	}
	return f
}

// InterestThreshold returns the minimum interest count for a popularity
// bucket, or 0 for an unknown bucket
func (b PopularityBucket) InterestThreshold() int {
	switch b {
	case BucketTrending:
		return TrendingThreshold
	case BucketPopular:
		return PopularThreshold
	case BucketTop:
		return TopThreshold
	default:
		return 0
	}
}

// FocusRestriction is an ordered set of moment IDs. When non-empty, only
// members are eligible regardless of other filters (cluster selection).
type FocusRestriction []string

// Contains reports membership in the restriction set
func (r FocusRestriction) Contains(id string) bool {
	for _, m := range r {
		if m == id {
			return true
		}
	}
	return false
}
