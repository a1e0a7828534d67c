// internal/adapter/storage/moment_store.go

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/moment"
)

const momentColumns = `
	id, title, description,
	starts_at, ends_at, created_at,
	category, visibility, is_free, tags,
	interests, likes, comments, checkins,
	cover_image, media_urls, venue_name, address, city,
	ST_Y(location::geometry) as lat, ST_X(location::geometry) as lng
`

// MomentStore implements moment.Catalog on Postgres/PostGIS
type MomentStore struct {
	db *pgxpool.Pool
}

// NewMomentStore creates a new moment store
func NewMomentStore(db *pgxpool.Pool) *MomentStore {
	return &MomentStore{
		db: db,
	}
}

// ListMoments returns the full moment set, newest first
func (s *MomentStore) ListMoments(ctx context.Context) ([]moment.Moment, error) {
	query := `SELECT ` + momentColumns + ` FROM moments ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying moments: %w", err)
	}
	defer rows.Close()

	return scanMoments(rows)
}

// GetMoment retrieves a moment by ID
func (s *MomentStore) GetMoment(ctx context.Context, id string) (*moment.Moment, error) {
	query := `SELECT ` + momentColumns + ` FROM moments WHERE id = $1`

	m, err := scanMoment(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, moment.ErrNotFound
		}
		return nil, fmt.Errorf("error querying moment: %w", err)
	}

	return m, nil
}

// SaveMoment inserts or updates a moment
func (s *MomentStore) SaveMoment(ctx context.Context, m moment.Moment) error {
	query := `
		INSERT INTO moments (
			id, title, description,
			starts_at, ends_at, created_at,
			category, visibility, is_free, tags,
			interests, likes, comments, checkins,
			cover_image, media_urls, venue_name, address, city,
			location
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19,
			CASE WHEN $20::float8 IS NOT NULL AND $21::float8 IS NOT NULL
				THEN ST_MakePoint($21, $20)::geography ELSE NULL END
		)
		ON CONFLICT (id) DO UPDATE
		SET
			title = $2,
			description = $3,
			starts_at = $4,
			ends_at = $5,
			category = $7,
			visibility = $8,
			is_free = $9,
			tags = $10,
			interests = $11,
			likes = $12,
			comments = $13,
			checkins = $14,
			cover_image = $15,
			media_urls = $16,
			venue_name = $17,
			address = $18,
			city = $19,
			location = CASE WHEN $20::float8 IS NOT NULL AND $21::float8 IS NOT NULL
				THEN ST_MakePoint($21, $20)::geography ELSE moments.location END
	`

	var lat, lng *float64
	if loc, ok := m.Coordinates(); ok {
		lat = &loc.Latitude
		lng = &loc.Longitude
	}

	_, err := s.db.Exec(
		ctx,
		query,
		m.ID,
		m.Title,
		m.Description,
		nullableTimestamp(m.StartsAt),
		nullableTimestamp(m.EndsAt),
		nullableTimestamp(m.CreatedAt),
		m.Category,
		string(m.Visibility),
		m.IsFree,
		m.Tags,
		m.Interests,
		m.Likes,
		m.Comments,
		m.Checkins,
		m.CoverImage,
		m.MediaURLs,
		m.VenueName,
		m.Address,
		m.City,
		lat,
		lng,
	)

	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}

	return nil
}

// FindNearbyMoments returns moments within radiusKm of a location, closest
// and most popular first
func (s *MomentStore) FindNearbyMoments(
	ctx context.Context,
	location geo.Location,
	radiusKm float64,
) ([]moment.Moment, error) {
	query := `
		SELECT ` + momentColumns + `
		FROM moments
		WHERE location IS NOT NULL
		AND ST_DWithin(
			geography(location),
			geography(ST_MakePoint($1, $2)),
			$3 * 1000
		)
		ORDER BY
			interests DESC,
			ST_Distance(geography(location), geography(ST_MakePoint($1, $2)))
		LIMIT 100
	`

	rows, err := s.db.Query(ctx, query, location.Longitude, location.Latitude, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("error querying nearby moments: %w", err)
	}
	defer rows.Close()

	return scanMoments(rows)
}

// IncrementCounter bumps one of a moment's popularity counters
func (s *MomentStore) IncrementCounter(ctx context.Context, id string, reaction moment.Reaction) error {
	var column string
	switch reaction {
	case moment.ReactionInterest:
		column = "interests"
	case moment.ReactionLike:
		column = "likes"
	case moment.ReactionComment:
		column = "comments"
	case moment.ReactionCheckin:
		column = "checkins"
	default:
		return fmt.Errorf("unknown reaction %q", reaction)
	}

	tag, err := s.db.Exec(
		ctx,
		fmt.Sprintf("UPDATE moments SET %s = %s + 1 WHERE id = $1", column, column),
		id,
	)
	if err != nil {
		return fmt.Errorf("error incrementing %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return moment.ErrNotFound
	}

	return nil
}

// scanMoments reads all rows into moments
func scanMoments(rows pgx.Rows) ([]moment.Moment, error) {
	var moments []moment.Moment
	for rows.Next() {
		m, err := scanMoment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning moment: %w", err)
		}
		moments = append(moments, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moments: %w", err)
	}

	return moments, nil
}

func scanMoment(row pgx.Row) (*moment.Moment, error) {
	var m moment.Moment
	var startsAt, endsAt, createdAt *time.Time
	var visibility string
	var lat, lng *float64

	err := row.Scan(
		&m.ID,
		&m.Title,
		&m.Description,
		&startsAt,
		&endsAt,
		&createdAt,
		&m.Category,
		&visibility,
		&m.IsFree,
		&m.Tags,
		&m.Interests,
		&m.Likes,
		&m.Comments,
		&m.Checkins,
		&m.CoverImage,
		&m.MediaURLs,
		&m.VenueName,
		&m.Address,
		&m.City,
		&lat,
		&lng,
	)
	if err != nil {
		return nil, err
	}

	m.StartsAt = formatTimestamp(startsAt)
	m.EndsAt = formatTimestamp(endsAt)
	m.CreatedAt = formatTimestamp(createdAt)
	m.Visibility = moment.Visibility(visibility)
	m.Latitude = lat
	m.Longitude = lng

	return &m, nil
}

// nullableTimestamp converts a wire timestamp to a database value. Malformed
// strings store as NULL rather than failing the row.
func nullableTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	return nil
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
