package sources

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"recommend-workers/internal/models"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresSource reads candidates from a catalogue table.
type PostgresSource struct {
	name     string
	category models.Category
	table    string
	db       *sql.DB
}

func NewPostgresSource(name string, category models.Category, table string, db *sql.DB) (*PostgresSource, error) {
	if table == "" {
		table = "catalog_items"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSource{name: name, category: category, table: table, db: db}, nil
}

func (s *PostgresSource) Name() string              { return s.name }
func (s *PostgresSource) Category() models.Category { return s.category }

func (s *PostgresSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	query, args := s.buildQuery(q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", s.name, err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", s.name, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", s.name, err)
	}
	return normalize(out, s.category, s.name), nil
}

func (s *PostgresSource) buildQuery(q Query) (string, []interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT id, title, description, tags, mood_tags, price_level, lat, lng, address,
		rating, review_count, image_url, created_at
		FROM %s WHERE category = $1`, s.table)

	args := []interface{}{string(s.category)}
	if q.Text != "" {
		args = append(args, "%"+q.Text+"%")
		fmt.Fprintf(&b, " AND title ILIKE $%d", len(args))
	}
	args = append(args, q.limitOrDefault())
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d", len(args))

	return b.String(), args
}

func scanCandidate(rows *sql.Rows) (models.Candidate, error) {
	var (
		c           models.Candidate
		description sql.NullString
		tags        pq.StringArray
		moodTags    pq.StringArray
		priceLevel  sql.NullInt64
		lat, lng    sql.NullFloat64
		address     sql.NullString
		rating      sql.NullFloat64
		reviewCount sql.NullInt64
		imageURL    sql.NullString
		createdAt   sql.NullTime
	)

	if err := rows.Scan(&c.ID, &c.Title, &description, &tags, &moodTags, &priceLevel,
		&lat, &lng, &address, &rating, &reviewCount, &imageURL, &createdAt); err != nil {
		return c, err
	}

	c.Description = description.String
	c.Tags = []string(tags)
	c.MoodTags = []string(moodTags)
	c.ImageURL = imageURL.String
	if priceLevel.Valid {
		p := int(priceLevel.Int64)
		c.PriceLevel = &p
	}
	if lat.Valid && lng.Valid {
		la, ln := lat.Float64, lng.Float64
		c.Location = &models.Location{Lat: &la, Lng: &ln, Address: address.String}
	}
	if rating.Valid {
		r := rating.Float64
		c.Rating = &r
		count := 0
		if reviewCount.Valid {
			count = int(reviewCount.Int64)
			c.ReviewCount = &count
		}
		c.ExternalRatings = []models.ExternalRating{{Source: "catalog", Score: r, Count: count}}
	}
	if createdAt.Valid {
		t := createdAt.Time
		c.CreatedAt = &t
	}
	return c, nil
}
