// Package postgis resolves AOI filters against a PostGIS table of
// administrative boundaries.
package postgis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
)

// DefaultGeometryColumn is the boundary column read when none is configured.
const DefaultGeometryColumn = "geom"

// Store reads boundary polygons from one table. The filter field names a
// column, so it is quoted as an identifier; the value is always a bind
// parameter.
type Store struct {
	db         *sqlx.DB
	table      string
	geomColumn string
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn, table string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgis: %w", err)
	}
	return New(db, table, DefaultGeometryColumn), nil
}

// New wraps an open handle.
func New(db *sqlx.DB, table, geomColumn string) *Store {
	return &Store{db: db, table: table, geomColumn: geomColumn}
}

// Resolve selects every row whose field column equals the filter value.
func (s *Store) Resolve(ctx context.Context, filter domain.FeatureFilter) ([]geom.T, error) {
	query, err := s.query(filter.Field)
	if err != nil {
		return nil, err
	}
	var rows [][]byte
	if err := s.db.SelectContext(ctx, &rows, query, filter.Value); err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("postgis %s: %w", filter, domain.ErrAOINotFound)
	}
	return decode(rows)
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) query(field string) (string, error) {
	if strings.TrimSpace(field) == "" {
		return "", errors.New("postgis: empty filter field")
	}
	return fmt.Sprintf(
		`SELECT ST_AsBinary(ST_Force2D(%s)) FROM %s WHERE %s::text = $1 AND %s IS NOT NULL`,
		pq.QuoteIdentifier(s.geomColumn),
		quoteQualified(s.table),
		pq.QuoteIdentifier(field),
		pq.QuoteIdentifier(s.geomColumn),
	), nil
}

// quoteQualified quotes each part of a schema-qualified name.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func decode(rows [][]byte) ([]geom.T, error) {
	out := make([]geom.T, 0, len(rows))
	for i, b := range rows {
		g, err := wkb.Unmarshal(b)
		if err != nil {
			return nil, fmt.Errorf("decode row %d: %w", i, err)
		}
		out = append(out, g)
	}
	return out, nil
}
