package domain

import (
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// FeatureFilter names an AOI by an attribute of a vector feature store,
// e.g. {Field: "District", Value: "WAYANAD"}.
type FeatureFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Key is a stable identifier used for caching resolved geometry.
func (f FeatureFilter) Key() string {
	return strings.ToLower(f.Field) + "=" + f.Value
}

func (f FeatureFilter) String() string {
	return fmt.Sprintf("%s=%q", f.Field, f.Value)
}

// AOI is a resolved area of interest: the filter that selected it and the
// union of the matched polygons.
type AOI struct {
	Filter   FeatureFilter
	Geometry *geom.MultiPolygon
}

// NewAOI merges polygon and multipolygon features into one AOI. It returns
// ErrAOINotFound when no non-empty polygon is supplied.
func NewAOI(filter FeatureFilter, features []geom.T) (*AOI, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, f := range features {
		switch g := f.(type) {
		case *geom.Polygon:
			if err := pushPolygon(mp, g); err != nil {
				return nil, err
			}
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				if err := pushPolygon(mp, g.Polygon(i)); err != nil {
					return nil, err
				}
			}
		case nil:
		default:
			return nil, fmt.Errorf("aoi %s: unsupported geometry %T", filter, f)
		}
	}
	if mp.NumPolygons() == 0 {
		return nil, fmt.Errorf("aoi %s: %w", filter, ErrAOINotFound)
	}
	return &AOI{Filter: filter, Geometry: mp}, nil
}

func pushPolygon(mp *geom.MultiPolygon, p *geom.Polygon) error {
	if p == nil || p.Empty() || p.NumLinearRings() == 0 {
		return nil
	}
	if p.Layout() != geom.XY {
		// Drop Z/M so every ring shares the multipolygon stride.
		flat := geom.NewPolygon(geom.XY)
		for i := 0; i < p.NumLinearRings(); i++ {
			ring := p.LinearRing(i)
			coords := make([]geom.Coord, ring.NumCoords())
			for j := range coords {
				c := ring.Coord(j)
				coords[j] = geom.Coord{c.X(), c.Y()}
			}
			lr, err := geom.NewLinearRing(geom.XY).SetCoords(coords)
			if err != nil {
				return fmt.Errorf("flatten ring: %w", err)
			}
			if err := flat.Push(lr); err != nil {
				return fmt.Errorf("flatten polygon: %w", err)
			}
		}
		p = flat
	}
	return mp.Push(p)
}

// Bounds returns the AOI bounding box in geometry coordinates.
func (a *AOI) Bounds() *geom.Bounds {
	return a.Geometry.Bounds()
}

// Contains reports whether (x, y) falls inside any polygon's outer ring and
// outside all of that polygon's holes.
func (a *AOI) Contains(x, y float64) bool {
	pt := geom.Coord{x, y}
	for i := 0; i < a.Geometry.NumPolygons(); i++ {
		p := a.Geometry.Polygon(i)
		if !xy.IsPointInRing(geom.XY, pt, p.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for r := 1; r < p.NumLinearRings(); r++ {
			if xy.IsPointInRing(geom.XY, pt, p.LinearRing(r).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
