// Package overpass resolves AOI filters to OpenStreetMap administrative
// boundary relations through an Overpass API endpoint.
package overpass

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	goverpass "github.com/serjvanilla/go-overpass"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
)

// Querier runs a raw Overpass QL query.
type Querier interface {
	Query(query string) (goverpass.Result, error)
}

// Store matches boundary=administrative relations whose tag named by the
// filter field equals the filter value. The field "district" is an alias
// for the name tag.
type Store struct {
	client Querier
}

// New creates a store against endpoint. timeout bounds each HTTP request.
func New(endpoint string, timeout time.Duration) *Store {
	httpClient := &http.Client{Timeout: timeout}
	client := goverpass.NewWithSettings(endpoint, 2, httpClient)
	return &Store{client: &client}
}

// NewWithClient uses an existing querier.
func NewWithClient(client Querier) *Store {
	return &Store{client: client}
}

// Resolve returns one polygon per outer ring of every matching relation,
// in lon/lat.
func (s *Store) Resolve(ctx context.Context, filter domain.FeatureFilter) ([]geom.T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type outcome struct {
		res goverpass.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.client.Query(buildQuery(filter))
		done <- outcome{res: res, err: err}
	}()

	var res goverpass.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("overpass query %s: %w", filter, o.err)
		}
		res = o.res
	}

	polys, err := boundaries(res)
	if err != nil {
		return nil, fmt.Errorf("overpass %s: %w", filter, err)
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("overpass %s: %w", filter, domain.ErrAOINotFound)
	}
	return polys, nil
}

func buildQuery(filter domain.FeatureFilter) string {
	tag := filter.Field
	if strings.EqualFold(tag, "district") {
		tag = "name"
	}
	return fmt.Sprintf(`[out:json];
relation["boundary"="administrative"][%s=%s];
(._;>;);
out body;`, quote(tag), quote(filter.Value))
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// boundaries assembles relation member ways into polygons. Inner rings
// become holes of the outer ring that contains them.
func boundaries(res goverpass.Result) ([]geom.T, error) {
	ids := make([]int64, 0, len(res.Relations))
	for id := range res.Relations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []geom.T
	for _, id := range ids {
		rel := res.Relations[id]
		var outer, inner [][]geom.Coord
		for _, m := range rel.Members {
			if m.Type != goverpass.ElementTypeWay || m.Way == nil {
				continue
			}
			line := wayCoords(m.Way)
			if len(line) < 2 {
				continue
			}
			if m.Role == "inner" {
				inner = append(inner, line)
			} else {
				outer = append(outer, line)
			}
		}
		polys, err := assemble(stitch(outer), stitch(inner))
		if err != nil {
			return nil, fmt.Errorf("relation %d: %w", id, err)
		}
		out = append(out, polys...)
	}
	return out, nil
}

func wayCoords(w *goverpass.Way) []geom.Coord {
	coords := make([]geom.Coord, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		if n == nil {
			continue
		}
		coords = append(coords, geom.Coord{n.Lon, n.Lat})
	}
	return coords
}

// stitch joins open ways sharing endpoints into closed rings. Ways that
// never close are dropped.
func stitch(lines [][]geom.Coord) [][]geom.Coord {
	var rings [][]geom.Coord
	pending := make([][]geom.Coord, len(lines))
	copy(pending, lines)

	for len(pending) > 0 {
		ring := slices.Clone(pending[0])
		pending = pending[1:]
		for !closed(ring) {
			next := -1
			for i, l := range pending {
				switch {
				case equal(last(ring), l[0]):
					ring = append(ring, l[1:]...)
				case equal(last(ring), last(l)):
					ring = append(ring, reversed(l)[1:]...)
				default:
					continue
				}
				next = i
				break
			}
			if next < 0 {
				break
			}
			pending = append(pending[:next], pending[next+1:]...)
		}
		if closed(ring) && len(ring) >= 4 {
			rings = append(rings, ring)
		}
	}
	return rings
}

func assemble(outer, inner [][]geom.Coord) ([]geom.T, error) {
	polys := make([][][]geom.Coord, len(outer))
	for i, r := range outer {
		polys[i] = [][]geom.Coord{r}
	}
	for _, hole := range inner {
		for i, r := range outer {
			flat := make([]float64, 0, 2*len(r))
			for _, c := range r {
				flat = append(flat, c[0], c[1])
			}
			if xy.IsPointInRing(geom.XY, hole[0], flat) {
				polys[i] = append(polys[i], hole)
				break
			}
		}
	}
	out := make([]geom.T, 0, len(polys))
	for _, rings := range polys {
		p, err := geom.NewPolygon(geom.XY).SetCoords(rings)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func closed(r []geom.Coord) bool { return len(r) > 1 && equal(r[0], last(r)) }

func last(r []geom.Coord) geom.Coord { return r[len(r)-1] }

func equal(a, b geom.Coord) bool { return a[0] == b[0] && a[1] == b[1] }

func reversed(l []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, len(l))
	for i, c := range l {
		out[len(l)-1-i] = c
	}
	return out
}
