// Package runoff implements the SCS curve-number surface runoff model.
//
// Land cover is mapped to a curve number (CN) through a total lookup
// table. Retention S = 25400/CN - 254 (mm), initial abstraction
// Ia = 0.2*S, and runoff Q = (P - Ia)^2 / (P - Ia + S) for P > Ia, else 0.
// CN = 100 gives S = 0 and Q = P.
package runoff

import (
	"fmt"
	"maps"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/indices"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// DefaultCurveNumber applies to unmapped land-cover codes.
const DefaultCurveNumber = 100.0

// WorldCoverCurveNumbers maps ESA WorldCover class codes to curve numbers.
var WorldCoverCurveNumbers = map[int]float64{
	10: 100, // tree cover
	20: 70,  // shrubland
	30: 55,  // grassland
	40: 82,  // cropland
	50: 88,  // built-up
	60: 60,  // bare / sparse vegetation
	70: 70,  // snow and ice
	80: 80,  // permanent water
	90: 85,  // herbaceous wetland
	95: 75,  // mangroves
}

// Table is a land-cover code to CN lookup with an explicit default.
type Table struct {
	numbers  map[int]float64
	fallback float64
}

// NewTable copies numbers; codes outside it resolve to fallback.
func NewTable(numbers map[int]float64, fallback float64) (*Table, error) {
	if err := validCN(fallback); err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}
	for code, cn := range numbers {
		if err := validCN(cn); err != nil {
			return nil, fmt.Errorf("class %d: %w", code, err)
		}
	}
	return &Table{numbers: maps.Clone(numbers), fallback: fallback}, nil
}

// DefaultTable is the WorldCover table with CN 100 fallback.
func DefaultTable() *Table {
	t, _ := NewTable(WorldCoverCurveNumbers, DefaultCurveNumber)
	return t
}

func validCN(cn float64) error {
	if cn < 1 || cn > 100 {
		return fmt.Errorf("curve number %v outside [1, 100]", cn)
	}
	return nil
}

// CurveNumber resolves a class code.
func (t *Table) CurveNumber(code int) float64 {
	if cn, ok := t.numbers[code]; ok {
		return cn
	}
	return t.fallback
}

// Apply converts a land-cover band into a CN band. No-data stays no-data.
func (t *Table) Apply(landCover raster.Band) raster.Band {
	return landCover.Map(func(v float64) (float64, bool) {
		return t.CurveNumber(int(v)), true
	})
}

// Retention is S = 25400/CN - 254 in millimetres.
func Retention(cn float64) float64 {
	if cn >= 100 {
		return 0
	}
	return 25400/cn - 254
}

// Depth returns runoff in millimetres for precipitation p and curve number
// cn. limiting is true when S == 0 and the result is the impervious limit p.
func Depth(p, cn float64) (q float64, limiting bool) {
	s := Retention(cn)
	if s <= 0 {
		return max(p, 0), true
	}
	ia := 0.2 * s
	if p <= ia {
		return 0, false
	}
	excess := p - ia
	return excess * excess / (excess + s), false
}

// Model computes runoff rasters from precipitation and land cover.
type Model struct {
	table *Table
}

// NewModel uses table for CN assignment; nil means DefaultTable.
func NewModel(table *Table) *Model {
	if table == nil {
		table = DefaultTable()
	}
	return &Model{table: table}
}

// Runoff evaluates the SCS equation per pixel. Pixels on the CN = 100
// limit are counted in DerivedRaster.Degenerate.
func (m *Model) Runoff(precip raster.Frame, precipBand string, landCover raster.Frame, classBand string) (indices.DerivedRaster, error) {
	if err := raster.CheckAligned(precip.Grid, landCover.Grid); err != nil {
		return indices.DerivedRaster{}, fmt.Errorf("runoff: %w", err)
	}
	p, err := precip.Band(precipBand)
	if err != nil {
		return indices.DerivedRaster{}, fmt.Errorf("runoff: %w: %w", domain.ErrIndicatorMismatch, err)
	}
	classes, err := landCover.Band(classBand)
	if err != nil {
		return indices.DerivedRaster{}, fmt.Errorf("runoff: %w: %w", domain.ErrIndicatorMismatch, err)
	}

	var limited int64
	q := raster.Combine(p, m.table.Apply(classes), func(p, cn float64) (float64, bool) {
		d, limiting := Depth(p, cn)
		if limiting {
			limited++
		}
		return d, true
	})
	out := raster.NewFrame(precip.Grid, precip.Acquired, nil)
	return indices.DerivedRaster{
		Name:       indices.NameRunoff,
		Frame:      out.MustWithBand(indices.BandValue, q),
		Range:      indices.DisplayRanges[indices.NameRunoff],
		Degenerate: limited,
	}, nil
}

// CurveNumbers exposes the CN raster for reporting or export.
func (m *Model) CurveNumbers(landCover raster.Frame, classBand string) (raster.Frame, error) {
	classes, err := landCover.Band(classBand)
	if err != nil {
		return raster.Frame{}, fmt.Errorf("curve numbers: %w", err)
	}
	out := raster.NewFrame(landCover.Grid, landCover.Acquired, nil)
	return out.MustWithBand("CN", m.table.Apply(classes)), nil
}
