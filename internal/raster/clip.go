package raster

// Region is anything that can test a CRS coordinate for membership.
type Region interface {
	Contains(x, y float64) bool
}

// Clip masks every pixel whose center lies outside r. Clipping twice with
// the same region is a no-op.
func Clip(f Frame, r Region) Frame {
	inside := make([]bool, f.Grid.Len())
	for row := 0; row < f.Grid.Height; row++ {
		for col := 0; col < f.Grid.Width; col++ {
			x, y := f.Grid.Center(col, row)
			inside[f.Grid.Index(col, row)] = r.Contains(x, y)
		}
	}

	out := NewFrame(f.Grid, f.Acquired, f.Properties)
	for _, nb := range f.bands {
		b := NewBand(nb.band.Len())
		for i := range nb.band.Values {
			if v, ok := nb.band.At(i); ok && inside[i] {
				b.Set(i, v)
			}
		}
		out.bands = append(out.bands, namedBand{name: nb.name, band: b})
	}
	return out
}
