package grid

import (
	"math"
)

// ValueGrid holds one value per point of a normalized Grid, row by row from
// the north-west corner. Missing points are NaN.
type ValueGrid struct {
	Grid
	Values []float64
}

// At returns the value at row (0 = north) and col (0 = west).
func (v *ValueGrid) At(row, col int) (float64, bool) {
	if row < 0 || row >= v.Nj || col < 0 || col >= v.Ni {
		return math.NaN(), false
	}
	x := v.Values[row*v.Ni+col]
	return x, !math.IsNaN(x)
}

// Index returns the row and column of the grid point nearest to lon, lat.
// ok is false outside the grid.
func (v *ValueGrid) Index(lon, lat float64) (row, col int, ok bool) {
	row, ok = v.nearestRow(lat)
	if !ok {
		return 0, 0, false
	}
	col, ok = v.nearestCol(lon)
	if !ok {
		return 0, 0, false
	}
	return row, col, true
}

func (v *ValueGrid) nearestRow(lat float64) (int, bool) {
	if v.Nj <= 0 {
		return 0, false
	}
	if v.Nj == 1 {
		return 0, math.Abs(lat-v.La1) <= v.Dj/2
	}
	dj := (v.La1 - v.La2) / float64(v.Nj-1)
	if dj <= 0 {
		return 0, false
	}
	row := int(math.Round((v.La1 - lat) / dj))
	return row, row >= 0 && row < v.Nj
}

func (v *ValueGrid) nearestCol(lon float64) (int, bool) {
	if v.Ni <= 0 {
		return 0, false
	}
	d := wrap360(lon - v.Lo1)
	if v.Ni == 1 {
		return 0, d <= v.Di/2 || 360-d <= v.Di/2
	}
	di := v.lonSpan() / float64(v.Ni-1)
	if di <= 0 {
		return 0, false
	}
	col := int(math.Round(d / di))
	switch {
	case col < v.Ni:
		return col, true
	case v.Global() && col == v.Ni:
		return 0, true
	case 360-d <= di/2:
		// Just west of the first column.
		return 0, true
	}
	return 0, false
}

// ValueAt returns the value of the grid point nearest to lon, lat. ok is
// false outside the grid and at missing points.
func (v *ValueGrid) ValueAt(lon, lat float64) (float64, bool) {
	row, col, ok := v.Index(lon, lat)
	if !ok {
		return math.NaN(), false
	}
	return v.At(row, col)
}

// Range returns the smallest and largest values, ignoring missing points.
// ok is false when every point is missing.
func (v *ValueGrid) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range v.Values {
		if math.IsNaN(x) {
			continue
		}
		ok = true
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if !ok {
		return math.NaN(), math.NaN(), false
	}
	return lo, hi, true
}

// Points returns the coordinates of every value, in the order of Values.
func (v *ValueGrid) Points() []LatLng {
	out := make([]LatLng, 0, len(v.Values))
	dj := 0.0
	if v.Nj > 1 {
		dj = (v.La1 - v.La2) / float64(v.Nj-1)
	}
	di := 0.0
	if v.Ni > 1 {
		di = v.lonSpan() / float64(v.Ni-1)
	}
	for row := 0; row < v.Nj; row++ {
		lat := v.La1 - float64(row)*dj
		for col := 0; col < v.Ni; col++ {
			lng := v.Lo1 + float64(col)*di
			if lng >= 360 {
				lng -= 360
			}
			out = append(out, LatLng{Lat: lat, Lng: lng})
		}
	}
	return out
}
