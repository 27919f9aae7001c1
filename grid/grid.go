// Package grid describes the geometry of a GRIB2 grid definition section and
// arranges decoded values on it.
//
// Latitude/longitude grids (templates 3.0 and 3.1) are normalized so that the
// first value is the north-west corner and rows run west to east, north to
// south. Other templates only expose their point counts.
package grid

import (
	"fmt"
	"math"

	"github.com/golang/glog"
	"github.com/sdifrance/gogrib2/scalar"
	"github.com/sdifrance/gogrib2/section"
)

const missing32 = 0xffffffff

// Grid is the geometry described by Section 3. Angles are in degrees.
type Grid struct {
	// Template is the grid definition template number.
	Template int
	// Points is the number of data points declared by Section 3.
	Points int

	Ni, Nj   int
	La1, Lo1 float64
	La2, Lo2 float64
	Di, Dj   float64

	Resolution ResolutionFlags
	Scanning   ScanningMode

	// Rotation is set for rotated latitude/longitude grids.
	Rotation *Rotation
}

// Rotation describes the south pole of a rotated latitude/longitude grid.
type Rotation struct {
	SouthPoleLat float64
	SouthPoleLon float64
	Angle        float64
}

// LatLng is a point on a grid.
type LatLng struct {
	Lat, Lng float64
}

func (ll LatLng) String() string {
	return fmt.Sprintf("%f, %f", ll.Lat, ll.Lng)
}

// FromSection builds a Grid from a decoded Section 3. The returned warnings
// list recoverable inconsistencies.
func FromSection(sec3 *section.Section) (*Grid, []string, error) {
	ints, err := sec3.Ints("gridDefinitionTemplateNumber", "numberOfDataPoints")
	if err != nil {
		return nil, nil, err
	}
	g := &Grid{Template: int(ints[0]), Points: int(ints[1])}
	var warnings []string
	warnf := func(format string, args ...interface{}) {
		w := fmt.Sprintf(format, args...)
		glog.Warning(w)
		warnings = append(warnings, w)
	}

	switch {
	case sec3.Has("ni"):
		counts, err := sec3.Ints("ni", "nj")
		if err != nil {
			return nil, nil, err
		}
		g.Ni, g.Nj = int(counts[0]), int(counts[1])
	case sec3.Has("nx"):
		counts, err := sec3.Ints("nx", "ny")
		if err != nil {
			return nil, nil, err
		}
		g.Ni, g.Nj = int(counts[0]), int(counts[1])
	}
	if g.Ni != 0 && g.Ni*g.Nj != g.Points {
		warnf("grid declares %d points, Ni*Nj = %d*%d = %d", g.Points, g.Ni, g.Nj, g.Ni*g.Nj)
	}
	if sec3.Has("scanningMode") {
		mode, err := sec3.Int("scanningMode")
		if err != nil {
			return nil, nil, err
		}
		g.Scanning = ScanningMode(mode)
	}
	if !g.LatLon() {
		return g, warnings, nil
	}

	unit := angleUnit(sec3)
	v, err := sec3.Ints("la1", "lo1", "la2", "lo2", "di", "dj", "resolutionAndComponentFlags")
	if err != nil {
		return nil, nil, err
	}
	g.La1, g.Lo1 = float64(v[0])*unit, float64(v[1])*unit
	g.La2, g.Lo2 = float64(v[2])*unit, float64(v[3])*unit
	g.Resolution = ResolutionFlags(v[6])

	if g.Resolution.IIncrementsGiven() && v[4] != missing32 {
		g.Di = float64(v[4]) * unit
	} else if g.Ni > 1 {
		g.Di = g.lonSpan() / float64(g.Ni-1)
	}
	if g.Resolution.JIncrementsGiven() && v[5] != missing32 {
		g.Dj = float64(v[5]) * unit
	} else if g.Nj > 1 {
		g.Dj = math.Abs(g.La1-g.La2) / float64(g.Nj-1)
	}

	if g.Template == 1 {
		r, err := sec3.Ints("latitudeOfSouthernPole", "longitudeOfSouthernPole", "angleOfRotation")
		if err != nil {
			return nil, nil, err
		}
		g.Rotation = &Rotation{
			SouthPoleLat: float64(r[0]) * unit,
			SouthPoleLon: float64(r[1]) * unit,
			Angle:        float64(r[2]) * unit,
		}
	}
	return g, warnings, nil
}

// angleUnit returns the size in degrees of one unit of the angles of a
// latitude/longitude template: 10^-6 unless a basic angle and subdivisions
// are given.
func angleUnit(sec3 *section.Section) float64 {
	v, err := sec3.Ints("basicAngleOfTheInitialProductionDomain", "subdivisionsOfBasicAngle")
	if err != nil {
		return 1e-6
	}
	basic, subdivisions := v[0], v[1]
	if basic == 0 || basic == missing32 || subdivisions == 0 || subdivisions == missing32 {
		return 1e-6
	}
	return float64(basic) / float64(subdivisions)
}

// LatLon reports whether g is a regular or rotated latitude/longitude grid.
func (g *Grid) LatLon() bool {
	return g.Template == 0 || g.Template == 1
}

// lonSpan returns the eastward extent from Lo1 to Lo2 in [0, 360).
func (g *Grid) lonSpan() float64 {
	return wrap360(g.Lo2 - g.Lo1)
}

func wrap360(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// Global reports whether the rows of g wrap around the earth.
func (g *Grid) Global() bool {
	return g.Di > 0 && math.Abs(float64(g.Ni)*g.Di-360) < g.Di/2
}

// Normalize arranges values, given in the scanning order of g, so that the
// first row is the northernmost. The returned ValueGrid carries a copy of g
// whose La1 is the north edge.
//
// Scanning modes that cannot be normalized, and grids other than
// latitude/longitude, return a *scalar.UnsupportedFeatureError.
func (g *Grid) Normalize(values []float64) (*ValueGrid, []string, error) {
	if !g.LatLon() {
		return nil, nil, &scalar.UnsupportedFeatureError{Feature: fmt.Sprintf("grid definition template 3.%d", g.Template)}
	}
	if err := g.Scanning.Validate(); err != nil {
		return nil, nil, err
	}
	if len(values) != g.Ni*g.Nj {
		return nil, nil, fmt.Errorf("%d values do not fill a %d x %d grid", len(values), g.Ni, g.Nj)
	}

	var warnings []string
	out := *g
	if g.Scanning.JOffset() {
		jDir := -1.0
		if g.Scanning.PlusJ() {
			jDir = 1
		}
		out.La1 += jDir * g.Dj / 2
		out.La2 += jDir * g.Dj / 2
	}
	if g.Scanning.ReducedRowsCount() {
		w := "scanning mode bit 8 is set, rows and columns are assumed to hold Ni and Nj points"
		glog.Warning(w)
		warnings = append(warnings, w)
	}

	southFirst := out.La1 < out.La2 || (out.La1 == out.La2 && g.Scanning.PlusJ())
	if out.La1 != out.La2 && southFirst != g.Scanning.PlusJ() {
		w := fmt.Sprintf("scanning mode %s disagrees with La1 %g and La2 %g, following the latitudes", g.Scanning, g.La1, g.La2)
		glog.Warning(w)
		warnings = append(warnings, w)
	}

	normalized := make([]float64, len(values))
	if southFirst {
		for row := 0; row < g.Nj; row++ {
			src := values[(g.Nj-1-row)*g.Ni : (g.Nj-row)*g.Ni]
			copy(normalized[row*g.Ni:], src)
		}
		out.La1, out.La2 = out.La2, out.La1
	} else {
		copy(normalized, values)
	}
	out.Scanning &^= scanPlusJ
	return &ValueGrid{Grid: out, Values: normalized}, warnings, nil
}
