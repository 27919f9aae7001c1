package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/sdifrance/gogrib2/internal/gribtest"
	"github.com/sdifrance/gogrib2/scalar"
	"github.com/sdifrance/gogrib2/section"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode3(t *testing.T, raw []byte) *section.Section {
	t.Helper()
	s, err := section.Decode(raw, 3)
	require.NoError(t, err)
	return s
}

func TestFromSection(t *testing.T) {
	s := decode3(t, gribtest.LatLon{
		Ni: 360, Nj: 181,
		La1: 90000000, Lo1: 0, La2: -90000000, Lo2: 359000000,
		Di: 1000000, Dj: 1000000,
	}.Section3())

	g, warnings, err := FromSection(s)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 0, g.Template)
	assert.Equal(t, 360*181, g.Points)
	assert.Equal(t, 360, g.Ni)
	assert.Equal(t, 181, g.Nj)
	assert.InDelta(t, 90, g.La1, 1e-9)
	assert.InDelta(t, -90, g.La2, 1e-9)
	assert.InDelta(t, 0, g.Lo1, 1e-9)
	assert.InDelta(t, 359, g.Lo2, 1e-9)
	assert.InDelta(t, 1, g.Di, 1e-9)
	assert.InDelta(t, 1, g.Dj, 1e-9)
	assert.True(t, g.Resolution.IIncrementsGiven())
	assert.True(t, g.Resolution.JIncrementsGiven())
	assert.False(t, g.Resolution.VectorsGridRelative())
	assert.True(t, g.Global())
	assert.Nil(t, g.Rotation)
}

func TestFromSectionPointCountMismatch(t *testing.T) {
	s := decode3(t, gribtest.LatLon{Ni: 2, Nj: 2, Di: 1000000, Dj: 1000000, Points: 5}.Section3())
	g, warnings, err := FromSection(s)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Points)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "declares 5 points")
}

func TestFromSectionMissingIncrements(t *testing.T) {
	s := decode3(t, gribtest.LatLon{
		Ni: 4, Nj: 3,
		La1: 10000000, Lo1: 0, La2: 6000000, Lo2: 3000000,
		Di: 0xffffffff, Dj: 0xffffffff,
	}.Section3())
	g, _, err := FromSection(s)
	require.NoError(t, err)
	assert.InDelta(t, 1, g.Di, 1e-9)
	assert.InDelta(t, 2, g.Dj, 1e-9)
}

func TestFromSectionRotated(t *testing.T) {
	raw := gribtest.LatLon{Ni: 2, Nj: 2, Di: 1000000, Dj: 1000000}.Section3()
	body := append([]byte(nil), raw[5:]...)
	// Octets 13-14 hold the template number.
	body[7], body[8] = 0, 1
	s := decode3(t, gribtest.Section(3, body, gribtest.SM(-40000000, 4), gribtest.SM(10000000, 4), gribtest.SM(0, 4)))

	g, _, err := FromSection(s)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Template)
	require.NotNil(t, g.Rotation)
	assert.InDelta(t, -40, g.Rotation.SouthPoleLat, 1e-9)
	assert.InDelta(t, 10, g.Rotation.SouthPoleLon, 1e-9)
	assert.True(t, g.LatLon())
}

func square(la1, la2 float64, mode ScanningMode) *Grid {
	return &Grid{Template: 0, Points: 4, Ni: 2, Nj: 2, La1: la1, La2: la2, Lo1: 0, Lo2: 1, Di: 1, Dj: 1, Scanning: mode}
}

func TestNormalizeFlip(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	tests := []struct {
		name      string
		g         *Grid
		want      []float64
		wantLa1   float64
		wantWarns int
	}{
		{"south to north, +j", square(0, 1, scanPlusJ), []float64{3, 4, 1, 2}, 1, 0},
		{"south to north, -j", square(0, 1, 0), []float64{3, 4, 1, 2}, 1, 1},
		{"north to south, -j", square(1, 0, 0), []float64{1, 2, 3, 4}, 1, 0},
		{"north to south, +j", square(1, 0, scanPlusJ), []float64{1, 2, 3, 4}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vg, warnings, err := tt.g.Normalize(values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, vg.Values)
			assert.Equal(t, tt.wantLa1, vg.La1)
			assert.Len(t, warnings, tt.wantWarns)
			assert.False(t, vg.Scanning.PlusJ())
		})
	}
	assert.Equal(t, []float64{1, 2, 3, 4}, values, "input is not modified")
}

func TestNormalizeJOffset(t *testing.T) {
	g := &Grid{Template: 0, Ni: 1, Nj: 3, La1: 10, La2: 8, Dj: 1, Scanning: scanJOffset}
	vg, _, err := g.Normalize([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 9.5, vg.La1)
	assert.Equal(t, 7.5, vg.La2)

	g = &Grid{Template: 0, Ni: 1, Nj: 3, La1: 8, La2: 10, Dj: 1, Scanning: scanJOffset | scanPlusJ}
	vg, _, err = g.Normalize([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 10.5, vg.La1)
	assert.Equal(t, 8.5, vg.La2)
	assert.Equal(t, []float64{3, 2, 1}, vg.Values)
}

func TestNormalizeUnsupported(t *testing.T) {
	tests := []struct {
		name string
		g    *Grid
	}{
		{"-i", square(1, 0, scanMinusI)},
		{"j consecutive", square(1, 0, scanJConsecutive)},
		{"boustrophedonic", square(1, 0, scanBoustrophedonic)},
		{"odd rows offset", square(1, 0, scanOddRowsOffset)},
		{"even rows offset", square(1, 0, scanEvenRowsOffset)},
		{"lambert conformal", &Grid{Template: 30, Ni: 2, Nj: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.g.Normalize([]float64{1, 2, 3, 4})
			var unsupported *scalar.UnsupportedFeatureError
			assert.True(t, errors.As(err, &unsupported), "got %v", err)
		})
	}
}

func TestNormalizeWarnings(t *testing.T) {
	_, warnings, err := square(1, 0, scanReducedRowsCount).Normalize([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	_, _, err = square(1, 0, 0).Normalize([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestScanningModeString(t *testing.T) {
	assert.Equal(t, "(+i, +j, iDirAdj)", ScanningMode(0x40).String())
	assert.Equal(t, "(-i, -j, jDirAdj)", ScanningMode(0xa0).String())
	assert.Equal(t, "(+i, -j, iDirAdj, boustrophedonic, j offset)", ScanningMode(0x12).String())
	assert.NoError(t, ScanningMode(0x43).Validate())
}

func testValueGrid() *ValueGrid {
	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(i)
	}
	values[6] = math.NaN()
	return &ValueGrid{
		Grid:   Grid{Template: 0, Ni: 4, Nj: 3, La1: 10, La2: 8, Lo1: 0, Lo2: 3, Di: 1, Dj: 1},
		Values: values,
	}
}

func TestValueAt(t *testing.T) {
	vg := testValueGrid()
	tests := []struct {
		name     string
		lon, lat float64
		want     float64
		ok       bool
	}{
		{"north-west corner", 0, 10, 0, true},
		{"nearest", 1.2, 9.4, 5, true},
		{"south-east corner", 3.4, 8, 11, true},
		{"east of grid", 3.6, 8, 0, false},
		{"just west of grid", -0.3, 10, 0, true},
		{"north of grid", 1, 10.6, 0, false},
		{"missing point", 2, 9, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := vg.ValueAt(tt.lon, tt.lat)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValueAtGlobalWrap(t *testing.T) {
	vg := &ValueGrid{
		Grid:   Grid{Template: 0, Ni: 4, Nj: 1, La1: 0, La2: 0, Lo1: 0, Lo2: 270, Di: 90, Dj: 1},
		Values: []float64{1, 2, 3, 4},
	}
	got, ok := vg.ValueAt(350, 0)
	require.True(t, ok)
	assert.Equal(t, 1.0, got)

	got, ok = vg.ValueAt(-100, 0.2)
	require.True(t, ok)
	assert.Equal(t, 4.0, got)
}

func TestRange(t *testing.T) {
	vg := &ValueGrid{Values: []float64{math.NaN(), 3, -1, 7}}
	lo, hi, ok := vg.Range()
	require.True(t, ok)
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 7.0, hi)

	_, _, ok = (&ValueGrid{Values: []float64{math.NaN()}}).Range()
	assert.False(t, ok)
}

func TestPoints(t *testing.T) {
	vg := &ValueGrid{
		Grid:   Grid{Template: 0, Ni: 2, Nj: 2, La1: 10, La2: 9, Lo1: 359, Lo2: 0},
		Values: make([]float64, 4),
	}
	assert.Equal(t, []LatLng{{10, 359}, {10, 0}, {9, 359}, {9, 0}}, vg.Points())
}
