package section

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/sdifrance/gogrib2/bitio"
	"github.com/sdifrance/gogrib2/internal/gribtest"
	"github.com/sdifrance/gogrib2/scalar"
	"github.com/sdifrance/gogrib2/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIndicatorSection(t *testing.T) {
	raw := gribtest.Concat([]byte("GRIB"), []byte{0, 0, 10, 2}, gribtest.U64(1234))
	s, err := Decode(raw, 0)
	require.NoError(t, err)

	f, ok := s.Field("identifier")
	require.True(t, ok)
	assert.Equal(t, "GRIB", f.Value.Text)

	discipline, ok := s.Field("discipline")
	require.True(t, ok)
	assert.Equal(t, "Oceanographic Products (see Table 4.1)", discipline.Code)

	total, err := s.Int("totalLength")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), total)
}

func TestDecodeGridSection(t *testing.T) {
	raw := gribtest.LatLon{
		Ni: 360, Nj: 181,
		La1: 90000000, Lo1: 0, La2: -90000000, Lo2: 359000000,
		Di: 1000000, Dj: 1000000,
		Scanning: 0x40,
	}.Section3()

	s, err := Decode(raw, 3)
	require.NoError(t, err)
	assert.Equal(t, "3.0", s.Template)
	assert.Equal(t, len(raw), s.Length)

	got, err := s.Ints("ni", "nj", "la1", "lo1", "la2", "lo2", "di", "dj", "numberOfDataPoints")
	require.NoError(t, err)
	assert.Equal(t, []int64{360, 181, 90000000, 0, -90000000, 359000000, 1000000, 1000000, 360 * 181}, got)

	scan, ok := s.Field("scanningMode")
	require.True(t, ok)
	require.Len(t, scan.Flags, 8)
	assert.False(t, scan.Flags[0].Set)
	assert.True(t, scan.Flags[1].Set)
	assert.Equal(t, 2, scan.Flags[1].Bit)
	assert.Equal(t, "1: Points in the first row or column scan in the +j (+y) direction", scan.Flags[1].Description)

	template, ok := s.Field("gridDefinitionTemplateNumber")
	require.True(t, ok)
	assert.Contains(t, template.Code, "Latitude/Longitude")

	list, ok := s.Field("pointList")
	require.True(t, ok)
	assert.Equal(t, 73, list.Start)
	assert.Equal(t, 0, list.Size)
	assert.False(t, s.Has("pointList"))
}

func TestDecodeRegulationFields(t *testing.T) {
	raw := gribtest.Simple{Values: 4, R: 1.5, E: -3, D: -2, Bits: 12}.Section5()
	s, err := Decode(raw, 5)
	require.NoError(t, err)
	assert.Equal(t, "5.0", s.Template)

	e, err := s.Int("binaryScaleFactor")
	require.NoError(t, err)
	assert.Equal(t, int64(-3), e)

	d, err := s.Int("decimalScaleFactor")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), d)

	r, err := s.Float("referenceValue")
	require.NoError(t, err)
	assert.Equal(t, 1.5, r)
}

func TestDecodeShortIdentificationSection(t *testing.T) {
	s, err := Decode(gribtest.Section1(2024, 3, 9, 12, 30, 0), 1)
	require.NoError(t, err)
	got, err := s.Ints("year", "month", "day", "hour", "minute", "second")
	require.NoError(t, err)
	assert.Equal(t, []int64{2024, 3, 9, 12, 30, 0}, got)
	assert.False(t, s.Has("reservedForLocalUse"))
}

func TestDecodeDataSectionUsesRestOfSection(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	s, err := Decode(gribtest.Section7(payload), 7)
	require.NoError(t, err)
	data, err := s.Bytes("data")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDecodeUnknownTemplate(t *testing.T) {
	raw := gribtest.Section5Template(4, 9999, []byte{0, 0, 0})
	s, err := Decode(raw, 5)
	var notFound *tables.TemplateNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "5.9999", notFound.Key())

	// The prefix decoded before the template lookup is still available.
	require.NotNil(t, s)
	n, err := s.Int("numberOfValues")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestDecodeTruncatedSection(t *testing.T) {
	raw := gribtest.Simple{Values: 4, Bits: 8}.Section5()
	_, err := Decode(raw[:len(raw)-3], 5)
	var rangeErr *bitio.RangeError
	assert.True(t, errors.As(err, &rangeErr), "got %v", err)
}

func TestDecodeTemplateShorterThanLayout(t *testing.T) {
	// Declared length 14 cuts the 5.0 template short.
	raw := gribtest.Concat(gribtest.U32(14), gribtest.U8(5), gribtest.U32(4), gribtest.U16(0), gribtest.F32(1))
	_, err := Decode(raw, 5)
	var rangeErr *bitio.RangeError
	assert.True(t, errors.As(err, &rangeErr), "got %v", err)
}

// TestDecodeCalcSize checks sizes computed from earlier fields and fields
// that start right after the previous one.
func TestDecodeCalcSize(t *testing.T) {
	reg, err := tables.Load(fstest.MapFS{
		"codetables.yaml": {Data: []byte(`"9.0": {1: "one"}`)},
		"flagtables.yaml": {Data: []byte(`{}`)},
		"sections.yaml": {Data: []byte(`
"2":
  - {name: sectionLength, start: 1, size: 4, type: uint32}
  - {name: sectionNumber, start: 5, size: 1, type: uint8}
  - {name: kind, start: 6, size: 1, type: uint8, table: "9.0"}
  - {templateRef: {section: 9, field: 6}}
`)},
		"templates.yaml": {Data: []byte(`
"9.1":
  - {name: count, start: 7, size: 1, type: uint8}
  - {name: items, start: 8, size: {calc: 7, multiplier: 2}, type: bytes}
  - {name: trailer, start: next, size: end, type: bytes}
`)},
	})
	require.NoError(t, err)

	raw := gribtest.Section(2, gribtest.U8(1), gribtest.U8(3), []byte{1, 2, 3, 4, 5, 6}, []byte{9, 9})
	s, err := NewDecoder(reg).Decode(raw, 2)
	require.NoError(t, err)
	assert.Equal(t, "9.1", s.Template)

	kind, _ := s.Field("kind")
	assert.Equal(t, "one", kind.Code)

	items, ok := s.Field("items")
	require.True(t, ok)
	assert.Equal(t, 6, items.Size)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, items.Value.Raw)

	trailer, ok := s.Field("trailer")
	require.True(t, ok)
	assert.Equal(t, 14, trailer.Start)
	assert.Equal(t, []byte{9, 9}, trailer.Value.Raw)
	assert.Equal(t, scalar.Bytes, trailer.Type)
}

func TestDecodeCalcSizeOverflow(t *testing.T) {
	reg, err := tables.Load(fstest.MapFS{
		"codetables.yaml": {Data: []byte(`{}`)},
		"flagtables.yaml": {Data: []byte(`{}`)},
		"sections.yaml": {Data: []byte(`
"2":
  - {name: sectionLength, start: 1, size: 4, type: uint32}
  - {name: sectionNumber, start: 5, size: 1, type: uint8}
  - {name: count, start: 6, size: 8, type: uint64}
  - {name: items, start: 14, size: {calc: 6, multiplier: 4}, type: bytes}
`)},
		"templates.yaml": {Data: []byte(`{}`)},
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		count uint64
	}{
		{"product wrapping to zero", 1 << 62},
		{"product overflowing int", 1<<62 + 1},
		{"size past the section", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := gribtest.Section(2, gribtest.U64(tt.count), []byte{1, 2, 3, 4})
			_, err := NewDecoder(reg).Decode(raw, 2)
			var rangeErr *bitio.RangeError
			assert.True(t, errors.As(err, &rangeErr), "got %v", err)
		})
	}
}

func TestFieldAccessErrors(t *testing.T) {
	s, err := Decode(gribtest.Section7([]byte{1}), 7)
	require.NoError(t, err)

	_, err = s.Int("missing")
	assert.Error(t, err)
	_, err = s.Float("data")
	assert.Error(t, err)
	_, err = s.Bytes("missing")
	assert.Error(t, err)
}
