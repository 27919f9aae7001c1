package unpack

import (
	"errors"
	"testing"

	"github.com/sdifrance/gogrib2/internal/gribtest"
	"github.com/sdifrance/gogrib2/scalar"
	"github.com/sdifrance/gogrib2/section"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSections(t *testing.T, sec5, sec6, sec7 []byte) (*section.Section, *section.Section, *section.Section) {
	t.Helper()
	s5, err := section.Decode(sec5, 5)
	require.NoError(t, err)
	s6, err := section.Decode(sec6, 6)
	require.NoError(t, err)
	s7, err := section.Decode(sec7, 7)
	require.NoError(t, err)
	return s5, s6, s7
}

func TestDecode(t *testing.T) {
	complexSection := gribtest.Complex{
		Simple:           gribtest.Simple{Values: 7, Bits: 8},
		SplittingMethod:  1,
		Groups:           2,
		WidthBits:        4,
		LengthReference:  1,
		LengthIncrement:  1,
		LastGroupLength:  3,
		ScaledLengthBits: 4,
	}
	_, complexData := twoGroups()

	minimum, packed := encodeDifferences([]int64{100, 103, 101, 108, 108}, 1)
	_, differencedData := differenced(1, []int64{100}, minimum, packed)
	differencedSection := gribtest.Complex{
		Simple:            gribtest.Simple{Values: 5, Bits: 8},
		SplittingMethod:   1,
		Groups:            1,
		WidthBits:         4,
		LengthReference:   5,
		LastGroupLength:   5,
		Order:             1,
		ExtraDescriptorsN: 2,
	}.Section5()

	tests := []struct {
		name     string
		sec5     []byte
		sec6     []byte
		data     []byte
		total    int
		template int
		want     []float64
	}{
		{
			name:     "simple",
			sec5:     gribtest.Simple{Values: 4, R: 1, Bits: 8}.Section5(),
			sec6:     gribtest.Section6(255, nil),
			data:     []byte{1, 2, 3, 4},
			total:    4,
			template: 0,
			want:     []float64{2, 3, 4, 5},
		},
		{
			name:     "simple scaled",
			sec5:     gribtest.Simple{Values: 2, R: 10, E: 1, D: 1, Bits: 4}.Section5(),
			sec6:     gribtest.Section6(255, nil),
			data:     gribtest.Pack([]uint64{0, 5}, 4),
			total:    2,
			template: 0,
			want:     []float64{1, 2},
		},
		{
			name:     "complex",
			sec5:     complexSection.Section5(),
			sec6:     gribtest.Section6(255, nil),
			data:     complexData,
			total:    7,
			template: 2,
			want:     []float64{10, 11, 15, 17, 42, 42, 42},
		},
		{
			name:     "spatial differencing",
			sec5:     differencedSection,
			sec6:     gribtest.Section6(255, nil),
			data:     differencedData,
			total:    5,
			template: 3,
			want:     []float64{100, 103, 101, 108, 108},
		},
		{
			name:     "ieee",
			sec5:     gribtest.Section5IEEE(2, 1),
			sec6:     gribtest.Section6(255, nil),
			data:     gribtest.Concat(gribtest.F32(-1.25), gribtest.F32(3)),
			total:    2,
			template: 4,
			want:     []float64{-1.25, 3},
		},
		{
			name:     "logarithmic",
			sec5:     gribtest.Simple{Values: 1, Bits: 8}.Section5Log(0.5),
			sec6:     gribtest.Section6(255, nil),
			data:     []byte{0},
			total:    1,
			template: 61,
			want:     []float64{0.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s5, s6, s7 := decodeSections(t, tt.sec5, tt.sec6, gribtest.Section7(tt.data))
			f, err := Decode(s5, s6, s7, tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.template, f.Template)
			assert.Empty(t, f.Warnings)
			require.Len(t, f.Values, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], f.Values[i], 1e-9, "value %d", i)
			}
		})
	}
}

func TestDecodeParams(t *testing.T) {
	s5, s6, s7 := decodeSections(t,
		gribtest.Simple{Values: 1, R: 2.5, E: -1, D: 2, Bits: 8}.Section5(),
		gribtest.Section6(255, nil),
		gribtest.Section7([]byte{0}),
	)
	f, err := Decode(s5, s6, s7, 1)
	require.NoError(t, err)
	assert.Equal(t, Params{R: 2.5, E: -1, D: 2, Bits: 8}, f.Params)
}

func TestDecodeWithBitmap(t *testing.T) {
	s5, s6, s7 := decodeSections(t,
		gribtest.Simple{Values: 2, Bits: 8}.Section5(),
		gribtest.Section6(0, gribtest.Pack([]uint64{1, 0, 0, 1}, 1)),
		gribtest.Section7([]byte{7, 9}),
	)
	f, err := Decode(s5, s6, s7, 4)
	require.NoError(t, err)
	assert.Empty(t, f.Warnings)
	require.Len(t, f.Values, 4)
	assert.Equal(t, 7.0, f.Values[0])
	assert.True(t, IsMissing(f.Values[1]))
	assert.True(t, IsMissing(f.Values[2]))
	assert.Equal(t, 9.0, f.Values[3])
}

func TestDecodeCountMismatchWarns(t *testing.T) {
	s5, s6, s7 := decodeSections(t,
		gribtest.Simple{Values: 3, Bits: 8}.Section5(),
		gribtest.Section6(255, nil),
		gribtest.Section7([]byte{1, 2, 3}),
	)
	f, err := Decode(s5, s6, s7, 4)
	require.NoError(t, err)
	require.Len(t, f.Warnings, 1)
	assert.Contains(t, f.Warnings[0], "declares 3 values")
	assert.Len(t, f.Values, 3)
}

func TestDecodeUnsupported(t *testing.T) {
	jpeg := gribtest.Section5Template(4, 40,
		gribtest.F32(0), gribtest.SM(0, 2), gribtest.SM(0, 2), gribtest.U8(8), gribtest.U8(0), gribtest.U8(0), gribtest.U8(255))
	simple := gribtest.Simple{Values: 4, Bits: 8}.Section5()

	tests := []struct {
		name        string
		sec5        []byte
		sec6        []byte
		wantSection int
	}{
		{"jpeg2000", jpeg, gribtest.Section6(255, nil), 5},
		{"predetermined bitmap", simple, gribtest.Section6(3, nil), 6},
		{"previous bitmap", simple, gribtest.Section6(254, nil), 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s5, s6, s7 := decodeSections(t, tt.sec5, tt.sec6, gribtest.Section7([]byte{1, 2, 3, 4}))
			_, err := Decode(s5, s6, s7, 4)
			var unsupported *scalar.UnsupportedFeatureError
			assert.True(t, errors.As(err, &unsupported), "got %v", err)
			var sectionErr *Error
			require.True(t, errors.As(err, &sectionErr))
			assert.Equal(t, tt.wantSection, sectionErr.Section)
		})
	}
}

func TestDecodeShortData(t *testing.T) {
	s5, s6, s7 := decodeSections(t,
		gribtest.Simple{Values: 4, Bits: 8}.Section5(),
		gribtest.Section6(255, nil),
		gribtest.Section7([]byte{1, 2}),
	)
	_, err := Decode(s5, s6, s7, 4)
	var sectionErr *Error
	require.True(t, errors.As(err, &sectionErr), "got %v", err)
	assert.Equal(t, 7, sectionErr.Section)
}
