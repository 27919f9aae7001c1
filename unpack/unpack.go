// Package unpack reconstructs the physical values of a GRIB2 data section.
//
// Packed values are integers X turned into physical values Y by regulation
// 92.9.4 (https://library.wmo.int/doc_num.php?explnum_id=11283):
//
//	Y * 10^D = R + X * 2^E
//
// where R is the reference value, E the binary scale factor and D the decimal
// scale factor, all found in Section 5.
package unpack

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/glog"
	"github.com/sdifrance/gogrib2/bitio"
	"github.com/sdifrance/gogrib2/scalar"
)

// MaxValues bounds the number of values a single field may decode to.
const MaxValues = 1 << 28

// Missing marks a grid point without a value.
var Missing = math.NaN()

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Params are the compression parameters shared by the packing templates.
type Params struct {
	// R is the reference value.
	R float32
	// E is the binary scale factor.
	E int
	// D is the decimal scale factor.
	D int
	// Bits is the number of bits per packed value, or per group reference
	// value for complex packing.
	Bits int
}

// Decompress returns (R + x*2^E) / 10^D.
func (p Params) Decompress(x float64) float64 {
	return (float64(p.R) + x*math.Ldexp(1, p.E)) / math.Pow(10, float64(p.D))
}

// decompressor precomputes the scale factors of p.
func (p Params) decompressor() func(x float64) float64 {
	r := float64(p.R)
	e := math.Ldexp(1, p.E)
	d := math.Pow(10, float64(p.D))
	return func(x float64) float64 { return (r + x*e) / d }
}

// Warnings lists recoverable inconsistencies found while unpacking.
type Warnings []string

func (w *Warnings) add(format string, args ...interface{}) {
	s := fmt.Sprintf(format, args...)
	glog.Warning(s)
	*w = append(*w, s)
}

func checkCount(n int) error {
	if n < 0 || n > MaxValues {
		return fmt.Errorf("value count %d outside [0, %d]", n, MaxValues)
	}
	return nil
}

// Simple decodes n values packed with template 5.0. A bit width of 0 yields
// n copies of R / 10^D.
func Simple(p Params, data []byte, n int) ([]float64, error) {
	if err := checkCount(n); err != nil {
		return nil, err
	}
	raw, _, err := bitio.ReadUints(data, p.Bits, n, 0)
	if err != nil {
		return nil, fmt.Errorf("simple packing: %w", err)
	}
	decompress := p.decompressor()
	out := make([]float64, n)
	for i, x := range raw {
		out[i] = decompress(float64(x))
	}
	return out, nil
}

// Logarithmic decodes template 5.61: simple packing of log(Y + b).
func Logarithmic(p Params, b float64, data []byte, n int) ([]float64, error) {
	out, err := Simple(p, data, n)
	if err != nil {
		return nil, err
	}
	for i, v := range out {
		out[i] = math.Exp(v) - b
	}
	return out, nil
}

// Precision values of code table 5.7.
const (
	PrecisionSingle    = 1
	PrecisionDouble    = 2
	PrecisionQuadruple = 3
)

// IEEE decodes n big-endian floating point values stored with template 5.4.
func IEEE(precision int, data []byte, n int) ([]float64, error) {
	if err := checkCount(n); err != nil {
		return nil, err
	}
	var size int
	switch precision {
	case PrecisionSingle:
		size = 4
	case PrecisionDouble:
		size = 8
	case PrecisionQuadruple:
		return nil, &scalar.UnsupportedFeatureError{Feature: "128-bit IEEE floating point data"}
	default:
		return nil, fmt.Errorf("IEEE precision %d is not defined", precision)
	}
	if need := n * size; len(data) < need {
		return nil, &bitio.RangeError{Need: need, Have: len(data)}
	}
	out := make([]float64, n)
	for i := range out {
		b := data[i*size:]
		if size == 4 {
			out[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
		} else {
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(b))
		}
	}
	return out, nil
}

// ApplyBitmap scatters values over total grid points: each set bit of bitmap
// takes the next value, each cleared bit is Missing.
//
// When the number of set bits differs from len(values), surplus values are
// dropped and points without a value are Missing.
func ApplyBitmap(values []float64, bitmap []byte, total int) ([]float64, Warnings, error) {
	if err := checkCount(total); err != nil {
		return nil, nil, err
	}
	bits, _, err := bitio.ReadUints(bitmap, 1, total, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("bitmap: %w", err)
	}
	var warnings Warnings
	out := make([]float64, total)
	next := 0
	for i, b := range bits {
		if b == 0 {
			out[i] = Missing
			continue
		}
		if next < len(values) {
			out[i] = values[next]
		} else {
			out[i] = Missing
		}
		next++
	}
	if next != len(values) {
		warnings.add("bitmap marks %d points present, data section holds %d values", next, len(values))
	}
	return out, warnings, nil
}
