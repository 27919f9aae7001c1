package unpack

import (
	"fmt"

	"github.com/sdifrance/gogrib2/scalar"
	"github.com/sdifrance/gogrib2/section"
)

// Bit-map indicators, code table 6.0.
const (
	BitmapPresent  = 0
	BitmapPrevious = 254
	BitmapNone     = 255
)

// Field is an unpacked data field.
type Field struct {
	// Template is the data representation template number.
	Template int
	// Params is the zero value for IEEE data.
	Params Params
	// Values holds one value per grid point, Missing where the bitmap
	// clears the point.
	Values   []float64
	Warnings Warnings
}

// Error attributes an unpacking failure to the section whose content caused
// it.
type Error struct {
	Section int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("section %d: %v", e.Section, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func sectionError(number int, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Section: number, Err: err}
}

// Decode unpacks the data section sec7 described by sec5 and sec6 into total
// grid points. Errors are returned as *Error.
//
// Templates and bitmaps this package does not decode return a
// *scalar.UnsupportedFeatureError wrapped in an *Error.
func Decode(sec5, sec6, sec7 *section.Section, total int) (*Field, error) {
	template, err := sec5.Int("dataRepresentationTemplateNumber")
	if err != nil {
		return nil, sectionError(5, err)
	}
	n64, err := sec5.Int("numberOfValues")
	if err != nil {
		return nil, sectionError(5, err)
	}
	n := int(n64)
	f := &Field{Template: int(template)}

	bitmap, err := readBitmap(sec6)
	if err != nil {
		return nil, sectionError(6, err)
	}
	if bitmap == nil && n != total {
		f.Warnings.add("Section 5 declares %d values, grid has %d points", n, total)
	}

	data, err := sec7.Bytes("data")
	if err != nil {
		return nil, sectionError(7, err)
	}

	var values []float64
	var warnings Warnings
	switch template {
	case 0:
		if f.Params, err = readParams(sec5); err != nil {
			return nil, sectionError(5, err)
		}
		values, err = Simple(f.Params, data, n)
	case 2, 3:
		var c ComplexParams
		if c, err = readComplexParams(sec5); err != nil {
			return nil, sectionError(5, err)
		}
		f.Params = c.Params
		if template == 2 {
			values, warnings, err = Complex(c, data, n)
		} else {
			values, warnings, err = SpatialDifferencing(c, data, n)
		}
	case 4:
		var precision int64
		if precision, err = sec5.Int("precisionOfFloatingPointNumbers"); err != nil {
			return nil, sectionError(5, err)
		}
		values, err = IEEE(int(precision), data, n)
	case 61:
		if f.Params, err = readParams(sec5); err != nil {
			return nil, sectionError(5, err)
		}
		var b float64
		if b, err = sec5.Float("preProcessingParameter"); err != nil {
			return nil, sectionError(5, err)
		}
		values, err = Logarithmic(f.Params, b, data, n)
	default:
		return nil, sectionError(5, &scalar.UnsupportedFeatureError{Feature: fmt.Sprintf("data representation template 5.%d", template)})
	}
	f.Warnings = append(f.Warnings, warnings...)
	if err != nil {
		return nil, sectionError(7, err)
	}

	if bitmap != nil {
		values, warnings, err = ApplyBitmap(values, bitmap, total)
		f.Warnings = append(f.Warnings, warnings...)
		if err != nil {
			return nil, sectionError(6, err)
		}
	}
	f.Values = values
	return f, nil
}

// readBitmap returns the embedded bitmap of sec6, or nil when no bitmap
// applies.
func readBitmap(sec6 *section.Section) ([]byte, error) {
	indicator, err := sec6.Int("bitMapIndicator")
	if err != nil {
		return nil, err
	}
	switch {
	case indicator == BitmapNone:
		return nil, nil
	case indicator == BitmapPresent:
		return sec6.Bytes("bitmap")
	case indicator == BitmapPrevious:
		return nil, &scalar.UnsupportedFeatureError{Feature: "bitmap defined by an earlier field"}
	}
	return nil, &scalar.UnsupportedFeatureError{Feature: fmt.Sprintf("predetermined bitmap %d", indicator)}
}

func readParams(sec5 *section.Section) (Params, error) {
	r, err := sec5.Float("referenceValue")
	if err != nil {
		return Params{}, err
	}
	ints, err := sec5.Ints("binaryScaleFactor", "decimalScaleFactor", "bitsPerValue")
	if err != nil {
		return Params{}, err
	}
	return Params{R: float32(r), E: int(ints[0]), D: int(ints[1]), Bits: int(ints[2])}, nil
}

func readComplexParams(sec5 *section.Section) (ComplexParams, error) {
	p, err := readParams(sec5)
	if err != nil {
		return ComplexParams{}, err
	}
	ints, err := sec5.Ints(
		"groupSplittingMethodUsed",
		"missingValueManagementUsed",
		"numberOfGroupsOfDataValues",
		"referenceForGroupWidths",
		"numberOfBitsUsedForTheGroupWidths",
		"referenceForGroupLengths",
		"lengthIncrementForTheGroupLengths",
		"trueLengthOfLastGroup",
		"numberOfBitsForScaledGroupLengths",
	)
	if err != nil {
		return ComplexParams{}, err
	}
	c := ComplexParams{
		Params:            p,
		SplittingMethod:   int(ints[0]),
		MissingManagement: int(ints[1]),
		Groups:            int(ints[2]),
		WidthReference:    int(ints[3]),
		WidthBits:         int(ints[4]),
		LengthReference:   int(ints[5]),
		LengthIncrement:   int(ints[6]),
		LastGroupLength:   int(ints[7]),
		ScaledLengthBits:  int(ints[8]),
	}
	if sec5.Has("orderOfSpatialDifferencing") {
		extra, err := sec5.Ints("orderOfSpatialDifferencing", "numberOfOctetsExtraDescriptors")
		if err != nil {
			return ComplexParams{}, err
		}
		c.Order, c.ExtraOctets = int(extra[0]), int(extra[1])
	}
	return c, nil
}
