package unpack

import (
	"fmt"

	"github.com/sdifrance/gogrib2/bitio"
	"github.com/sdifrance/gogrib2/scalar"
)

// Missing value management, code table 5.5.
const (
	NoMissingValues        = 0
	PrimaryMissingValues   = 1
	SecondaryMissingValues = 2
)

// ComplexParams holds the fields of templates 5.2 and 5.3.
type ComplexParams struct {
	Params

	SplittingMethod   int
	MissingManagement int

	// Groups is NG, the number of groups.
	Groups           int
	WidthReference   int
	WidthBits        int
	LengthReference  int
	LengthIncrement  int
	LastGroupLength  int
	ScaledLengthBits int

	// Order and ExtraOctets are only used by spatial differencing.
	Order       int
	ExtraOctets int
}

// groups is the unpacked group layout of template 7.2.
type groups struct {
	refs    []uint32
	widths  []int
	lengths []int
	total   int
}

// groupSlack is how many values the groups may hold beyond the declared
// count before the layout is rejected.
const groupSlack = 64

// readGroups reads the three octet-aligned group arrays at the start of data
// and returns them with the rest of data, which holds the packed deviations.
// The groups may hold at most limit values.
func (c ComplexParams) readGroups(data []byte, limit int, warnings *Warnings) (*groups, []byte, error) {
	ng := c.Groups
	if ng < 0 || ng > MaxValues {
		return nil, nil, fmt.Errorf("number of groups %d outside [0, %d]", ng, MaxValues)
	}
	g := &groups{}

	var err error
	if g.refs, _, err = bitio.ReadUints(data, c.Bits, ng, 0); err != nil {
		return nil, nil, fmt.Errorf("group references: %w", err)
	}
	data = data[bitio.BytesNeeded(c.Bits, ng, 0):]

	widths, _, err := bitio.ReadUints(data, c.WidthBits, ng, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("group widths: %w", err)
	}
	data = data[bitio.BytesNeeded(c.WidthBits, ng, 0):]

	scaled, _, err := bitio.ReadUints(data, c.ScaledLengthBits, ng, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("group lengths: %w", err)
	}
	data = data[bitio.BytesNeeded(c.ScaledLengthBits, ng, 0):]

	g.widths = make([]int, ng)
	g.lengths = make([]int, ng)
	needBits := 0
	for i := 0; i < ng; i++ {
		g.widths[i] = c.WidthReference + int(widths[i])
		if g.widths[i] > bitio.MaxWidth {
			return nil, nil, fmt.Errorf("group %d width %d exceeds %d bits", i, g.widths[i], bitio.MaxWidth)
		}
		g.lengths[i] = c.LengthReference + int(scaled[i])*c.LengthIncrement
		if i == ng-1 {
			g.lengths[i] = c.LastGroupLength
		}
		if g.lengths[i] < 0 {
			return nil, nil, fmt.Errorf("group %d has negative length %d", i, g.lengths[i])
		}
		g.total += g.lengths[i]
		if g.total > limit {
			return nil, nil, fmt.Errorf("groups hold more than %d values", limit)
		}
		needBits += g.lengths[i] * g.widths[i]
	}
	if need := (needBits + 7) / 8; need > len(data) {
		return nil, nil, &bitio.RangeError{Need: need, Have: len(data)}
	} else if len(data)-need > 1 {
		warnings.add("complex packing: %d octets left after the last group", len(data)-need)
	}
	return g, data, nil
}

// unpackGroups returns the integer value of every point, reference plus
// deviation, and which points are missing. missing is nil when the field
// does not use missing value management.
func (c ComplexParams) unpackGroups(data []byte, n int, warnings *Warnings) ([]int64, []bool, error) {
	if err := checkCount(n); err != nil {
		return nil, nil, err
	}
	switch c.SplittingMethod {
	case 0, 1:
	default:
		warnings.add("group splitting method %d is not defined", c.SplittingMethod)
	}
	if c.MissingManagement < NoMissingValues || c.MissingManagement > SecondaryMissingValues {
		return nil, nil, &scalar.UnsupportedFeatureError{Feature: fmt.Sprintf("missing value management %d", c.MissingManagement)}
	}

	g, deviations, err := c.readGroups(data, n+groupSlack, warnings)
	if err != nil {
		return nil, nil, err
	}
	if g.total != n {
		warnings.add("groups hold %d values, Section 5 declares %d", g.total, n)
	}

	out := make([]int64, 0, g.total)
	var missing []bool
	if c.MissingManagement != NoMissingValues {
		missing = make([]bool, 0, g.total)
	}
	primary, secondary := missingCodes(c.Bits)

	r := bitio.NewReader(deviations)
	for i, length := range g.lengths {
		ref := int64(g.refs[i])
		w := g.widths[i]
		if w == 0 {
			// Constant group: every point equals the reference.
			isMissing := c.isMissing(uint64(ref), primary, secondary)
			for k := 0; k < length; k++ {
				out = append(out, ref)
				if missing != nil {
					missing = append(missing, isMissing)
				}
			}
			continue
		}
		groupPrimary, groupSecondary := missingCodes(w)
		for k := 0; k < length; k++ {
			v, err := r.Read(w)
			if err != nil {
				return nil, nil, fmt.Errorf("group %d value %d: %w", i, k, err)
			}
			out = append(out, ref+int64(v))
			if missing != nil {
				missing = append(missing, c.isMissing(v, groupPrimary, groupSecondary))
			}
		}
	}
	return out, missing, nil
}

// missingCodes returns the primary and secondary missing value codes for a
// field of the given width: all bits set, and all bits set but the last.
func missingCodes(width int) (uint64, uint64) {
	if width <= 0 {
		return 0, 0
	}
	primary := uint64(1)<<uint(width) - 1
	return primary, primary - 1
}

func (c ComplexParams) isMissing(v, primary, secondary uint64) bool {
	switch c.MissingManagement {
	case PrimaryMissingValues:
		return primary != 0 && v == primary
	case SecondaryMissingValues:
		return primary != 0 && (v == primary || v == secondary)
	}
	return false
}

// Complex decodes n values packed with template 5.2.
func Complex(c ComplexParams, data []byte, n int) ([]float64, Warnings, error) {
	var warnings Warnings
	raw, missing, err := c.unpackGroups(data, n, &warnings)
	if err != nil {
		return nil, warnings, fmt.Errorf("complex packing: %w", err)
	}
	decompress := c.decompressor()
	out := make([]float64, len(raw))
	for i, x := range raw {
		if missing != nil && missing[i] {
			out[i] = Missing
			continue
		}
		out[i] = decompress(float64(x))
	}
	return out, warnings, nil
}

// SpatialDifferencing decodes n values packed with template 5.3.
//
// The data section starts with Order seed values followed by the overall
// minimum of the differences, each ExtraOctets long and sign-magnitude
// encoded. The complex packed differences follow.
func SpatialDifferencing(c ComplexParams, data []byte, n int) ([]float64, Warnings, error) {
	var warnings Warnings
	if c.Order != 1 && c.Order != 2 {
		return nil, nil, &scalar.UnsupportedFeatureError{Feature: fmt.Sprintf("spatial differencing of order %d", c.Order)}
	}
	m := c.ExtraOctets
	if m < 1 || m > 8 {
		return nil, nil, fmt.Errorf("spatial differencing: %d octets per extra descriptor, want 1 to 8", m)
	}
	header := (c.Order + 1) * m
	if len(data) < header {
		return nil, nil, fmt.Errorf("spatial differencing: %w", &bitio.RangeError{Need: header, Have: len(data)})
	}
	seeds := make([]int64, c.Order)
	for i := range seeds {
		seeds[i] = scalar.SignMagnitudeBytes(data[i*m : (i+1)*m])
	}
	minimum := scalar.SignMagnitudeBytes(data[c.Order*m : header])

	raw, missing, err := c.unpackGroups(data[header:], n, &warnings)
	if err != nil {
		return nil, warnings, fmt.Errorf("spatial differencing: %w", err)
	}

	// Differences only cover points with a value.
	present := make([]int, 0, len(raw))
	for i := range raw {
		if missing == nil || !missing[i] {
			present = append(present, i)
		}
	}
	diffs := make([]int64, len(present))
	for k, i := range present {
		diffs[k] = raw[i] + minimum
	}
	undifference(diffs, seeds)

	decompress := c.decompressor()
	out := make([]float64, len(raw))
	for i := range out {
		out[i] = Missing
	}
	for k, i := range present {
		out[i] = decompress(float64(diffs[k]))
	}
	return out, warnings, nil
}

// undifference reverses order 1 or 2 spatial differencing in place. The first
// len(seeds) entries are replaced by the seeds.
func undifference(v []int64, seeds []int64) {
	for i := 0; i < len(seeds) && i < len(v); i++ {
		v[i] = seeds[i]
	}
	switch len(seeds) {
	case 1:
		for i := 1; i < len(v); i++ {
			v[i] += v[i-1]
		}
	case 2:
		for i := 2; i < len(v); i++ {
			v[i] += 2*v[i-1] - v[i-2]
		}
	}
}
