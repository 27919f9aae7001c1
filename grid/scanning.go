package grid

import (
	"fmt"
	"strings"

	"github.com/sdifrance/gogrib2/scalar"
)

// ScanningMode is the flag octet of flag table 3.4. Bits are numbered 1 to 8
// from the most significant, as in
// https://codes.ecmwf.int/grib/format/grib2/ctables/3/4/.
type ScanningMode uint8

const (
	scanMinusI           ScanningMode = 1 << (8 - 1)
	scanPlusJ            ScanningMode = 1 << (8 - 2)
	scanJConsecutive     ScanningMode = 1 << (8 - 3)
	scanBoustrophedonic  ScanningMode = 1 << (8 - 4)
	scanOddRowsOffset    ScanningMode = 1 << (8 - 5)
	scanEvenRowsOffset   ScanningMode = 1 << (8 - 6)
	scanJOffset          ScanningMode = 1 << (8 - 7)
	scanReducedRowsCount ScanningMode = 1 << (8 - 8)
)

// PlusI reports whether points of a row scan west to east.
func (m ScanningMode) PlusI() bool { return m&scanMinusI == 0 }

// PlusJ reports whether points of a column scan south to north.
func (m ScanningMode) PlusJ() bool { return m&scanPlusJ != 0 }

// IConsecutive reports whether adjacent points in the i direction are
// consecutive, that is the grid is stored row by row.
func (m ScanningMode) IConsecutive() bool { return m&scanJConsecutive == 0 }

// Boustrophedonic reports whether adjacent rows scan in opposite directions.
func (m ScanningMode) Boustrophedonic() bool { return m&scanBoustrophedonic != 0 }

// OddRowsOffset reports whether odd rows are offset by Di/2.
func (m ScanningMode) OddRowsOffset() bool { return m&scanOddRowsOffset != 0 }

// EvenRowsOffset reports whether even rows are offset by Di/2.
func (m ScanningMode) EvenRowsOffset() bool { return m&scanEvenRowsOffset != 0 }

// JOffset reports whether points are offset by Dj/2 in the j direction.
func (m ScanningMode) JOffset() bool { return m&scanJOffset != 0 }

// ReducedRowsCount reports whether offset rows or columns hold one point
// fewer.
func (m ScanningMode) ReducedRowsCount() bool { return m&scanReducedRowsCount != 0 }

// Validate returns a *scalar.UnsupportedFeatureError for scanning orders
// that cannot be normalized.
func (m ScanningMode) Validate() error {
	var unsupported []string
	if !m.PlusI() {
		unsupported = append(unsupported, "-i scanning")
	}
	if !m.IConsecutive() {
		unsupported = append(unsupported, "j consecutive storage")
	}
	if m.Boustrophedonic() {
		unsupported = append(unsupported, "alternating row direction")
	}
	if m.OddRowsOffset() {
		unsupported = append(unsupported, "odd rows offset by Di/2")
	}
	if m.EvenRowsOffset() {
		unsupported = append(unsupported, "even rows offset by Di/2")
	}
	if len(unsupported) == 0 {
		return nil
	}
	return &scalar.UnsupportedFeatureError{Feature: fmt.Sprintf("scanning mode %08b (%s)", uint8(m), strings.Join(unsupported, ", "))}
}

func (m ScanningMode) String() string {
	iDir := "-i"
	if m.PlusI() {
		iDir = "+i"
	}
	jDir := "-j"
	if m.PlusJ() {
		jDir = "+j"
	}
	adj := "jDirAdj"
	if m.IConsecutive() {
		adj = "iDirAdj"
	}
	s := fmt.Sprintf("(%s, %s, %s", iDir, jDir, adj)
	if m.Boustrophedonic() {
		s += ", boustrophedonic"
	}
	if m.OddRowsOffset() || m.EvenRowsOffset() {
		s += ", i offset"
	}
	if m.JOffset() {
		s += ", j offset"
	}
	return s + ")"
}

// ResolutionFlags is the flag octet of flag table 3.3.
type ResolutionFlags uint8

const (
	iIncrementsGiven    ResolutionFlags = 1 << (8 - 3)
	jIncrementsGiven    ResolutionFlags = 1 << (8 - 4)
	vectorsGridRelative ResolutionFlags = 1 << (8 - 5)
)

// IIncrementsGiven reports whether Di is given.
func (f ResolutionFlags) IIncrementsGiven() bool { return f&iIncrementsGiven != 0 }

// JIncrementsGiven reports whether Dj is given.
func (f ResolutionFlags) JIncrementsGiven() bool { return f&jIncrementsGiven != 0 }

// VectorsGridRelative reports whether u and v components are resolved
// relative to the grid rather than to east and north.
func (f ResolutionFlags) VectorsGridRelative() bool { return f&vectorsGridRelative != 0 }
