// Package vector pairs the u and v components of a wind, current or wave
// field decoded from GRIB2 messages and samples them by coordinate.
package vector

import (
	"fmt"
	"math"

	"github.com/sdifrance/gogrib2"
	"github.com/sdifrance/gogrib2/grid"
)

// Component identifies a parameter by its discipline, category and number
// (code tables 0.0, 4.1 and 4.2).
type Component struct {
	Discipline, Category, Number int
}

// Wind components of discipline 0, category 2.
var (
	WindU = Component{Discipline: 0, Category: 2, Number: 2}
	WindV = Component{Discipline: 0, Category: 2, Number: 3}
)

// Current components of discipline 10, category 1.
var (
	CurrentU = Component{Discipline: 10, Category: 1, Number: 2}
	CurrentV = Component{Discipline: 10, Category: 1, Number: 3}
)

// Field is a pair of u and v components sharing a grid.
type Field struct {
	U, V *gogrib2.Message
}

// Pair finds the first wind messages of msgs. See PairComponents.
func Pair(msgs []*gogrib2.Message) (*Field, error) {
	return PairComponents(msgs, WindU, WindV)
}

// PairComponents finds the first messages carrying u and v whose values are
// decoded on the same grid.
func PairComponents(msgs []*gogrib2.Message, u, v Component) (*Field, error) {
	var f Field
	for _, m := range msgs {
		if m.Values == nil {
			continue
		}
		p, err := m.Parameter()
		if err != nil {
			continue
		}
		c := Component{Discipline: p.Discipline, Category: p.Category, Number: p.Number}
		switch {
		case c == u && f.U == nil:
			f.U = m
		case c == v && f.V == nil:
			f.V = m
		}
	}
	if f.U == nil {
		return nil, fmt.Errorf("no decoded message for u component %+v", u)
	}
	if f.V == nil {
		return nil, fmt.Errorf("no decoded message for v component %+v", v)
	}
	if !sameGrid(&f.U.Values.Grid, &f.V.Values.Grid) {
		return nil, fmt.Errorf("u (message %d) and v (message %d) are on different grids", f.U.Index, f.V.Index)
	}
	return &f, nil
}

func sameGrid(a, b *grid.Grid) bool {
	return a.Template == b.Template && a.Ni == b.Ni && a.Nj == b.Nj &&
		a.La1 == b.La1 && a.Lo1 == b.Lo1 && a.La2 == b.La2 && a.Lo2 == b.Lo2
}

// ValueAt returns the components at the grid point nearest to lon, lat. ok
// is false outside the grid or where either component is missing.
func (f *Field) ValueAt(lon, lat float64) (u, v float64, ok bool) {
	row, col, ok := f.U.Values.Index(lon, lat)
	if !ok {
		return math.NaN(), math.NaN(), false
	}
	u, uok := f.U.Values.At(row, col)
	v, vok := f.V.Values.At(row, col)
	if !uok || !vok {
		return math.NaN(), math.NaN(), false
	}
	return u, v, true
}

// SpeedAt returns the magnitude and the direction the vector points to, in
// degrees clockwise from north, at the grid point nearest to lon, lat.
func (f *Field) SpeedAt(lon, lat float64) (speed, bearing float64, ok bool) {
	u, v, ok := f.ValueAt(lon, lat)
	if !ok {
		return math.NaN(), math.NaN(), false
	}
	bearing = math.Mod(math.Atan2(u, v)*180/math.Pi+360, 360)
	return math.Hypot(u, v), bearing, true
}
