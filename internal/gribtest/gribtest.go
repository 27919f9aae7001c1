// Package gribtest builds GRIB2 octet sequences for tests.
package gribtest

import (
	"encoding/binary"
	"math"
)

// BitWriter packs values MSB-first.
type BitWriter struct {
	buf []byte
	pos int
}

// Write appends the low n bits of v.
func (w *BitWriter) Write(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.pos/8 >= len(w.buf) {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 == 1 {
			w.buf[w.pos/8] |= 1 << (7 - uint(w.pos%8))
		}
		w.pos++
	}
}

// WriteAll appends every value at width n.
func (w *BitWriter) WriteAll(values []uint64, n int) {
	for _, v := range values {
		w.Write(v, n)
	}
}

// Align pads with zero bits up to the next octet boundary.
func (w *BitWriter) Align() {
	if rem := w.pos % 8; rem != 0 {
		w.pos += 8 - rem
	}
	for w.pos/8 > len(w.buf) {
		w.buf = append(w.buf, 0)
	}
}

// Bytes returns the packed octets.
func (w *BitWriter) Bytes() []byte {
	w.Align()
	return w.buf
}

// Pack packs values at width bits each and pads the last octet.
func Pack(values []uint64, width int) []byte {
	w := &BitWriter{}
	w.WriteAll(values, width)
	return w.Bytes()
}

func U8(v uint8) []byte { return []byte{v} }

func U16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }

func U32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func U64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

func F32(v float32) []byte { return U32(math.Float32bits(v)) }

func F64(v float64) []byte { return U64(math.Float64bits(v)) }

// SM encodes v as a sign-magnitude integer of n octets.
func SM(v int64, n int) []byte {
	mag := uint64(v)
	if v < 0 {
		mag = uint64(-v)
	}
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(mag)
		mag >>= 8
	}
	if v < 0 {
		out[0] |= 0x80
	}
	return out
}

// Concat joins octet slices.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Section prefixes body with the section length and number.
func Section(number uint8, body ...[]byte) []byte {
	b := Concat(body...)
	return Concat(U32(uint32(5+len(b))), U8(number), b)
}

// Section1 returns a 21-octet identification section for the given reference
// time.
func Section1(year uint16, month, day, hour, minute, second uint8) []byte {
	return Section(1,
		U16(7), U16(0), // centre, sub-centre
		U8(2), U8(1), U8(1), // tables versions, significance of reference time
		U16(year), U8(month), U8(day), U8(hour), U8(minute), U8(second),
		U8(0), U8(1), // production status, type of data
	)
}

// LatLon describes a template 3.0 grid in micro-degrees.
type LatLon struct {
	Ni, Nj             uint32
	La1, Lo1, La2, Lo2 int64
	Di, Dj             uint32
	Scanning           uint8
	// Points overrides Ni*Nj as the declared number of data points.
	Points uint32
}

// Section3 returns a grid definition section using template 3.0.
func (g LatLon) Section3() []byte {
	points := g.Points
	if points == 0 {
		points = g.Ni * g.Nj
	}
	return Section(3,
		U8(0), U32(points), U8(0), U8(0), U16(0),
		U8(6), U8(0), U32(0), U8(0), U32(0), U8(0), U32(0),
		U32(g.Ni), U32(g.Nj), U32(0), U32(0xffffffff),
		SM(g.La1, 4), SM(g.Lo1, 4), U8(0x30),
		SM(g.La2, 4), SM(g.Lo2, 4),
		U32(g.Di), U32(g.Dj), U8(g.Scanning),
	)
}

// Section4 returns a product definition section using template 4.0.
func Section4(category, number uint8) []byte {
	return Section(4,
		U16(0), U16(0),
		U8(category), U8(number), U8(2), U8(0), U8(96), U16(0), U8(0),
		U8(1), U32(6), // forecast hour 6
		U8(103), SM(0, 1), SM(10, 4), // 10 m above ground
		U8(255), U8(0), U32(0),
	)
}

// Simple holds the template 5.0 parameters.
type Simple struct {
	Values uint32
	R      float32
	E, D   int64
	Bits   uint8
}

// Section5 returns a data representation section using template 5.0.
func (p Simple) Section5() []byte {
	return Section(5, U32(p.Values), U16(0), p.body(), U8(0))
}

// Section5Log returns a data representation section using template 5.61.
func (p Simple) Section5Log(b float32) []byte {
	return Section(5, U32(p.Values), U16(61), p.body(), F32(b))
}

func (p Simple) body() []byte {
	return Concat(F32(p.R), SM(p.E, 2), SM(p.D, 2), U8(p.Bits))
}

// Complex holds the template 5.2 and 5.3 parameters.
type Complex struct {
	Simple
	SplittingMethod   uint8
	Groups            uint32
	WidthReference    uint8
	WidthBits         uint8
	LengthReference   uint32
	LengthIncrement   uint8
	LastGroupLength   uint32
	ScaledLengthBits  uint8
	Order             uint8
	ExtraDescriptorsN uint8
}

// Section5 returns a data representation section using template 5.2, or 5.3
// when Order is set.
func (p Complex) Section5() []byte {
	template := uint16(2)
	var tail []byte
	if p.Order != 0 {
		template = 3
		tail = Concat(U8(p.Order), U8(p.ExtraDescriptorsN))
	}
	return Section(5,
		U32(p.Values), U16(template), p.body(),
		U8(0), U8(p.SplittingMethod), U8(0), F32(0), F32(0),
		U32(p.Groups), U8(p.WidthReference), U8(p.WidthBits),
		U32(p.LengthReference), U8(p.LengthIncrement), U32(p.LastGroupLength), U8(p.ScaledLengthBits),
		tail,
	)
}

// Section5IEEE returns a data representation section using template 5.4.
func Section5IEEE(values uint32, precision uint8) []byte {
	return Section(5, U32(values), U16(4), U8(precision))
}

// Section5Template returns a data representation section with an arbitrary
// template number and body.
func Section5Template(values uint32, template uint16, body ...[]byte) []byte {
	return Section(5, Concat(U32(values), U16(template)), Concat(body...))
}

// Section6 returns a bit-map section.
func Section6(indicator uint8, bitmap []byte) []byte {
	return Section(6, U8(indicator), bitmap)
}

// Section7 returns a data section.
func Section7(data []byte) []byte {
	return Section(7, data)
}

// Message wraps sections 1-7 with the indicator and end sections.
func Message(discipline uint8, sections ...[]byte) []byte {
	body := Concat(sections...)
	total := uint64(16 + len(body) + 4)
	return Concat([]byte("GRIB"), []byte{0, 0, discipline, 2}, U64(total), body, []byte("7777"))
}
