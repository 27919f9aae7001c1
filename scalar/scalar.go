// Package scalar decodes single GRIB2 octet ranges into typed values.
//
// All multi-octet quantities are big-endian. Signed quantities tagged with
// regulation 92.1.5 use sign-magnitude encoding, where bit 1 (the most
// significant bit) of the first octet is the sign and the remaining bits are
// the magnitude. This is distinct from two's complement and only applies to
// fields that are explicitly tagged for it.
package scalar

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/constraints"
	"golang.org/x/text/encoding/charmap"
)

// Type is the on-the-wire representation of a field.
type Type uint8

const (
	Bytes Type = iota
	Text
	Uint8
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Float128
)

var typeNames = map[Type]string{
	Bytes:    "bytes",
	Text:     "text",
	Uint8:    "uint8",
	Uint16:   "uint16",
	Uint32:   "uint32",
	Uint64:   "uint64",
	Int8:     "int8",
	Int16:    "int16",
	Int32:    "int32",
	Int64:    "int64",
	Float32:  "float32",
	Float64:  "float64",
	Float128: "float128",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType returns the Type with the given name, as written in the template
// data files.
func ParseType(name string) (Type, error) {
	for t, s := range typeNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	return Bytes, fmt.Errorf("unknown scalar type %q", name)
}

// Width returns the fixed octet width of t, or 0 for variable-width types.
func (t Type) Width() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	case Float128:
		return 16
	}
	return 0
}

// UnsupportedFeatureError reports a valid GRIB2 construct that this package
// deliberately does not decode.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("unsupported feature: %s", e.Feature)
}

// Kind tags the payload held by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindInt
	KindUint
	KindFloat
	KindText
	KindBytes
)

// Value is a decoded field value. Exactly one payload is meaningful,
// selected by Kind.
type Value struct {
	Kind  Kind
	Int   int64
	Uint  uint64
	Float float64
	Text  string
	Raw   []byte
}

// IsNone reports whether the value was decoded from an empty octet range.
func (v Value) IsNone() bool { return v.Kind == KindNone }

// AsInt64 converts numeric values to int64. Floats are truncated.
func (v Value) AsInt64() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindUint:
		return int64(v.Uint), true
	case KindFloat:
		return int64(v.Float), true
	}
	return 0, false
}

// AsFloat64 converts numeric values to float64.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindUint:
		return float64(v.Uint), true
	case KindFloat:
		return v.Float, true
	}
	return 0, false
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindUint:
		return fmt.Sprintf("%d", v.Uint)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindText:
		return v.Text
	case KindBytes:
		return fmt.Sprintf("% x", v.Raw)
	}
	return "<none>"
}

// Decode interprets b as a value of type t. When regulation is true, integer
// types are decoded as sign-magnitude per regulation 92.1.5.
//
// An empty b yields a KindNone value. A b whose length does not match a fixed
// width type is an error.
func Decode(b []byte, t Type, regulation bool) (Value, error) {
	if len(b) == 0 {
		return Value{}, nil
	}
	if w := t.Width(); w != 0 && w != len(b) {
		return Value{}, fmt.Errorf("%s needs %d octets, got %d", t, w, len(b))
	}
	if regulation {
		switch t {
		case Uint8, Uint16, Uint32, Uint64, Int8, Int16, Int32, Int64:
			return Value{Kind: KindInt, Int: SignMagnitudeBytes(b)}, nil
		}
	}

	switch t {
	case Bytes:
		return Value{Kind: KindBytes, Raw: b}, nil
	case Text:
		s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return Value{}, fmt.Errorf("decoding text: %w", err)
		}
		return Value{Kind: KindText, Text: string(s)}, nil
	case Uint8:
		return Value{Kind: KindUint, Uint: uint64(b[0])}, nil
	case Uint16:
		return Value{Kind: KindUint, Uint: uint64(binary.BigEndian.Uint16(b))}, nil
	case Uint32:
		return Value{Kind: KindUint, Uint: uint64(binary.BigEndian.Uint32(b))}, nil
	case Uint64:
		return Value{Kind: KindUint, Uint: binary.BigEndian.Uint64(b)}, nil
	case Int8:
		return Value{Kind: KindInt, Int: int64(int8(b[0]))}, nil
	case Int16:
		return Value{Kind: KindInt, Int: int64(int16(binary.BigEndian.Uint16(b)))}, nil
	case Int32:
		return Value{Kind: KindInt, Int: int64(int32(binary.BigEndian.Uint32(b)))}, nil
	case Int64:
		return Value{Kind: KindInt, Int: int64(binary.BigEndian.Uint64(b))}, nil
	case Float32:
		return Value{Kind: KindFloat, Float: float64(math.Float32frombits(binary.BigEndian.Uint32(b)))}, nil
	case Float64:
		return Value{Kind: KindFloat, Float: math.Float64frombits(binary.BigEndian.Uint64(b))}, nil
	case Float128:
		return Value{}, &UnsupportedFeatureError{Feature: "128-bit floating point"}
	}
	return Value{}, fmt.Errorf("cannot decode %s", t)
}

// SignMagnitude decodes the low bits of raw as a sign-magnitude integer: the
// highest of those bits is the sign and the rest are the magnitude.
func SignMagnitude[T constraints.Unsigned](raw T, bits int) int64 {
	if bits <= 0 {
		return 0
	}
	signBit := T(1) << uint(bits-1)
	magnitude := int64(raw & (signBit - 1))
	if raw&signBit != 0 {
		return -magnitude
	}
	return magnitude
}

// SignMagnitudeBytes decodes b (1 to 8 octets, big-endian) as a
// sign-magnitude integer.
func SignMagnitudeBytes(b []byte) int64 {
	return SignMagnitude(UintBytes(b), 8*len(b))
}

// UintBytes decodes b (up to 8 octets) as a big-endian unsigned integer.
func UintBytes(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
