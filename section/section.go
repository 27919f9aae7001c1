// Package section decodes the fields of a GRIB2 section using the layouts and
// templates of the tables package.
//
// Decoding is done in two passes. The fixed prefix of the section is decoded
// first. When the layout reaches a template reference, the template selected
// by an already decoded field is looked up and decoded in place of the rest
// of the layout.
package section

import (
	"fmt"
	"math"

	"github.com/golang/glog"
	"github.com/sdifrance/gogrib2/bitio"
	"github.com/sdifrance/gogrib2/scalar"
	"github.com/sdifrance/gogrib2/tables"
)

// Flag is the state of one bit of a flag-table field.
type Flag struct {
	// Bit is the WMO bit number, 1 being the most significant.
	Bit         int
	Set         bool
	Description string
}

// Field is one decoded value of a section.
type Field struct {
	Name string
	Info string
	// Start is the 1-based octet where the field starts within the section.
	Start int
	// Size is the field length in octets.
	Size  int
	Type  scalar.Type
	Value scalar.Value

	// Table and Code are set for code-table fields.
	Table string
	Code  string
	// FlagTable and Flags are set for flag-table fields.
	FlagTable string
	Flags     []Flag
}

// Section is a decoded GRIB2 section.
type Section struct {
	Number int
	// Length is the declared section length, or the fixed length of sections
	// 0 and 8.
	Length int
	// Template is the "section.number" key of the spliced template, if any.
	Template string
	Fields   []Field

	index map[string]int
}

// Decoder decodes sections against a table registry.
type Decoder struct {
	reg *tables.Registry
}

// NewDecoder returns a Decoder backed by reg.
func NewDecoder(reg *tables.Registry) *Decoder {
	return &Decoder{reg: reg}
}

var defaultDecoder = NewDecoder(tables.Default())

// Decode decodes a raw section with the default registry.
func Decode(raw []byte, number int) (*Section, error) {
	return defaultDecoder.Decode(raw, number)
}

// Decode decodes raw as section number.
//
// If the template selected by the section is not defined, the fields decoded
// so far are returned along with a *tables.TemplateNotFoundError.
func (d *Decoder) Decode(raw []byte, number int) (*Section, error) {
	descriptors, err := d.reg.Section(number)
	if err != nil {
		return nil, err
	}
	s := &Section{
		Number: number,
		Length: len(raw),
		index:  map[string]int{},
	}
	if number != 0 && number != 8 {
		if len(raw) < 5 {
			return nil, &bitio.RangeError{Need: 5, Have: len(raw)}
		}
		s.Length = int(scalar.UintBytes(raw[0:4]))
		if s.Length > len(raw) {
			return nil, &bitio.RangeError{Need: s.Length, Have: len(raw)}
		}
		raw = raw[:s.Length]
	}

	for i := 0; i < len(descriptors); i++ {
		desc := descriptors[i]
		if desc.TemplateRef != nil {
			selector, ok := s.fieldAt(desc.TemplateRef.Field)
			if !ok {
				return s, fmt.Errorf("section %d: template selector at octet %d was not decoded", number, desc.TemplateRef.Field)
			}
			value, ok := selector.Value.AsInt64()
			if !ok {
				return s, fmt.Errorf("section %d: template selector %q is not an integer", number, selector.Name)
			}
			template, err := d.reg.Template(desc.TemplateRef.Section, value)
			if err != nil {
				return s, err
			}
			s.Template = tables.Key(desc.TemplateRef.Section, value)
			glog.V(2).Infof("section %d: using template %s", number, s.Template)
			descriptors = append(descriptors[:i:i], template...)
			i--
			continue
		}

		f, err := d.decodeField(s, raw, desc)
		if err != nil {
			return s, fmt.Errorf("section %d field %q: %w", number, desc.Name, err)
		}
		s.index[f.Name] = len(s.Fields)
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

func (d *Decoder) decodeField(s *Section, raw []byte, desc tables.Descriptor) (Field, error) {
	f := Field{
		Name:      desc.Name,
		Info:      desc.Info,
		Type:      desc.Type.Type,
		Table:     desc.Table,
		FlagTable: desc.FlagTable,
	}

	switch {
	case desc.Start.Next:
		if len(s.Fields) == 0 {
			return f, fmt.Errorf("no previous field to follow")
		}
		prev := s.Fields[len(s.Fields)-1]
		f.Start = prev.Start + prev.Size
	default:
		f.Start = desc.Start.Octet
	}

	switch {
	case desc.Size.End:
		f.Size = s.Length - (f.Start - 1)
		if f.Size < 0 {
			f.Size = 0
		}
	case desc.Size.Calc != nil:
		ref, ok := s.fieldAt(desc.Size.Calc.Field)
		if !ok {
			return f, fmt.Errorf("size refers to octet %d, which holds no decoded field", desc.Size.Calc.Field)
		}
		n, ok := ref.Value.AsInt64()
		if !ok || n < 0 {
			return f, fmt.Errorf("size refers to field %q with non-count value %v", ref.Name, ref.Value)
		}
		if m := desc.Size.Calc.Multiplier; m > 0 && n > int64(math.MaxInt/m) {
			return f, &bitio.RangeError{Need: math.MaxInt, Have: len(raw)}
		}
		f.Size = int(n) * desc.Size.Calc.Multiplier
	default:
		f.Size = desc.Size.Octets
	}

	// Sections shorter than their layout, such as a 21-octet Section 1,
	// simply leave the trailing optional fields empty.
	if f.Size > 0 && f.Size > len(raw)-(f.Start-1) {
		need := f.Start - 1 + f.Size
		if need < 0 {
			need = math.MaxInt
		}
		return f, &bitio.RangeError{Need: need, Have: len(raw)}
	}
	end := f.Start - 1 + f.Size
	var b []byte
	if f.Size > 0 {
		b = raw[f.Start-1 : end]
	}

	v, err := scalar.Decode(b, f.Type, desc.Regulation)
	if err != nil {
		return f, err
	}
	f.Value = v

	if f.Table != "" {
		if code, ok := v.AsInt64(); ok {
			f.Code = d.reg.Code(f.Table, code)
		}
	}
	if f.FlagTable != "" {
		if bits, ok := v.AsInt64(); ok {
			f.Flags = make([]Flag, 8)
			for bit := 1; bit <= 8; bit++ {
				set := bits&(0x80>>uint(bit-1)) != 0
				f.Flags[bit-1] = Flag{Bit: bit, Set: set, Description: d.reg.Flag(f.FlagTable, bit, set)}
			}
		}
	}
	return f, nil
}

func (s *Section) fieldAt(octet int) (Field, bool) {
	for _, f := range s.Fields {
		if f.Start == octet {
			return f, true
		}
	}
	return Field{}, false
}

// Field returns the field with the given name.
func (s *Section) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Has reports whether the section decoded a non-empty field with the given
// name.
func (s *Section) Has(name string) bool {
	f, ok := s.Field(name)
	return ok && !f.Value.IsNone()
}

// Int returns the integer value of the named field.
func (s *Section) Int(name string) (int64, error) {
	f, ok := s.Field(name)
	if !ok {
		return 0, fmt.Errorf("section %d has no field %q", s.Number, name)
	}
	v, ok := f.Value.AsInt64()
	if !ok {
		return 0, fmt.Errorf("section %d field %q is not numeric", s.Number, name)
	}
	return v, nil
}

// Float returns the floating point value of the named field.
func (s *Section) Float(name string) (float64, error) {
	f, ok := s.Field(name)
	if !ok {
		return 0, fmt.Errorf("section %d has no field %q", s.Number, name)
	}
	v, ok := f.Value.AsFloat64()
	if !ok {
		return 0, fmt.Errorf("section %d field %q is not numeric", s.Number, name)
	}
	return v, nil
}

// Bytes returns the raw octets of the named field.
func (s *Section) Bytes(name string) ([]byte, error) {
	f, ok := s.Field(name)
	if !ok {
		return nil, fmt.Errorf("section %d has no field %q", s.Number, name)
	}
	return f.Value.Raw, nil
}

// Ints returns the integer values of several fields, failing on the first
// missing one.
func (s *Section) Ints(names ...string) ([]int64, error) {
	out := make([]int64, len(names))
	for i, name := range names {
		v, err := s.Int(name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
