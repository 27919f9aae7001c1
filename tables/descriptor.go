package tables

import (
	"fmt"

	"github.com/sdifrance/gogrib2/scalar"
	"gopkg.in/yaml.v3"
)

// Descriptor describes one field of a section or template.
type Descriptor struct {
	// Name is a short identifier, unique within a section once templates are
	// spliced in.
	Name string `yaml:"name"`
	// Info is the human readable description from the WMO manual.
	Info string `yaml:"info"`

	Start Offset    `yaml:"start"`
	Size  Extent    `yaml:"size"`
	Type  FieldType `yaml:"type"`

	// Table names a code table used to describe the decoded value.
	Table string `yaml:"table"`
	// FlagTable names a flag table; each bit of the value is described
	// separately.
	FlagTable string `yaml:"flagTable"`
	// Regulation marks sign-magnitude integers (WMO regulation 92.1.5).
	Regulation bool `yaml:"regulation"`

	// TemplateRef, when set, marks the point where the rest of the section
	// is described by a template.
	TemplateRef *TemplateRef `yaml:"templateRef"`
}

// TemplateRef selects the template "Section.value", where value is the
// decoded content of the field starting at octet Field.
type TemplateRef struct {
	Section int `yaml:"section"`
	Field   int `yaml:"field"`
}

// Offset is a 1-based octet position, or the octet following the previous
// field.
type Offset struct {
	Octet int
	Next  bool
}

// UnmarshalYAML accepts an octet number or the string "next".
func (o *Offset) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.Value == "next" {
		*o = Offset{Next: true}
		return nil
	}
	var octet int
	if err := n.Decode(&octet); err != nil {
		return fmt.Errorf("line %d: start must be an octet number or \"next\": %w", n.Line, err)
	}
	if octet < 1 {
		return fmt.Errorf("line %d: start octet %d must be >= 1", n.Line, octet)
	}
	*o = Offset{Octet: octet}
	return nil
}

func (o Offset) String() string {
	if o.Next {
		return "next"
	}
	return fmt.Sprintf("%d", o.Octet)
}

// Extent is a field length: a fixed number of octets, the rest of the
// section, or a multiple of an earlier field's value.
type Extent struct {
	Octets int
	End    bool
	Calc   *Calc
}

// Calc computes a length as Multiplier times the value of the field starting
// at octet Field.
type Calc struct {
	Field      int `yaml:"calc"`
	Multiplier int `yaml:"multiplier"`
}

// UnmarshalYAML accepts an octet count, the string "end", or a mapping
// {calc: <octet>, multiplier: <n>}.
func (e *Extent) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "end" {
			*e = Extent{End: true}
			return nil
		}
		var octets int
		if err := n.Decode(&octets); err != nil {
			return fmt.Errorf("line %d: size must be an octet count, \"end\" or a calc mapping: %w", n.Line, err)
		}
		if octets < 0 {
			return fmt.Errorf("line %d: negative size %d", n.Line, octets)
		}
		*e = Extent{Octets: octets}
		return nil
	case yaml.MappingNode:
		c := &Calc{}
		if err := n.Decode(c); err != nil {
			return err
		}
		if c.Field < 1 || c.Multiplier < 1 {
			return fmt.Errorf("line %d: invalid calc size %+v", n.Line, *c)
		}
		*e = Extent{Calc: c}
		return nil
	}
	return fmt.Errorf("line %d: unexpected size node", n.Line)
}

func (e Extent) String() string {
	switch {
	case e.End:
		return "end"
	case e.Calc != nil:
		return fmt.Sprintf("calc(%d*%d)", e.Calc.Field, e.Calc.Multiplier)
	}
	return fmt.Sprintf("%d", e.Octets)
}

// FieldType wraps scalar.Type so it can be read from the data files.
type FieldType struct {
	scalar.Type
}

// UnmarshalYAML parses a scalar type name such as "uint32".
func (t *FieldType) UnmarshalYAML(n *yaml.Node) error {
	typ, err := scalar.ParseType(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	t.Type = typ
	return nil
}
