// Package tables holds the GRIB2 code tables, flag tables, section layouts
// and templates.
//
// The content lives in YAML files under data/ and is compiled into the
// binary. It is parsed once when the package is initialized and never
// modified afterwards, so every accessor is safe for concurrent use.
//
// Code and flag tables follow
// https://www.nco.ncep.noaa.gov/pmb/docs/grib2/grib2_doc/ and the WMO Manual
// on Codes, Volume I.2.
package tables

import (
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// NotDefined is returned by Code for codes that have no description.
const NotDefined = "not defined"

//go:embed data/*.yaml
var embedded embed.FS

var defaultRegistry = mustLoad()

func mustLoad() *Registry {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(err)
	}
	r, err := Load(sub)
	if err != nil {
		panic(fmt.Sprintf("loading embedded GRIB2 tables: %v", err))
	}
	return r
}

// Default returns the registry built from the embedded tables.
func Default() *Registry { return defaultRegistry }

// TemplateNotFoundError is returned when a section selects a template that the
// registry does not define.
type TemplateNotFoundError struct {
	Section int
	Number  int64
}

// Key returns the "section.number" key that was looked up.
func (e *TemplateNotFoundError) Key() string {
	return Key(e.Section, e.Number)
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %s is not defined", e.Key())
}

// Key formats a "section.number" registry key.
func Key(section int, number int64) string {
	return strconv.Itoa(section) + "." + strconv.FormatInt(number, 10)
}

// Registry is a read-only set of tables and templates.
type Registry struct {
	codes     map[string]map[int64]string
	flags     map[string]map[int][]string
	sections  map[int][]Descriptor
	templates map[string][]Descriptor
}

// Load parses codetables.yaml, flagtables.yaml, sections.yaml and
// templates.yaml from fsys.
func Load(fsys fs.FS) (*Registry, error) {
	r := &Registry{}
	if err := decodeFile(fsys, "codetables.yaml", &r.codes); err != nil {
		return nil, err
	}
	if err := decodeFile(fsys, "flagtables.yaml", &r.flags); err != nil {
		return nil, err
	}
	var sections map[string][]Descriptor
	if err := decodeFile(fsys, "sections.yaml", &sections); err != nil {
		return nil, err
	}
	if err := decodeFile(fsys, "templates.yaml", &r.templates); err != nil {
		return nil, err
	}

	for name, bits := range r.flags {
		for bit, descriptions := range bits {
			if bit < 1 || bit > 8 {
				return nil, fmt.Errorf("flag table %s: bit %d outside [1, 8]", name, bit)
			}
			if len(descriptions) != 2 {
				return nil, fmt.Errorf("flag table %s bit %d: want 2 descriptions, got %d", name, bit, len(descriptions))
			}
		}
	}

	r.sections = make(map[int][]Descriptor, len(sections))
	for key, descriptors := range sections {
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 || n > 8 {
			return nil, fmt.Errorf("sections.yaml: invalid section number %q", key)
		}
		if err := validate(descriptors); err != nil {
			return nil, fmt.Errorf("section %d: %w", n, err)
		}
		r.sections[n] = descriptors
	}
	for key, descriptors := range r.templates {
		if err := validate(descriptors); err != nil {
			return nil, fmt.Errorf("template %s: %w", key, err)
		}
	}

	glog.V(1).Infof("loaded %d code tables, %d flag tables, %d templates", len(r.codes), len(r.flags), len(r.templates))
	return r, nil
}

func decodeFile(fsys fs.FS, name string, out interface{}) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

func validate(descriptors []Descriptor) error {
	for i, d := range descriptors {
		if d.TemplateRef != nil {
			if i != len(descriptors)-1 {
				return fmt.Errorf("templateRef must be the last descriptor, found at index %d", i)
			}
			continue
		}
		if d.Name == "" {
			return fmt.Errorf("descriptor %d has no name", i)
		}
		if d.Start.Next && i == 0 {
			return fmt.Errorf("descriptor %q: first descriptor cannot start at next", d.Name)
		}
	}
	return nil
}

// Code returns the description of code in the named code table, or
// NotDefined when either is unknown.
func (r *Registry) Code(table string, code int64) string {
	if s, ok := r.codes[table][code]; ok {
		return s
	}
	return NotDefined
}

// HasCodeTable reports whether the named code table exists.
func (r *Registry) HasCodeTable(table string) bool {
	_, ok := r.codes[table]
	return ok
}

// Flag returns the description of bit (1 = most significant) of the named
// flag table in state set. Unknown tables or bits return NotDefined.
func (r *Registry) Flag(table string, bit int, set bool) string {
	descriptions, ok := r.flags[table][bit]
	if !ok {
		return NotDefined
	}
	if set {
		return descriptions[1]
	}
	return descriptions[0]
}

// HasFlagTable reports whether the named flag table exists.
func (r *Registry) HasFlagTable(table string) bool {
	_, ok := r.flags[table]
	return ok
}

// Section returns a copy of the fixed field layout of a section.
func (r *Registry) Section(number int) ([]Descriptor, error) {
	descriptors, ok := r.sections[number]
	if !ok {
		return nil, fmt.Errorf("section %d has no layout", number)
	}
	return slices.Clone(descriptors), nil
}

// Template returns a copy of the descriptors of template section.number.
func (r *Registry) Template(section int, number int64) ([]Descriptor, error) {
	descriptors, ok := r.templates[Key(section, number)]
	if !ok {
		return nil, &TemplateNotFoundError{Section: section, Number: number}
	}
	return slices.Clone(descriptors), nil
}

// Templates returns the sorted keys of all templates of a section.
func (r *Registry) Templates(section int) []string {
	prefix := strconv.Itoa(section) + "."
	var keys []string
	for k := range r.templates {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Code looks up a code in the default registry.
func Code(table string, code int64) string { return defaultRegistry.Code(table, code) }

// Flag looks up a flag bit in the default registry.
func Flag(table string, bit int, set bool) string { return defaultRegistry.Flag(table, bit, set) }

// Section returns a section layout from the default registry.
func Section(number int) ([]Descriptor, error) { return defaultRegistry.Section(number) }

// Template returns a template from the default registry.
func Template(section int, number int64) ([]Descriptor, error) {
	return defaultRegistry.Template(section, number)
}
