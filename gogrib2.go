// Package gogrib2 decodes GRIB2 messages into typed sections, grid geometry
// and physical values.
//
// GRIB2 is specified here: https://library.wmo.int/doc_num.php?explnum_id=11283
package gogrib2

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/sdifrance/gogrib2/framer"
	"github.com/sdifrance/gogrib2/grid"
	"github.com/sdifrance/gogrib2/section"
	"github.com/sdifrance/gogrib2/tables"
	"github.com/sdifrance/gogrib2/unpack"
)

// Message is one decoded data field of a GRIB2 message. A message repeating
// sections 2 to 7, 3 to 7 or 4 to 7 yields one Message per Section 7, all
// sharing Index.
type Message struct {
	// Index is the position of the message in the stream.
	Index int
	// Product is the position of the field within the message.
	Product int

	Discipline int
	Edition    int
	// Length is the total length declared in Section 0.
	Length uint64
	// Sections are the decoded sections of this field in stream order, from
	// Section 0 to Section 8. A section whose template is unknown holds the
	// fields decoded before the template reference.
	Sections []*section.Section

	// Grid is nil when Section 3 could not be decoded.
	Grid *grid.Grid
	// DataTemplate is the data representation template number.
	DataTemplate int
	// Compression is nil for IEEE data and when Section 5 could not be
	// decoded.
	Compression *unpack.Params
	// Data holds the unpacked values in the scanning order of Section 3.
	Data []float64
	// Values is nil when the data could not be unpacked or normalized.
	Values *grid.ValueGrid

	// Warnings lists recoverable inconsistencies.
	Warnings []string
}

// Section returns the decoded section with the given number, or nil.
func (m *Message) Section(number int) *section.Section {
	for _, s := range m.Sections {
		if s.Number == number {
			return s
		}
	}
	return nil
}

// ReferenceTime returns the reference time of Section 1, in UTC.
func (m *Message) ReferenceTime() (time.Time, error) {
	s := m.Section(1)
	if s == nil {
		return time.Time{}, errors.New("message has no identification section")
	}
	v, err := s.Ints("year", "month", "day", "hour", "minute", "second")
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(int(v[0]), time.Month(v[1]), int(v[2]), int(v[3]), int(v[4]), int(v[5]), 0, time.UTC), nil
}

// timeUnits maps code table 4.4 to durations.
var timeUnits = map[int64]time.Duration{
	0:  time.Minute,
	1:  time.Hour,
	2:  24 * time.Hour,
	10: 3 * time.Hour,
	11: 6 * time.Hour,
	12: 12 * time.Hour,
	13: time.Second,
}

// ForecastTime returns the reference time plus the forecast time of
// Section 4.
func (m *Message) ForecastTime() (time.Time, error) {
	ref, err := m.ReferenceTime()
	if err != nil {
		return time.Time{}, err
	}
	s := m.Section(4)
	if s == nil || !s.Has("forecastTime") {
		return ref, nil
	}
	v, err := s.Ints("indicatorOfUnitOfTimeRange", "forecastTime")
	if err != nil {
		return time.Time{}, err
	}
	unit, ok := timeUnits[v[0]]
	if !ok {
		return time.Time{}, fmt.Errorf("unit of time range %d (%s) is not supported", v[0], tables.Code("4.4", v[0]))
	}
	return ref.Add(time.Duration(v[1]) * unit), nil
}

// Parameter identifies the quantity carried by a message.
type Parameter struct {
	Discipline int
	Category   int
	Number     int

	DisciplineName string
	CategoryName   string
	// Name includes the unit, as in "u-component of wind (m s-1)".
	Name string
}

func (p Parameter) String() string {
	return fmt.Sprintf("%s / %s / %s", p.DisciplineName, p.CategoryName, p.Name)
}

// Parameter describes the quantity of Section 4 with code tables 0.0, 4.1
// and 4.2.
func (m *Message) Parameter() (Parameter, error) {
	p := Parameter{Discipline: m.Discipline, DisciplineName: tables.Code("0.0", int64(m.Discipline))}
	s := m.Section(4)
	if s == nil {
		return p, errors.New("message has no product definition section")
	}
	v, err := s.Ints("parameterCategory", "parameterNumber")
	if err != nil {
		return p, err
	}
	p.Category, p.Number = int(v[0]), int(v[1])
	p.CategoryName = tables.Code(fmt.Sprintf("4.1.%d", m.Discipline), v[0])
	p.Name = tables.Code(fmt.Sprintf("4.2.%d.%d", m.Discipline, v[0]), v[1])
	return p, nil
}

// Surface is a fixed surface of code table 4.5.
type Surface struct {
	Type        int
	Description string
	// Value is NaN when the surface carries no value.
	Value float64
}

func (s Surface) String() string {
	if math.IsNaN(s.Value) {
		return s.Description
	}
	return fmt.Sprintf("%g %s", s.Value, s.Description)
}

// Level returns the first fixed surface of Section 4.
func (m *Message) Level() (Surface, error) {
	s := m.Section(4)
	if s == nil {
		return Surface{}, errors.New("message has no product definition section")
	}
	v, err := s.Ints("typeOfFirstFixedSurface", "scaleFactorOfFirstFixedSurface", "scaledValueOfFirstFixedSurface")
	if err != nil {
		return Surface{}, err
	}
	surface := Surface{Type: int(v[0]), Description: tables.Code("4.5", v[0]), Value: math.NaN()}
	if v[0] != 255 {
		surface.Value = float64(v[2]) / math.Pow(10, float64(v[1]))
	}
	return surface, nil
}

// DecodeError reports a failure to decode one section of one message.
type DecodeError struct {
	// Message is the index of the message in the stream.
	Message int
	// Section is the number of the section at fault.
	Section int
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("message %d, section %d: %v", e.Message, e.Section, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeErrors collects the failures of a stream, in stream order.
type DecodeErrors []*DecodeError

func (e DecodeErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d decode errors: %s", len(e), strings.Join(msgs, "; "))
}

func (e DecodeErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

// Config controls the decoding of a stream.
type Config struct {
	// Workers bounds the number of messages decoded at once. Zero means
	// GOMAXPROCS.
	Workers int
}

// Read decodes every message of data with the default Config.
func Read(data []byte) ([]*Message, error) {
	return ReadWithConfig(data, Config{})
}

// ReadWithConfig splits data into messages and decodes them concurrently.
// Messages are returned in stream order.
//
// A message that fails does not stop the others: the returned error is then
// a DecodeErrors, and the failed messages are still returned when at least
// their sections could be framed.
func ReadWithConfig(data []byte, cfg Config) ([]*Message, error) {
	raws, splitErr := framer.Split(data)
	out, err := ReadMessages(raws, cfg)
	if splitErr == nil {
		return out, err
	}
	failures := appendErr(nil, err, 0)
	failures = append(failures, &DecodeError{Message: len(raws), Section: 0, Err: errors.Wrap(splitErr, "splitting stream")})
	return out, failures
}

// ReadMessages decodes already split messages concurrently, the index of a
// message being its position in raws. Errors are reported as in
// ReadWithConfig.
func ReadMessages(raws [][]byte, cfg Config) ([]*Message, error) {
	glog.Infof("decoding %d messages", len(raws))
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([][]*Message, len(raws))
	errs := make([]error, len(raws))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, raw := range raws {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, raw []byte) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = ReadMessage(raw, i)
		}(i, raw)
	}
	wg.Wait()

	var out []*Message
	var failures DecodeErrors
	for i := range raws {
		out = append(out, results[i]...)
		failures = appendErr(failures, errs[i], i)
	}
	if len(failures) > 0 {
		return out, failures
	}
	return out, nil
}

func appendErr(failures DecodeErrors, err error, index int) DecodeErrors {
	var list DecodeErrors
	var single *DecodeError
	switch {
	case err == nil:
		return failures
	case errors.As(err, &list):
		return append(failures, list...)
	case errors.As(err, &single):
		return append(failures, single)
	}
	return append(failures, &DecodeError{Message: index, Err: err})
}

// ReadMessage decodes one raw message, index being its position in the
// stream. It returns one Message per data field, and a DecodeErrors for the
// sections that failed.
func ReadMessage(raw []byte, index int) ([]*Message, error) {
	fm, err := framer.Frame(raw)
	if err != nil {
		return nil, DecodeErrors{{Message: index, Section: framingSection(err), Err: errors.Wrap(err, "framing message")}}
	}
	products := fm.Products()
	if len(products) == 0 {
		return nil, DecodeErrors{{Message: index, Section: 7, Err: errors.New("message has no data section")}}
	}
	end := fm.Sections[len(fm.Sections)-1]

	var out []*Message
	var failures DecodeErrors
	for i, p := range products {
		m, errs := decodeProduct(fm, p, &end, index, i)
		out = append(out, m)
		failures = append(failures, errs...)
	}
	if len(failures) > 0 {
		return out, failures
	}
	return out, nil
}

// framingSection attributes a framing error to Section 0, or to Section 8 for
// a missing end marker.
func framingSection(err error) int {
	var marker *framer.MarkerError
	if errors.As(err, &marker) && marker.Offset > 0 {
		return 8
	}
	return 0
}

func decodeProduct(fm *framer.Message, p framer.Product, end *framer.RawSection, index, product int) (*Message, DecodeErrors) {
	m := &Message{
		Index:      index,
		Product:    product,
		Discipline: fm.Discipline,
		Edition:    fm.Edition,
		Length:     fm.Length,
		Warnings:   append([]string(nil), fm.Warnings...),
	}
	var failures DecodeErrors
	fail := func(number int, err error) {
		failures = append(failures, &DecodeError{Message: index, Section: number, Err: err})
	}

	ok := map[int]bool{}
	raws := append(p.Sections[:], end)
	for _, rs := range raws {
		if rs == nil {
			continue
		}
		s, err := section.Decode(rs.Data, rs.Number)
		if s != nil {
			m.Sections = append(m.Sections, s)
		}
		if err != nil {
			fail(rs.Number, errors.Wrapf(err, "decoding section %d at offset %d", rs.Number, rs.Offset))
			continue
		}
		ok[rs.Number] = true
	}
	if ok[5] {
		if t, err := m.Section(5).Int("dataRepresentationTemplateNumber"); err == nil {
			m.DataTemplate = int(t)
		}
	}
	if !ok[3] {
		return m, failures
	}

	g, warnings, err := grid.FromSection(m.Section(3))
	m.Warnings = append(m.Warnings, warnings...)
	if err != nil {
		fail(3, errors.Wrap(err, "reading grid"))
		return m, failures
	}
	m.Grid = g
	if !ok[5] || !ok[6] || !ok[7] {
		return m, failures
	}

	f, err := unpack.Decode(m.Section(5), m.Section(6), m.Section(7), g.Points)
	if err != nil {
		number := 7
		var unpackErr *unpack.Error
		if errors.As(err, &unpackErr) {
			number, err = unpackErr.Section, unpackErr.Err
		}
		fail(number, errors.Wrap(err, "unpacking data"))
		return m, failures
	}
	if f.Template != 4 {
		params := f.Params
		m.Compression = &params
	}
	m.Warnings = append(m.Warnings, f.Warnings...)

	m.Data = f.Values

	vg, warnings, err := g.Normalize(f.Values)
	m.Warnings = append(m.Warnings, warnings...)
	if err != nil {
		fail(3, errors.Wrap(err, "normalizing values"))
		return m, failures
	}
	m.Values = vg
	return m, failures
}
