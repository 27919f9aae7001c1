// Package framer splits a byte stream into GRIB2 messages and a message into
// its numbered sections.
//
// See https://library.wmo.int/doc_num.php?explnum_id=11283, section 92.1:
//
//	Section 0  Indicator section, 16 octets
//	Section 1  Identification section
//	Section 2  Local use section (optional)
//	Section 3  Grid definition section
//	Section 4  Product definition section
//	Section 5  Data representation section
//	Section 6  Bit-map section
//	Section 7  Data section
//	Section 8  End section, "7777"
//
// Sequences of sections 2 to 7, 3 to 7 or 4 to 7 may be repeated within a
// single message, each repetition describing one more data field.
package framer

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
)

const (
	// IndicatorLength is the fixed length of Section 0.
	IndicatorLength = 16
	// EndLength is the fixed length of Section 8.
	EndLength = 4

	startMarker = "GRIB"
	endMarker   = "7777"
	edition     = 2
)

// TruncatedError reports a message or section that extends past the end of
// the available data.
type TruncatedError struct {
	// Offset is where the truncated unit starts.
	Offset int
	Need   uint64
	Have   int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("data truncated at offset %d: need %d octets, have %d", e.Offset, e.Need, e.Have)
}

// MarkerError reports a missing "GRIB" or "7777" marker.
type MarkerError struct {
	Offset int
	Got    string
	Want   string
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("marker at offset %d = %q, want %q", e.Offset, e.Got, e.Want)
}

// EditionError reports a message whose edition number is not 2.
type EditionError struct {
	Edition int
}

func (e *EditionError) Error() string {
	return fmt.Sprintf("GRIB edition %d, only edition 2 is supported", e.Edition)
}

// Split slices buf into messages using the total length declared at octets
// 9-16 of each indicator section. Zero padding between messages is skipped.
//
// Messages split before an error are returned along with it.
func Split(buf []byte) ([][]byte, error) {
	var out [][]byte
	offset := 0
	for offset < len(buf) {
		if buf[offset] == 0 {
			offset++
			continue
		}
		length, err := peekLength(buf[offset:], offset)
		if err != nil {
			return out, err
		}
		end := offset + int(length)
		out = append(out, buf[offset:end:end])
		glog.V(1).Infof("message %d: %d octets at offset %d", len(out)-1, length, offset)
		offset = end
	}
	return out, nil
}

// peekLength validates the indicator section at the start of data and returns
// the declared total length, which is guaranteed to fit in data.
func peekLength(data []byte, offset int) (uint64, error) {
	if len(data) < IndicatorLength {
		return 0, &TruncatedError{Offset: offset, Need: IndicatorLength, Have: len(data)}
	}
	if got := string(data[0:4]); got != startMarker {
		return 0, &MarkerError{Offset: offset, Got: got, Want: startMarker}
	}
	if e := int(data[7]); e != edition {
		return 0, &EditionError{Edition: e}
	}
	length := binary.BigEndian.Uint64(data[8:16])
	if length < IndicatorLength+EndLength {
		return 0, fmt.Errorf("message at offset %d declares total length %d, shorter than its fixed sections", offset, length)
	}
	if length > uint64(len(data)) {
		return 0, &TruncatedError{Offset: offset, Need: length, Have: len(data)}
	}
	return length, nil
}

// RawSection is the octet range of one section within a message.
type RawSection struct {
	Number int
	// Offset is the position of the first octet within the message.
	Offset int
	// Data holds the whole section, including its length and number octets.
	Data []byte
}

// Message is a framed GRIB2 message.
type Message struct {
	Discipline int
	Edition    int
	// Length is the total length declared in Section 0.
	Length   uint64
	Sections []RawSection
	// Warnings lists recoverable inconsistencies found while framing.
	Warnings []string
}

// Frame checks the markers of msg and splits it into sections.
func Frame(msg []byte) (*Message, error) {
	length, err := peekLength(msg, 0)
	if err != nil {
		return nil, err
	}
	m := &Message{
		Discipline: int(msg[6]),
		Edition:    int(msg[7]),
		Length:     length,
		Sections:   []RawSection{{Number: 0, Offset: 0, Data: msg[0:IndicatorLength]}},
	}
	if uint64(len(msg)) > length {
		m.warnf("message buffer holds %d octets beyond the declared length", uint64(len(msg))-length)
		msg = msg[:length]
	}

	pos := IndicatorLength
	for {
		if pos+EndLength <= len(msg) && string(msg[pos:pos+EndLength]) == endMarker {
			m.Sections = append(m.Sections, RawSection{Number: 8, Offset: pos, Data: msg[pos : pos+EndLength]})
			pos += EndLength
			break
		}
		if pos+5 > len(msg) {
			got := ""
			if pos < len(msg) {
				got = string(msg[pos:])
			}
			return nil, &MarkerError{Offset: pos, Got: got, Want: endMarker}
		}
		sectionLength := int(binary.BigEndian.Uint32(msg[pos : pos+4]))
		number := int(msg[pos+4])
		if sectionLength < 5 {
			return nil, fmt.Errorf("section %d at offset %d declares length %d", number, pos, sectionLength)
		}
		if number < 1 || number > 7 {
			return nil, fmt.Errorf("unexpected section number %d at offset %d", number, pos)
		}
		if pos+sectionLength > len(msg) {
			return nil, &TruncatedError{Offset: pos, Need: uint64(sectionLength), Have: len(msg) - pos}
		}
		if err := m.checkOrder(number); err != nil {
			return nil, err
		}
		end := pos + sectionLength
		m.Sections = append(m.Sections, RawSection{Number: number, Offset: pos, Data: msg[pos:end:end]})
		pos = end
	}

	if uint64(pos) != length {
		m.warnf("sections sum to %d octets, Section 0 declares %d", pos, length)
	}
	if n := len(m.Products()); n == 0 {
		m.warnf("message has no data section")
	}
	return m, nil
}

// checkOrder enforces the section sequence: Section 1 first and once, then
// sections in increasing order, restarting at 2, 3 or 4 for a new field.
func (m *Message) checkOrder(number int) error {
	prev := m.Sections[len(m.Sections)-1].Number
	switch {
	case prev == 0 && number != 1:
		return fmt.Errorf("section %d follows the indicator section, want section 1", number)
	case prev != 0 && number == 1:
		return fmt.Errorf("section 1 repeated")
	case number > prev:
		return nil
	case prev == 7 && number >= 2 && number <= 4:
		return nil
	}
	return fmt.Errorf("section %d cannot follow section %d", number, prev)
}

func (m *Message) warnf(format string, args ...interface{}) {
	w := fmt.Sprintf(format, args...)
	glog.Warning(w)
	m.Warnings = append(m.Warnings, w)
}

// Product gathers the sections describing one data field. Sections of a
// repeated sequence replace those of the previous field; sections that are
// not repeated carry over.
type Product struct {
	// Sections is indexed by section number. Absent sections are nil.
	Sections [8]*RawSection
}

// Section returns the raw section with the given number, or nil.
func (p Product) Section(number int) *RawSection {
	if number < 0 || number >= len(p.Sections) {
		return nil
	}
	return p.Sections[number]
}

// Products returns one Product per data section of the message.
func (m *Message) Products() []Product {
	var out []Product
	var cur Product
	for i := range m.Sections {
		s := &m.Sections[i]
		if s.Number >= len(cur.Sections) {
			continue
		}
		cur.Sections[s.Number] = s
		if s.Number == 7 {
			out = append(out, cur)
			cur.Sections[6] = nil
			cur.Sections[7] = nil
		}
	}
	return out
}
