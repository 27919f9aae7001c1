// Package bitio reads fixed-width unsigned integers packed MSB-first into a
// byte slice, as used by the GRIB2 data section, bitmap section and the
// complex packing group descriptors.
//
// See https://library.wmo.int/doc_num.php?explnum_id=11283, regulation 92.1.3:
// bit positions within octets are numbered 1 to 8, where bit 1 is the most
// significant bit.
package bitio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxWidth is the widest value ReadUints accepts.
const MaxWidth = 32

// ErrWidth is returned for a bit width outside [0, MaxWidth].
var ErrWidth = errors.New("bit width out of range")

// RangeError reports a read that would run past the end of the buffer.
type RangeError struct {
	// Need is the number of bytes required to satisfy the read.
	Need int
	// Have is the number of bytes that were available.
	Have int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("read needs %d bytes, only %d available", e.Need, e.Have)
}

// BytesNeeded returns ceil((count*width + bitOffset) / 8).
func BytesNeeded(width, count, bitOffset int) int {
	bits := count*width + bitOffset
	return (bits + 7) / 8
}

// ReadUints reads count values of width bits each from buf starting at
// bitOffset (0-7) within buf[0].
//
// The returned offset is the bit position (0-7) inside the last byte that was
// partially consumed, so a caller can continue reading contiguously from
// buf[BytesNeeded(width, count, bitOffset)-1:] when the offset is non-zero, or
// from buf[BytesNeeded(...):] when it is zero. A width of 0 yields count
// zeros and leaves the offset unchanged. It still needs the byte holding
// bitOffset when bitOffset is non-zero.
func ReadUints(buf []byte, width, count, bitOffset int) ([]uint32, int, error) {
	if width < 0 || width > MaxWidth {
		return nil, 0, fmt.Errorf("%w: %d", ErrWidth, width)
	}
	if bitOffset < 0 || bitOffset > 7 {
		return nil, 0, fmt.Errorf("bit offset %d outside [0, 7]", bitOffset)
	}
	if count < 0 {
		return nil, 0, fmt.Errorf("negative value count %d", count)
	}
	if need := BytesNeeded(width, count, bitOffset); need > len(buf) {
		return nil, 0, &RangeError{Need: need, Have: len(buf)}
	}

	out := make([]uint32, count)
	if width == 0 {
		return out, bitOffset, nil
	}
	r := &Reader{buf: buf, pos: bitOffset}
	for i := range out {
		v, err := r.Read(width)
		if err != nil {
			return nil, 0, err
		}
		out[i] = uint32(v)
	}
	return out, r.pos % 8, nil
}

// Reader reads a bitstream sequentially. The zero value is not usable; create
// one with NewReader.
type Reader struct {
	buf []byte
	pos int // bit position from the start of buf
}

// NewReader returns a Reader positioned at bit 0 of b.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Read reads n bits (0 <= n <= 64) as an unsigned integer.
func (r *Reader) Read(n int) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	if n < 0 || n > 64 {
		return 0, fmt.Errorf("%w: %d", ErrWidth, n)
	}
	end := r.pos + n
	if end > len(r.buf)*8 {
		return 0, &RangeError{Need: (end + 7) / 8, Have: len(r.buf)}
	}
	if r.pos%8 == 0 {
		off := r.pos / 8
		switch n {
		case 8:
			r.pos = end
			return uint64(r.buf[off]), nil
		case 16:
			r.pos = end
			return uint64(binary.BigEndian.Uint16(r.buf[off:])), nil
		case 32:
			r.pos = end
			return uint64(binary.BigEndian.Uint32(r.buf[off:])), nil
		}
	}
	var v uint64
	for i := 0; i < n; i++ {
		p := r.pos + i
		bit := (r.buf[p/8] >> (7 - uint(p%8))) & 1
		v = v<<1 | uint64(bit)
	}
	r.pos = end
	return v, nil
}

// Align advances to the next octet boundary.
func (r *Reader) Align() {
	if rem := r.pos % 8; rem != 0 {
		r.pos += 8 - rem
	}
}

// BitPos returns the absolute bit position.
func (r *Reader) BitPos() int { return r.pos }

// BytePos returns the index of the byte holding the next unread bit.
func (r *Reader) BytePos() int { return r.pos / 8 }

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int { return len(r.buf)*8 - r.pos }
